package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"tessera/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app)
		},
	}
}

func runServe(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	shutdownTracer := installTracer()
	defer func() { _ = shutdownTracer(context.Background()) }()

	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	auth, stopAuth, err := newAuth(cfg, logger)
	if err != nil {
		return err
	}
	defer stopAuth()

	var (
		deduper api.Deduper
		unlocks *api.UnlockBroker
	)
	if d.redis != nil {
		deduper = api.NewRedisDeduper(d.redis, cfg.DeduperTTL)
		unlocks = api.NewUnlockBroker()
		go api.SubscribeUnlocks(ctx, logger, d.redis, cfg.Channel, unlocks)
	} else {
		logger.Warn("redis not configured; cache, idempotency keys and achievement stream disabled")
	}

	sink, err := eventSink(app, d)
	if err != nil {
		return err
	}
	events := api.NewPublisher(sink, logger, api.PublisherConfig{
		Workers:        cfg.PublishWorkers,
		Buffer:         cfg.PublishBuffer,
		Timeout:        cfg.PublishTimeout,
		HandoffTimeout: cfg.HandoffTimeout,
	})
	defer events.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Decompress())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowCredentials: false,
	}))

	api.Register(e, api.Config{
		Store:        d.backend,
		Auth:         auth,
		Deduper:      deduper,
		Events:       events,
		Unlocks:      unlocks,
		Logger:       logger,
		SecureCookie: cfg.CookieSecure,
		TokenTTL:     cfg.TokenTTL,
	})

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr()).Info("tessera api listening")
		errc <- e.Start(cfg.Addr())
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("tessera api shutting down")
	return e.Shutdown(shutdownCtx)
}
