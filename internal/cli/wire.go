package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tessera/api"
	"tessera/internal/config"
	"tessera/storage"
	"tessera/worker"
)

var lookupEnv = os.LookupEnv

// deps are the long-lived clients a command runs on.
type deps struct {
	backend storage.Backend
	redis   *redis.Client
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// openDeps opens the configured backend and, when redis is configured, wraps
// it in the read-through cache.
func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath, cfg.Tables)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		d.backend = db
		d.closers = append(d.closers, func() { _ = db.Close() })
	default:
		tables, err := storage.NewTables(cfg.ConnString, cfg.Tables)
		if err != nil {
			return nil, fmt.Errorf("tables: %w", err)
		}
		d.backend = tables
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		d.Close()
		return nil, err
	}
	if opts != nil {
		rc := redis.NewClient(opts)
		d.redis = rc
		d.closers = append(d.closers, func() { _ = rc.Close() })
		d.backend = storage.NewCache(d.backend, rc, cfg.CacheTTL)
	}
	return d, nil
}

func newAuth(cfg config.Config, logger *log.Logger) (*api.Auth, func(), error) {
	if cfg.JWKSURL == "" {
		return api.NewAuth([]byte(cfg.JWTSecret), cfg.TokenTTL, nil, cfg.Audience, cfg.Issuer), func() {}, nil
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth([]byte(cfg.JWTSecret), cfg.TokenTTL, jwks, cfg.Audience, cfg.Issuer), jwks.EndBackground, nil
}

// newProcessor builds the achievement pipeline over backend.
func newProcessor(a *App, d *deps) *worker.Processor {
	achievements := worker.NewAchievements(d.backend)
	return worker.NewProcessor(worker.NewOrchestrator(achievements), d.redis, a.Config.Channel, a.Logger)
}

// eventSink picks where entry events go: the azure queue for the worker, or
// the processor inline when there is no queue.
func eventSink(a *App, d *deps) (api.EventSink, error) {
	if a.Config.Driver == config.DriverSQLite {
		return newProcessor(a, d), nil
	}
	q, err := storage.NewQueue(a.Config.ConnString, a.Config.EventsQueue)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	return q, nil
}

// installTracer registers a process-wide tracer provider so request spans get
// real trace and span ids.
func installTracer() func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}
