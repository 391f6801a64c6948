package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tessera/internal/config"
	"tessera/storage"
	"tessera/worker"
)

func newWorkerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume entry events and unlock achievements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, app)
		},
	}
}

func runWorker(ctx context.Context, app *App) error {
	cfg := app.Config
	if cfg.Driver != config.DriverAzure {
		return errors.New("worker needs STORAGE_DRIVER=azure; the sqlite driver applies events inline")
	}

	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	q, err := storage.NewQueue(cfg.ConnString, cfg.EventsQueue)
	if err != nil {
		return err
	}

	app.Logger.WithField("queue", cfg.EventsQueue).Info("achievement worker starting")
	return worker.Run(ctx, q, newProcessor(app, d), app.Logger, worker.RunOptions{
		PollInterval: cfg.PollInterval,
		MaxDequeue:   int64(cfg.MaxDequeue),
	})
}
