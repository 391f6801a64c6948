package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tessera/internal/config"
	"tessera/storage"
)

func newInitStorageCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create tables and queues (or the sqlite schema)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.Config
			app.Logger.WithField("driver", cfg.Driver).Info("storage init starting")

			switch cfg.Driver {
			case config.DriverSQLite:
				db, err := storage.OpenSQLite(ctx, cfg.SQLitePath, cfg.Tables)
				if err != nil {
					return fmt.Errorf("sqlite: %w", err)
				}
				if err := db.Close(); err != nil {
					return err
				}
			default:
				if err := storage.EnsureTables(ctx, cfg.ConnString, cfg.Tables.All()); err != nil {
					return fmt.Errorf("create tables: %w", err)
				}
				if err := storage.EnsureQueues(ctx, cfg.ConnString, []string{cfg.EventsQueue}); err != nil {
					return fmt.Errorf("create queues: %w", err)
				}
			}

			app.Logger.Info("storage init complete")
			return nil
		},
	}
}
