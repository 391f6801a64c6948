// Package cli wires configuration, storage and transport into the tessera
// commands.
package cli

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tessera/internal/config"
)

// App carries state shared by every subcommand.
type App struct {
	Addr  string
	Debug bool

	Config config.Config
	Logger *log.Logger

	// env is swapped in tests.
	env config.Lookup
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tessera",
		Short:        "Year-long hour grid time tracker",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Create tables and queues
  tessera init-storage

  # Serve the REST API
  tessera serve --addr :8080

  # Consume entry events and unlock achievements
  tessera worker
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load(cmd)
	}

	cmd.PersistentFlags().StringVar(&app.Addr, "addr", "", "Listen address (overrides PORT)")
	cmd.PersistentFlags().BoolVar(&app.Debug, "debug", false, "Enable debug logging (overrides DEBUG)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newWorkerCmd(app))
	cmd.AddCommand(newInitStorageCmd(app))

	return cmd
}

func (a *App) load(cmd *cobra.Command) error {
	env := a.env
	if env == nil {
		env = config.Lookup(lookupEnv)
	}
	cfg, err := config.LoadFrom(env)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Port = a.Addr
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = a.Debug
	}
	a.Config = cfg

	if a.Logger == nil {
		a.Logger = log.New()
	}
	if cfg.Debug {
		a.Logger.SetLevel(log.DebugLevel)
	}
	return nil
}
