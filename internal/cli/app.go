// Package cli implements the budget command-line client.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/config"
	"github.com/kthezelais/budget-tracker/internal/remote"
	"github.com/kthezelais/budget-tracker/internal/syncer"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// SyncerFactory builds the orchestrator for a configuration. The returned
// func releases its resources.
type SyncerFactory func(ctx context.Context, cfg *config.ClientConfig) (*syncer.Syncer, func() error, error)

// App is the budget CLI
type App struct {
	rootCmd   *cobra.Command
	newSyncer SyncerFactory

	loader  *config.ClientLoader
	syncer  *syncer.Syncer
	release func() error
}

// NewApp creates the CLI
func NewApp(version string) *App {
	app := &App{newSyncer: DefaultSyncer}

	rootCmd := &cobra.Command{
		Use:               "budget",
		Short:             "Track a monthly budget with rollover, online or offline",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.teardown()
		},
		RunE: app.runSummary,
	}
	rootCmd.PersistentFlags().StringP("config", "C", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringP("month", "m", "", "Month to work on, as YYYY-MM (default: current month)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log synchronization details")

	rootCmd.AddCommand(
		app.summaryCmd(),
		app.txCmd(),
		app.budgetCmd(),
		app.rolloverCmd(),
		app.monthsCmd(),
		app.deviceCmd(),
		app.watchCmd(),
	)

	app.rootCmd = rootCmd
	return app
}

// SetSyncerFactory replaces how the orchestrator is built
func (app *App) SetSyncerFactory(factory SyncerFactory) {
	app.newSyncer = factory
}

// SetOutput redirects all command output
func (app *App) SetOutput(w io.Writer) {
	pterm.SetDefaultOutput(w)
	app.rootCmd.SetOut(w)
	app.rootCmd.SetErr(w)
}

// Execute runs the CLI with os.Args
func (app *App) Execute() error {
	defer app.shutdown()
	return app.rootCmd.Execute()
}

// Run runs the CLI with args
func (app *App) Run(ctx context.Context, args []string) error {
	defer app.shutdown()
	app.rootCmd.SetArgs(args)
	return app.rootCmd.ExecuteContext(ctx)
}

// DefaultSyncer wires the HTTP client and the SQLite cache
func DefaultSyncer(ctx context.Context, cfg *config.ClientConfig) (*syncer.Syncer, func() error, error) {
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}

	client := remote.NewClient(remote.Options{
		BaseURL:  cfg.ServerURL,
		APIKey:   cfg.APIKey,
		DeviceID: cfg.DeviceID,
	})

	s := syncer.New(syncer.Options{
		Remote:        client,
		Cache:         store,
		Timezone:      cfg.Location(),
		DeviceID:      cfg.DeviceID,
		DefaultBudget: cfg.DefaultBudget,
		RemoteTimeout: cfg.RemoteTimeout,
		Logger:        log.Logger,
	})
	return s, store.Close, nil
}

func (app *App) setup(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := zerolog.ErrorLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	path, _ := cmd.Flags().GetString("config")
	app.loader = config.NewClientLoader(path)
	if _, err := app.loader.Reload(); err != nil {
		return err
	}

	// months only needs the calendar
	if cmd.Name() == "months" {
		return nil
	}
	return app.connect(cmd.Context())
}

// connect (re)builds the orchestrator from the current configuration
func (app *App) connect(ctx context.Context) error {
	if err := app.teardown(); err != nil {
		log.Warn().Err(err).Msg("Failed to release previous client")
	}

	s, release, err := app.newSyncer(ctx, app.loader.Current())
	if err != nil {
		return err
	}
	app.syncer = s
	app.release = release
	return nil
}

// shutdown releases the orchestrator when a command failed before its post-run
func (app *App) shutdown() {
	if err := app.teardown(); err != nil {
		log.Warn().Err(err).Msg("Failed to release client")
	}
}

func (app *App) teardown() error {
	if app.release == nil {
		return nil
	}
	release := app.release
	app.release = nil
	app.syncer = nil
	return release()
}

// month returns the --month flag or the current month
func (app *App) month(cmd *cobra.Command) string {
	month, _ := cmd.Flags().GetString("month")
	if month == "" {
		return util.CurrentMonth()
	}
	return month
}
