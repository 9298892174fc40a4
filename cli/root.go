// Package cli is the command line front end: every backend command plus the HTTP server.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/meghashyamc/aleph/api/handlers"
	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/backend"
	"github.com/spf13/cobra"
)

// Backend is the search backend as the commands use it.
type Backend interface {
	handlers.Backend
	Close() error
}

// BackendFactory builds the backend for one command invocation.
type BackendFactory func(logger logger.Logger, cfg *config.Config) (Backend, error)

type app struct {
	env      string
	logLevel string
	asJSON   bool

	cfg        *config.Config
	logger     logger.Logger
	newBackend BackendFactory
}

func defaultBackend(logger logger.Logger, cfg *config.Config) (Backend, error) {
	service, err := backend.New(logger, cfg)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// NewRootCommand returns the aleph command tree. A nil factory builds the real backend.
func NewRootCommand(newBackend BackendFactory) *cobra.Command {
	if newBackend == nil {
		newBackend = defaultBackend
	}
	a := &app{newBackend: newBackend}

	rootCmd := &cobra.Command{
		Use:           "aleph",
		Short:         "Instant search over your files and applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&a.env, "env", "", "config environment to load (defaults to $ENV, then local)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newServeCommand(a),
		newSearchCommand(a),
		newAppsCommand(a),
		newOpenCommand(a),
		newCrawlCommand(a),
		newStatusCommand(a),
	)
	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Set("logging.level", a.logLevel)
	}

	a.cfg = cfg
	a.logger = logger.New(logger.Options{Level: cfg.GetLogLevel(), Dir: cfg.GetLogDir()})
	return nil
}

// withBackend runs fn against a backend that is closed afterwards.
func (a *app) withBackend(fn func(Backend) error) error {
	service, err := a.newBackend(a.logger, a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			a.logger.Warn("could not close backend", "err", err.Error())
		}
	}()
	return fn(service)
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
