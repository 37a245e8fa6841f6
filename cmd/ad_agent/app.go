package main

import (
	"fmt"

	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/observability"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app bundles what every command needs.
type app struct {
	cfg   config.Config
	log   *logrus.Logger
	store *session.Store
	api   *client.Client
	out   *observability.Printer
}

// loadConfig merges the config file, the environment and the root flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("api-url") {
		cfg.APIBaseURL = apiURL
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*logrus.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
}

// newApp loads the configuration and the saved session and builds the API
// client. Callers must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	path := cfg.SessionFile
	if path == "" {
		if path, err = session.DefaultPath(); err != nil {
			return nil, err
		}
	}
	store := session.NewStore(path)
	if err := store.Load(); err != nil {
		return nil, err
	}
	logger.WithField("session_file", path).Debug("session loaded")

	api, err := client.New(cfg.APIBaseURL, store,
		client.WithTimeout(cfg.RequestTimeout.Std()),
		client.WithRefreshSkew(cfg.RefreshSkew.Std()),
		client.WithLogger(logrus.NewEntry(logger)),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		log:   logger,
		store: store,
		api:   api,
		out:   observability.NewPrinter(cmd.OutOrStdout()),
	}, nil
}

// Close releases the client's resources.
func (a *app) Close() {
	a.api.Close()
}
