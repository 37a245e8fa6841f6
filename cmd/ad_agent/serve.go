package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/db"
	"github.com/jonathan/ad-dashboard/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort        int
	serveDatabaseURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP server",
	Long: `Start an HTTP server that exposes the dashboard endpoints and streams job
progress as server-sent events. Requests are made to the ad generation API on
behalf of the caller's bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.DefaultServerPort, "Port to listen on (overrides AD_SERVER_PORT)")
	serveCmd.Flags().StringVar(&serveDatabaseURL, "db-url", "", "PostgreSQL URL for progress history (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort = servePort
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverCfg := server.Config{
		Port:           cfg.ServerPort,
		APIBaseURL:     cfg.APIBaseURL,
		PollInterval:   cfg.PollInterval.Std(),
		RequestTimeout: cfg.RequestTimeout.Std(),
		CORSOrigins:    cfg.CORSOrigins,
		JWT:            jwtConfig,
		Logger:         logger,
	}

	// Progress history is optional
	databaseURL := os.Getenv("DATABASE_URL")
	if cmd.Flags().Changed("db-url") {
		databaseURL = serveDatabaseURL
	}
	if databaseURL != "" {
		store, err := db.Connect(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		serverCfg.History = store
		logger.Info("progress history enabled")
	}

	srv, err := server.New(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}
