// Package main is the entry point for the metastore server binary. It hosts
// the metastore manager behind the HTTP API, plus one-shot administrative
// commands for bootstrapping, purging, and seeding a deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"icemeta/internal/api"
	"icemeta/internal/app"
	"icemeta/internal/config"
	"icemeta/internal/middleware"
	"icemeta/internal/tasks"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "icemeta",
		Short:         "Iceberg catalog metastore service",
		Long:          "icemeta persists the entity model of an Iceberg-compatible catalog and serves it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file loaded before the environment")
	// Accept snake_case flag spellings for operators used to env var names.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.AddCommand(
		newServeCmd(&envFile),
		newBootstrapCmd(&envFile),
		newPurgeCmd(&envFile),
		newSeedCmd(&envFile),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads configuration, initialises logging, and wires the application.
func setup(envFile string) (*app.App, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger = logger.With("realm", cfg.Realm)
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	return app.Build(cfg, logger)
}

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the metastore HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			return serve(a)
		},
	}
}

func serve(a *app.App) error {
	cfg, logger := a.Cfg, a.Logger

	validator, err := buildValidator(cfg)
	if err != nil {
		return err
	}

	server := api.NewServer(a.Manager, logger, api.Options{
		Validator: validator,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if cfg.TaskExecutorSchedule != "off" {
		executor := tasks.NewExecutor(a.Manager, logger, cfg.TaskExecutorSchedule)
		if err := executor.Start(); err != nil {
			return fmt.Errorf("start task executor: %w", err)
		}
		defer executor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metastore server listening", "addr", cfg.ListenAddr, "strategy", cfg.Strategy, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildValidator(cfg *config.Config) (middleware.TokenValidator, error) {
	if cfg.AdminOIDCIssuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return middleware.NewOIDCValidator(ctx, cfg.AdminOIDCIssuer, cfg.AdminOIDCAudience)
	}
	if cfg.AdminJWTSecret != "" {
		return middleware.NewHS256Validator(cfg.AdminJWTSecret)
	}
	return nil, nil
}

func newBootstrapCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the root container, root principal, and service admin role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			result := a.Manager.Bootstrap(cmd.Context())
			if !result.IsSuccess() {
				return fmt.Errorf("bootstrap failed: %s %s", result.Status, result.ExtraInformation)
			}
			a.Logger.Info("bootstrap complete")
			return nil
		},
	}
}

func newPurgeCmd(envFile *string) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Irreversibly delete all metastore data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("purge deletes everything; re-run with --yes to confirm")
			}
			a, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			result := a.Manager.Purge(cmd.Context())
			if !result.IsSuccess() {
				return fmt.Errorf("purge failed: %s %s", result.Status, result.ExtraInformation)
			}
			a.Logger.Info("purge complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the purge")
	return cmd
}

func newSeedCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Apply a YAML seed file of principals, roles, and catalogs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := app.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			a, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			if result := a.Manager.Bootstrap(cmd.Context()); !result.IsSuccess() {
				return fmt.Errorf("bootstrap before seed failed: %s %s", result.Status, result.ExtraInformation)
			}
			return seed.Apply(cmd.Context(), a.Manager, a.Logger)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(os.Stdout, "icemeta %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
