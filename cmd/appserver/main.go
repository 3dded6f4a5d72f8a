// Command appserver runs the voice metrics trial API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	app "github.com/R3E-Network/voice_metrics/internal/app"
	"github.com/R3E-Network/voice_metrics/internal/app/runtime"
	"github.com/R3E-Network/voice_metrics/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "appserver",
		Short:         "Voice metrics trial API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := runtime.NewLogger(cfg.Logging)
			if cfg.Database.Driver == config.DriverMemory {
				log.Info("memory driver has no schema; nothing to migrate")
				return nil
			}
			_, closer, err := runtime.OpenStore(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer closer.Close()
			log.WithField("driver", cfg.Database.Driver).Info("schema applied")
			return nil
		},
	})

	var confirmed bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored trial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("refusing to delete trials without --yes")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := runtime.NewLogger(cfg.Logging)
			store, closer, err := runtime.OpenStore(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			removed, err := app.New(app.Stores{Trials: store}, log).Trials.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d trials\n", removed)
			return nil
		},
	}
	resetCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion")
	root.AddCommand(resetCmd)

	return root
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := runtime.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout)+time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if runErr != nil {
		return fmt.Errorf("server error: %w", runErr)
	}
	log.Info("server stopped")
	return nil
}
