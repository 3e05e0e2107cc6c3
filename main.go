package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"marketlens/backend/internal/app"
	"marketlens/backend/internal/config"
	"marketlens/backend/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "marketlens",
	Short:         "Review ingestion and product chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(logger.New(os.Stdout))

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the resource worker and the refresh scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, slog.Default())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, logger, &app.Options{Redis: deps.Redis})
	if err != nil {
		return err
	}

	if cfg.EnableResourceWorker {
		consumer, err := nsq.NewConsumer(config.TopicResourceIndex, config.ChannelBackend, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq consumer error: %w", err)
		}
		consumer.AddConcurrentHandlers(application.ResourceConsumer, cfg.IndexingConcurrency)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			logger.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			logger.Info("resource consumer connected", "topic", config.TopicResourceIndex)
		}
		defer consumer.Stop()
	}

	if err := application.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer application.Scheduler.Stop()

	return application.Run(ctx)
}
