package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"marketlens/backend/features/refresh"
	"marketlens/backend/internal/app"
	"marketlens/backend/internal/review"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := app.OpenDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := app.Migrate(db, cfg); err != nil {
			return err
		}
		cmd.Println("Migrations applied.")
		return nil
	},
}

var (
	refreshForce       bool
	refreshCompetitors bool
	refreshSources     []string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <product-id>",
	Short: "Start review scrapes for a product",
	Long: `Starts a scrape run for every configured review source of the product
unless its reviews are still fresh. Runs finish asynchronously through the
webhook; this command only reports what was started.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := refreshOptions(refreshForce, refreshCompetitors, refreshSources)
		if err != nil {
			return err
		}

		application, closeFn, err := bootstrapApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := application.RefreshService.RefreshAllReviews(cmd.Context(), args[0], opts)
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		return printJSON(cmd, res)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <product-id>",
	Short: "Rebuild a product's review vectors from stored reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeFn, err := bootstrapApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := application.Reindex(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("reindex failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "ignore review freshness")
	refreshCmd.Flags().BoolVar(&refreshCompetitors, "competitors", false, "also refresh competitor products")
	refreshCmd.Flags().StringSliceVar(&refreshSources, "source", nil, "limit to these sources (amazon, trustpilot)")

	rootCmd.AddCommand(migrateCmd, refreshCmd, reindexCmd)
}

func refreshOptions(force, competitors bool, sources []string) (refresh.Options, error) {
	opts := refresh.Options{ForceRefresh: force, IncludeCompetitors: competitors}
	for _, s := range sources {
		src, err := review.ParseSource(s)
		if err != nil {
			return refresh.Options{}, err
		}
		opts.Sources = append(opts.Sources, src)
	}
	return opts, nil
}

func bootstrapApp(cmd *cobra.Command) (*app.App, func(), error) {
	deps, err := app.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, slog.Default(), &app.Options{Redis: deps.Redis})
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return application, deps.Close, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
