// Package crawl implements the crawl command, the long-running worker
// process that drains the frontier.
package crawl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jooya/crawler/internal/app"
	"github.com/jooya/crawler/internal/config"
	"github.com/jooya/crawler/internal/logger"
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the crawl worker pool",
		Long: `Start the worker pool against the configured frontier. Workers run
until interrupted or until the page cap is reached.

The --workers flag overrides the WORKERS setting from the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if workers > 0 {
				cfg.Workers = workers
			}

			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck // stdout sync failure is harmless

			application, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			return application.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0,
		"Override the number of workers (0 means use WORKERS from the environment)")

	return cmd
}
