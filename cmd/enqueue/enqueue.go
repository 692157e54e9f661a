// Package enqueue implements the enqueue command for seeding the frontier.
package enqueue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jooya/crawler/internal/config"
	"github.com/jooya/crawler/internal/database"
	"github.com/jooya/crawler/internal/logger"
)

// Command returns the enqueue command for use in the root command.
func Command() *cobra.Command {
	var (
		sourceID     int
		depth        int
		priority     int
		forceRecrawl bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue [url...]",
		Short: "Seed the frontier with URLs",
		Long: `Add one or more URLs to the frontier as SCHEDULED. URLs already
marked DONE are left alone unless --force-recrawl is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck // stdout sync failure is harmless

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			repo := database.NewFrontierRepository(db, cfg.MaxDepth, cfg.MaxPages)

			for _, url := range args {
				if enqErr := repo.Enqueue(
					cmd.Context(), url, sourceID, depth, priority, forceRecrawl,
				); enqErr != nil {
					return fmt.Errorf("enqueue %q: %w", url, enqErr)
				}
				log.Info("url enqueued",
					logger.String("url", url),
					logger.Int("depth", depth),
					logger.Int("priority", priority),
				)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&sourceID, "source-id", 0, "Source identifier for the seeded URLs")
	cmd.Flags().IntVar(&depth, "depth", 0, "Depth assigned to the seeded URLs")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority assigned to the seeded URLs (higher first)")
	cmd.Flags().BoolVar(&forceRecrawl, "force-recrawl", false, "Reschedule URLs even when already DONE")

	return cmd
}
