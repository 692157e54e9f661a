// Package status implements the status command that reports frontier
// progress in a formatted table.
package status

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jooya/crawler/internal/config"
	"github.com/jooya/crawler/internal/database"
)

// Command returns the status command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show frontier queue counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			repo := database.NewFrontierRepository(db, cfg.MaxDepth, cfg.MaxPages)
			stats, err := repo.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("query frontier stats: %w", err)
			}

			renderStats(stats)
			return nil
		},
	}
}

// renderStats prints the counts as a table on stdout.
func renderStats(stats *database.FrontierStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Status", "Count"})
	t.AppendRow(table.Row{"SCHEDULED", stats.Scheduled})
	t.AppendRow(table.Row{"IN_PROGRESS", stats.InProgress})
	t.AppendRow(table.Row{"DONE", stats.Done})
	t.AppendRow(table.Row{"FAILED", stats.Failed})
	t.AppendFooter(table.Row{"Total", stats.Scheduled + stats.InProgress + stats.Done + stats.Failed})

	t.Render()
}
