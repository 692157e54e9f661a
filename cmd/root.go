// Package cmd implements the command-line interface for the Jooya crawler.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jooya/crawler/cmd/crawl"
	"github.com/jooya/crawler/cmd/enqueue"
	"github.com/jooya/crawler/cmd/status"
)

var rootCmd = &cobra.Command{
	Use:   "jooya",
	Short: "A polite distributed web crawler",
	Long: `Jooya crawls the web politely: a Postgres-backed frontier hands out
leased tasks to workers, per-domain pacing and robots.txt are enforced
before every fetch, and page content lands in Postgres with raw HTML
in MongoDB.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(enqueue.Command())
	rootCmd.AddCommand(status.Command())
}
