package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitechat/internal/pipeline"
)

var (
	flagURL      string
	flagMaxPages int
	flagForce    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl the configured website and build the vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagURL != "" {
			cfg.Scraper.SeedURL = flagURL
		}
		if flagMaxPages > 0 {
			cfg.Scraper.MaxPages = flagMaxPages
		}

		if _, err := os.Stat(cfg.IndexPath); err == nil && !flagForce {
			return fmt.Errorf("index already exists at %s; pass --force to re-scrape", cfg.IndexPath)
		}

		start := time.Now()
		stats, err := pipeline.Build(cmd.Context(), cfg, newEmbedder(cfg))
		if err != nil {
			return err
		}

		fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Documents: %d\n", stats.Documents)
		fmt.Printf("  Chunks:    %d\n", stats.Chunks)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&flagURL, "url", "", "seed URL to crawl (overrides config)")
	scrapeCmd.Flags().IntVar(&flagMaxPages, "max-pages", 0, "page cap for the crawl (overrides config)")
	scrapeCmd.Flags().BoolVar(&flagForce, "force", false, "replace an existing index")
	rootCmd.AddCommand(scrapeCmd)
}
