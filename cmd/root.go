package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitechat/internal/config"
	"sitechat/internal/embedder"
	"sitechat/internal/llm"
)

var (
	flagConfig string
	flagIndex  string
)

var rootCmd = &cobra.Command{
	Use:   "sitechat",
	Short: "Chat with a website: crawl it, index it, answer questions grounded in its content",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagIndex, "index", "", "index path (overrides config)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagIndex != "" {
		cfg.IndexPath = flagIndex
	}
	return cfg, nil
}

func newEmbedder(cfg *config.Config) *embedder.HTTPEmbedder {
	key := ""
	if cfg.Embedder.APIKeyEnv != "" {
		key = os.Getenv(cfg.Embedder.APIKeyEnv)
	}
	return embedder.NewHTTP(cfg.Embedder.BaseURL, key, cfg.Embedder.Model)
}

func newLLM(cfg *config.Config, apiKey string) *llm.GroqClient {
	return llm.NewGroq(cfg.LLM.BaseURL, apiKey, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
}
