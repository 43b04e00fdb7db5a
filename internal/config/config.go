package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ScraperConfig bounds the crawl.
type ScraperConfig struct {
	SeedURL  string `yaml:"seed_url"`
	MaxPages int    `yaml:"max_pages"`
}

// ChunkerConfig controls document splitting.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// EmbedderConfig configures the embeddings provider. APIKeyEnv names the
// environment variable holding the credential; it may be empty for local
// providers such as Ollama.
type EmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RetrievalConfig controls per-question retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root application configuration.
type Config struct {
	SiteName  string          `yaml:"site_name"`
	IndexPath string          `yaml:"index_path"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
}

// Load reads a config from path. A missing file returns full defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.SiteName == "" {
		cfg.SiteName = "Agiteks"
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = "site_index.db"
	}
	if cfg.Scraper.SeedURL == "" {
		cfg.Scraper.SeedURL = "https://agiteks.com"
	}
	if cfg.Scraper.MaxPages == 0 {
		cfg.Scraper.MaxPages = 20
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "nomic-embed-text"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama-3.3-70b-versatile"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
}
