package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitechat/internal/rag"
	"sitechat/internal/server"
	"sitechat/internal/store"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the RAG chatbot over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagAddr != "" {
			cfg.Server.Addr = flagAddr
		}

		apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
		if apiKey == "" {
			return fmt.Errorf("%s not found in environment; the server cannot start without it", cfg.LLM.APIKeyEnv)
		}

		engine := &rag.Engine{
			Embedder: newEmbedder(cfg),
			LLM:      newLLM(cfg, apiKey),
			SiteName: cfg.SiteName,
			TopK:     cfg.Retrieval.TopK,
		}

		ix, err := store.Open(cfg.IndexPath)
		switch {
		case err == nil:
			defer ix.Close()
			engine.Index = ix
			count, _ := ix.Count()
			log.Printf("index loaded from %s (%d chunks)", cfg.IndexPath, count)
		case errors.Is(err, store.ErrIndexNotFound):
			log.Printf("warning: %v; run 'sitechat scrape' to build the index", err)
		default:
			return fmt.Errorf("open index: %w", err)
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.New(engine).Handler(),
			// Generous write timeout: a response waits on the upstream model.
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
		}
		log.Printf("listening on %s", cfg.Server.Addr)
		return srv.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
