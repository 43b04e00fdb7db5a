package pipeline

import (
	"context"
	"fmt"

	"sitechat/internal/chunker"
	"sitechat/internal/config"
	"sitechat/internal/embedder"
	"sitechat/internal/scraper"
	"sitechat/internal/store"
)

const embedBatchSize = 32

// Stats reports the results of one build.
type Stats struct {
	Documents int
	Chunks    int
}

// Build runs the offline phase: crawl the configured site, split the pages
// into chunks, embed them, and persist a fresh index at cfg.IndexPath,
// replacing whatever was there.
func Build(ctx context.Context, cfg *config.Config, emb embedder.Embedder) (*Stats, error) {
	crawler := scraper.New()
	fmt.Printf("Starting to scrape %s...\n", cfg.Scraper.SeedURL)
	docs, err := crawler.Crawl(ctx, cfg.Scraper.SeedURL, cfg.Scraper.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", cfg.Scraper.SeedURL, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents scraped from %s", cfg.Scraper.SeedURL)
	}
	fmt.Printf("Scraped %d pages successfully\n", len(docs))

	split := chunker.NewSplitter(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	var chunks []store.Chunk
	var texts []string
	for _, d := range docs {
		for _, c := range split.Split(d.Content, d.Source) {
			chunks = append(chunks, store.Chunk{Content: c.Text, Source: c.Source})
			texts = append(texts, c.Text)
		}
	}
	fmt.Printf("Created %d text chunks\n", len(chunks))

	fmt.Println("Creating embeddings...")
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embs, err := emb.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		vectors = append(vectors, embs...)
	}

	ix, err := store.Create(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer ix.Close()

	if err := ix.Rebuild(emb.Model(), chunks, vectors); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	fmt.Printf("Saved index to %s\n", cfg.IndexPath)

	return &Stats{Documents: len(docs), Chunks: len(chunks)}, nil
}
