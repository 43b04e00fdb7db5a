package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitechat/internal/config"
	"sitechat/internal/llm"
	"sitechat/internal/rag"
	"sitechat/internal/store"
)

// keywordEmbedder maps each text to a presence vector over fixed keywords,
// so retrieval ranking in tests is fully deterministic.
type keywordEmbedder struct {
	keywords []string
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{keywords: []string{"consulting", "widgets", "contact"}}
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.keywords))
		lower := strings.ToLower(text)
		for j, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *keywordEmbedder) Model() string { return "keyword-test" }

func page(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body><p>%s</p></body></html>`, title, body)
}

func filler(topic string) string {
	return strings.Repeat("This page talks about "+topic+" in great detail. ", 5)
}

func newTestSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page("Home",
			filler("widgets")+`<a href="/services">Services</a> <a href="/contact">Contact</a>`))
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Services", filler("consulting")))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Contact", filler("contact")))
	})
	return httptest.NewServer(mux)
}

func TestBuildThenSearch(t *testing.T) {
	site := newTestSite()
	defer site.Close()

	cfg := config.Default()
	cfg.Scraper.SeedURL = site.URL
	cfg.Scraper.MaxPages = 10
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")

	emb := newKeywordEmbedder()
	stats, err := Build(context.Background(), cfg, emb)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Documents)
	assert.GreaterOrEqual(t, stats.Chunks, 3)

	ix, err := store.Open(cfg.IndexPath)
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, stats.Chunks, mustCount(t, ix))
	assert.Equal(t, "keyword-test", mustMeta(t, ix))

	query, err := emb.EmbedSingle(context.Background(), "What consulting do you offer?")
	require.NoError(t, err)
	results, err := ix.Search(query, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, site.URL+"/services", results[0].Source)
	assert.Contains(t, strings.ToLower(results[0].Content), "consulting")
}

func TestBuildThenRespond(t *testing.T) {
	site := newTestSite()
	defer site.Close()

	cfg := config.Default()
	cfg.Scraper.SeedURL = site.URL
	cfg.Scraper.MaxPages = 10
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")

	emb := newKeywordEmbedder()
	_, err := Build(context.Background(), cfg, emb)
	require.NoError(t, err)

	ix, err := store.Open(cfg.IndexPath)
	require.NoError(t, err)
	defer ix.Close()

	model := &recordingLLM{answer: "We offer consulting."}
	engine := &rag.Engine{
		Index:    ix,
		Embedder: emb,
		LLM:      model,
		SiteName: "Acme",
	}

	answer, sources, err := engine.Respond(context.Background(), "Tell me about your consulting", nil)
	require.NoError(t, err)

	assert.Equal(t, "We offer consulting.", answer)
	require.NotEmpty(t, sources)
	assert.Equal(t, site.URL+"/services", sources[0])
	assert.Contains(t, model.msgs[0].Content, "[Source 1: "+site.URL+"/services]")
}

func TestBuildFailsOnUnreachableSite(t *testing.T) {
	cfg := config.Default()
	cfg.Scraper.SeedURL = "http://127.0.0.1:1/"
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")

	_, err := Build(context.Background(), cfg, newKeywordEmbedder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no documents scraped")
}

type recordingLLM struct {
	answer string
	msgs   []llm.Message
}

func (f *recordingLLM) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.msgs = messages
	return f.answer, nil
}

func mustCount(t *testing.T, ix *store.Index) int {
	t.Helper()
	n, err := ix.Count()
	require.NoError(t, err)
	return n
}

func mustMeta(t *testing.T, ix *store.Index) string {
	t.Helper()
	model, err := ix.EmbeddingModel()
	require.NoError(t, err)
	return model
}
