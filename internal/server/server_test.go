package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitechat/internal/llm"
	"sitechat/internal/rag"
	"sitechat/internal/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, _ := f.Embed(ctx, []string{text})
	return vecs[0], nil
}

func (fakeEmbedder) Model() string { return "fake-embed" }

type fakeSearcher struct {
	results []store.SearchResult
}

func (f *fakeSearcher) Search(_ []float32, _ int) ([]store.SearchResult, error) {
	return f.results, nil
}

type fakeLLM struct {
	answer string
	err    error
	msgs   []llm.Message
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.msgs = messages
	return f.answer, f.err
}

func newTestServer(idx rag.Searcher, model llm.Client) *Server {
	return New(&rag.Engine{
		Index:    idx,
		Embedder: fakeEmbedder{},
		LLM:      model,
		SiteName: "Example",
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestRootReportsLiveness(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, true, body["rag_loaded"])
}

func TestRootWithoutIndex(t *testing.T) {
	srv := newTestServer(nil, &fakeLLM{answer: "hi"})

	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["rag_loaded"])
}

func TestHealthDetails(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	ragSystem, ok := body["rag_system"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, ragSystem["initialized"])
	assert.Equal(t, true, ragSystem["vectorstore_loaded"])

	llmStatus, ok := body["llm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, llmStatus["initialized"])
}

func TestGetMsgAnswersWithSources(t *testing.T) {
	idx := &fakeSearcher{results: []store.SearchResult{
		{Content: "We offer consulting.", Source: "https://example.com/services", Distance: 0.1},
	}}
	model := &fakeLLM{answer: "Example offers consulting."}
	srv := newTestServer(idx, model)

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg",
		`{"content": "What services does Example offer?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Example offers consulting.", body["content"])
	assert.Equal(t, "bot", body["role"])
	assert.Equal(t, []any{"https://example.com/services"}, body["sources"])
}

func TestGetMsgEmptyContent(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	for _, payload := range []string{`{"content": ""}`, `{"content": "   "}`} {
		rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["detail"], "empty")
	}
}

func TestGetMsgWithoutIndexIs503(t *testing.T) {
	srv := newTestServer(nil, &fakeLLM{answer: "hi"})

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", `{"content": "hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["detail"], "RAG system not initialized")
}

func TestGetMsgWithoutLLMIs503(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, nil)

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", `{"content": "hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["detail"], "LLM not initialized")
}

func TestGetMsgUpstreamFailureIs500(t *testing.T) {
	model := &fakeLLM{err: errors.New("model overloaded")}
	srv := newTestServer(&fakeSearcher{}, model)

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", `{"content": "hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["detail"], "model overloaded")
}

func TestGetMsgBadJSON(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMsgRequiresPost(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, _ := doRequest(t, srv.Handler(), http.MethodGet, "/getMsg", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetMsgMapsHistoryRoles(t *testing.T) {
	model := &fakeLLM{answer: "hi"}
	srv := newTestServer(&fakeSearcher{}, model)

	payload := `{
		"content": "and now?",
		"conversation_history": [
			{"role": "user", "content": "first question"},
			{"role": "bot", "content": "first answer"}
		]
	}`
	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/getMsg", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	// system, two history turns, current question
	require.Len(t, model.msgs, 4)
	assert.Equal(t, llm.RoleUser, model.msgs[1].Role)
	assert.Equal(t, "first question", model.msgs[1].Content)
	assert.Equal(t, llm.RoleAssistant, model.msgs[2].Role)
	assert.Equal(t, "first answer", model.msgs[2].Content)
	assert.Equal(t, "and now?", model.msgs[3].Content)
}

func TestResetAlwaysSucceeds(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, _ := doRequest(t, srv.Handler(), http.MethodOptions, "/getMsg", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownPathIs404(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeLLM{answer: "hi"})

	rec, _ := doRequest(t, srv.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
