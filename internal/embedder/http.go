package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint. It also
// understands the Ollama-native response shape, so a local Ollama instance
// works as a drop-in provider.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTP creates an embedder targeting baseURL (e.g. http://localhost:11434/v1
// or https://api.openai.com/v1). apiKey may be empty for local providers.
func NewHTTP(baseURL, apiKey, model string) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Model returns the configured model name.
func (e *HTTPEmbedder) Model() string { return e.model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	// OpenAI-compatible shape.
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape.
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends a batch of texts and returns their embeddings. The returned
// slice has the same length and order as the input.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	vectors := result.Embeddings
	if len(result.Data) > 0 {
		vectors = make([][]float32, len(result.Data))
		for i, d := range result.Data {
			vectors[i] = d.Embedding
		}
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// EmbedSingle embeds a single text and returns the embedding vector.
func (e *HTTPEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	results, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
