package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sitechat/internal/embedder"
	"sitechat/internal/llm"
	"sitechat/internal/store"
)

// ErrEmptyInput is returned when the user message is blank after trimming.
// No retrieval or model call happens in that case.
var ErrEmptyInput = errors.New("message content cannot be empty")

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// historyWindow is the number of trailing history messages included in the
// prompt (3 exchanges). Older turns stay with the caller but are not sent.
const historyWindow = 6

const systemPromptTemplate = `You are a helpful and friendly AI assistant for %[1]s.
Use the following context from the %[1]s website to answer the user's question accurately.
If the answer is not in the context, say so politely and provide a general helpful response.

Context from the %[1]s website:
%[2]s

Be concise, friendly, professional, and accurate in your responses.`

// Searcher answers nearest-neighbor queries over the indexed chunks.
// *store.Index satisfies it; tests substitute fakes.
type Searcher interface {
	Search(queryEmbedding []float32, k int) ([]store.SearchResult, error)
}

// FormatContext turns ranked results into a provenance-tagged context block
// plus the source URLs in rank order. Empty results yield an empty block.
func FormatContext(results []store.SearchResult) (string, []string) {
	if len(results) == 0 {
		return "", nil
	}
	sections := make([]string, len(results))
	sources := make([]string, len(results))
	for i, r := range results {
		sections[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, r.Source, r.Content)
		sources[i] = r.Source
	}
	return strings.Join(sections, "\n\n"), sources
}

// BuildMessages constructs the message sequence for the model: a system
// instruction embedding the context, the most recent history oldest-first,
// then the new user message.
func BuildMessages(siteName, contextBlock string, history []llm.Message, question string) []llm.Message {
	msgs := make([]llm.Message, 0, historyWindow+2)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, siteName, contextBlock),
	})
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return msgs
}

// Engine answers a user message grounded in retrieved site context. It
// holds no per-session state; each Respond call is self-contained given the
// history it is passed.
type Engine struct {
	Index    Searcher
	Embedder embedder.Embedder
	LLM      llm.Client
	SiteName string
	TopK     int
}

// Respond retrieves context for userMessage, composes the prompt with the
// given history, and invokes the model. It returns the answer and the
// source URLs of the retrieved chunks. A blank message fails with
// ErrEmptyInput before any retrieval or model call.
func (e *Engine) Respond(ctx context.Context, userMessage string, history []llm.Message) (string, []string, error) {
	question := strings.TrimSpace(userMessage)
	if question == "" {
		return "", nil, ErrEmptyInput
	}

	var results []store.SearchResult
	if e.Index != nil {
		vec, err := e.Embedder.EmbedSingle(ctx, question)
		if err != nil {
			return "", nil, fmt.Errorf("embed query: %w", err)
		}
		k := e.TopK
		if k <= 0 {
			k = DefaultTopK
		}
		results, err = e.Index.Search(vec, k)
		if err != nil {
			return "", nil, fmt.Errorf("search index: %w", err)
		}
	}

	contextBlock, sources := FormatContext(results)
	msgs := BuildMessages(e.SiteName, contextBlock, history, question)

	answer, err := e.LLM.Generate(ctx, msgs)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}
	return answer, sources, nil
}
