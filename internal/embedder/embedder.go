package embedder

import "context"

// Embedder converts text into fixed-dimension vectors. Implementations must
// be deterministic for a given model: the same text always embeds to the
// same vector, and every vector has the same length.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle embeds a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Model returns the model identifier, recorded in the index metadata.
	Model() string
}
