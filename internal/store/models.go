package store

// Chunk is a text chunk staged for indexing, tagged with the URL of the
// page it was extracted from.
type Chunk struct {
	Content string
	Source  string
}

// SearchResult is a stored chunk paired with its distance to a query
// vector. Results are returned in ascending distance order, so the slice
// index is the zero-based rank.
type SearchResult struct {
	Content  string
	Source   string
	Distance float64
}
