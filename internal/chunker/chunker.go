package chunker

import "strings"

// Chunk is a bounded slice of a document's text, the atomic unit of
// embedding and retrieval. Source is the URL of the page it came from.
type Chunk struct {
	Text   string
	Source string
}

// separators are tried largest-boundary first when choosing where to end a
// window: paragraph, line, sentence, word. A window with none of these is
// hard-split at the size limit.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter splits document text into overlapping fixed-size windows.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive sizes fall back to the
// defaults of 1000-byte chunks with 200 bytes of overlap.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks content into chunks of at most chunkSize bytes, each
// starting overlap bytes before the previous chunk's end. Content that
// already fits yields exactly one chunk. Every chunk carries source.
func (s *Splitter) Split(content, source string) []Chunk {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []Chunk{{Text: text, Source: source}}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + s.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = s.breakPoint(text, start, end)
		}

		chunks = append(chunks, Chunk{Text: text[start:end], Source: source})
		if end == len(text) {
			break
		}

		next := end - s.overlap
		if next <= start {
			// Window too dense to overlap; move on without it.
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint returns the end of the window starting at start, preferring
// the last occurrence of the largest separator that fits within limit.
func (s *Splitter) breakPoint(text string, start, limit int) int {
	window := text[start:limit]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	return limit
}
