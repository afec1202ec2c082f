package domain

import "context"

// Chunk is a bounded slice of source text tagged with the file it came from.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
	Index  int    `json:"index"`
}

// SearchResult is a retrieved chunk with its distance to the query.
// Lower scores mean closer matches.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Extractor turns a document on disk into plain text.
// An empty string with a nil error means the document has no text layer.
type Extractor interface {
	Extract(path string) (string, error)
}

// Chunker splits the text of one source into chunks suitable for indexing.
type Chunker interface {
	Chunk(text, source string) []Chunk
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Model() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StatefulEmbedder is an Embedder whose vector space depends on state built
// during Prepare. The state is persisted with the index so queries are
// embedded in the same space as the chunks.
type StatefulEmbedder interface {
	Embedder
	State() ([]byte, error)
	Restore(state []byte) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
