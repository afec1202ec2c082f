// Package index holds the persisted similarity index: chunks, their vectors,
// embedder state and a manifest, stored in a bbolt file inside a directory.
package index

import (
	"fmt"
	"time"

	"pdfrag/internal/domain"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

// EmbedderInfo identifies the embedder that produced the vectors.
type EmbedderInfo struct {
	Type      string `json:"type"`
	Model     string `json:"model,omitempty"`
	Dimension int    `json:"dimension"`
	// RequestedDimensions is the output size asked of a remote model, 0 for
	// the model default. Queries must ask for the same size.
	RequestedDimensions int `json:"requested_dimensions,omitempty"`
}

// ChunkerInfo records the chunking parameters used at build time.
type ChunkerInfo struct {
	Type              string `json:"type"`
	ChunkSize         int    `json:"chunk_size,omitempty"`
	ChunkOverlap      int    `json:"chunk_overlap,omitempty"`
	SentencesPerChunk int    `json:"sentences_per_chunk,omitempty"`
	OverlapSentences  int    `json:"overlap_sentences,omitempty"`
}

// SourceInfo describes one indexed file.
type SourceInfo struct {
	Name    string `json:"name"`
	Chunks  int    `json:"chunks"`
	Summary string `json:"summary,omitempty"`
}

// BackendInfo names the store that serves searches for this index.
type BackendInfo struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
}

// Manifest describes an index.
type Manifest struct {
	Version   int          `json:"version"`
	Embedder  EmbedderInfo `json:"embedder"`
	Chunker   ChunkerInfo  `json:"chunker"`
	Chunks    int          `json:"chunks"`
	Sources   []SourceInfo `json:"sources"`
	Backend   BackendInfo  `json:"backend"`
	CreatedAt time.Time    `json:"created_at"`
}

// Index is an in-memory index. It is built once and read-only after Save or
// Load.
type Index struct {
	Manifest Manifest

	chunks  []domain.Chunk
	vectors [][]float32
	state   []byte
}

// New returns an empty index carrying m.
func New(m Manifest) *Index {
	m.Version = FormatVersion
	m.Chunks = 0
	m.Sources = nil
	return &Index{Manifest: m}
}

// Add appends chunks with their vectors. The first vector fixes the
// dimension when the manifest does not name one.
func (ix *Index) Add(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("index add: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	for _, v := range vectors {
		if ix.Manifest.Embedder.Dimension == 0 {
			ix.Manifest.Embedder.Dimension = len(v)
		}
		if len(v) != ix.Manifest.Embedder.Dimension {
			return fmt.Errorf("index add: vector dimension %d, index dimension %d", len(v), ix.Manifest.Embedder.Dimension)
		}
	}
	ix.chunks = append(ix.chunks, chunks...)
	ix.vectors = append(ix.vectors, vectors...)
	ix.Manifest.Chunks = len(ix.chunks)
	return nil
}

// AddSource records per-file statistics.
func (ix *Index) AddSource(s SourceInfo) {
	ix.Manifest.Sources = append(ix.Manifest.Sources, s)
}

// Merge appends other's chunks, vectors and sources. Both indexes must come
// from the same embedder.
func (ix *Index) Merge(other *Index) error {
	a, b := ix.Manifest.Embedder, other.Manifest.Embedder
	if a.Type != b.Type || a.Model != b.Model {
		return fmt.Errorf("index merge: embedder %s/%s cannot merge %s/%s", a.Type, a.Model, b.Type, b.Model)
	}
	if a.Dimension != 0 && b.Dimension != 0 && a.Dimension != b.Dimension {
		return fmt.Errorf("index merge: dimension %d cannot merge %d", a.Dimension, b.Dimension)
	}
	if err := ix.Add(other.chunks, other.vectors); err != nil {
		return err
	}
	ix.Manifest.Sources = append(ix.Manifest.Sources, other.Manifest.Sources...)
	return nil
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns the indexed chunks in insertion order.
func (ix *Index) Chunks() []domain.Chunk { return ix.chunks }

// Vectors returns the vectors, parallel to Chunks.
func (ix *Index) Vectors() [][]float32 { return ix.vectors }

// SetEmbedderState stores opaque embedder state, such as a TF-IDF vocabulary.
func (ix *Index) SetEmbedderState(state []byte) { ix.state = state }

// EmbedderState returns the state stored with SetEmbedderState.
func (ix *Index) EmbedderState() []byte { return ix.state }
