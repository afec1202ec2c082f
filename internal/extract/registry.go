package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pdfrag/internal/domain"
)

// Registry maps file extensions to parsers and implements domain.Extractor.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in PDF, DOCX, Markdown and
// plain text parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(&PDFParser{})
	r.Register(&DOCXParser{})
	r.Register(&MarkdownParser{})
	r.Register(&PlainTextParser{})
	return r
}

// Register adds p for every extension it supports, replacing earlier parsers.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.SupportedTypes() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Supports reports whether a parser is registered for path's extension.
func (r *Registry) Supports(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parsers[extOf(path)]
	return ok
}

// SupportedTypes returns the registered extensions, sorted.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		types = append(types, ext)
	}
	sort.Strings(types)
	return types
}

// Extract reads the file at path and returns its text. A readable document
// with no text yields "" and a nil error. Everything else that goes wrong is
// an ExtractionFailure.
func (r *Registry) Extract(path string) (string, error) {
	r.mu.RLock()
	p, ok := r.parsers[extOf(path)]
	r.mu.RUnlock()
	name := filepath.Base(path)
	if !ok {
		return "", domain.NewError(domain.KindExtraction,
			fmt.Sprintf("unsupported file type %q for %s (supported: %s)", extOf(path), name, strings.Join(r.SupportedTypes(), ", ")), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", domain.NewError(domain.KindExtraction, "open "+name, err)
	}
	defer f.Close()

	text, err := p.Parse(f, name)
	if err != nil {
		return "", domain.NewError(domain.KindExtraction, "extract "+name, err)
	}
	return text, nil
}

var _ domain.Extractor = (*Registry)(nil)
