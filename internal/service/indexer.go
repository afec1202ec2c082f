package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pdfrag/internal/applog"
	"pdfrag/internal/domain"
	"pdfrag/internal/index"
	"pdfrag/internal/vectorstore"
)

// IndexerOptions configures an Indexer.
type IndexerOptions struct {
	// Extensions selects files by lower-case extension, e.g. ".pdf".
	Extensions       []string
	SummarySentences int
	// RequestedDimensions is recorded in the manifest so queries ask the
	// embedding model for the same output size.
	RequestedDimensions int
	Chunker             index.ChunkerInfo
	Backend             index.BackendInfo
	// Remote, when set, receives every file's points as the index is built.
	Remote vectorstore.Storage
	// DropCollection removes a remote collection that a replaced index
	// pointed at. It runs only after the new index is saved.
	DropCollection func(ctx context.Context, collection string) error
}

// FileReport is the outcome for one input file.
type FileReport struct {
	Name    string
	Chunks  int
	Skipped bool
	Reason  string
}

// IndexReport summarises an IndexFolder run.
type IndexReport struct {
	Folder  string
	OutDir  string
	Files   []FileReport
	Indexed int
	Skipped int
	Chunks  int
	Elapsed time.Duration
}

// Indexer builds an index from a folder of documents.
type Indexer struct {
	extractor  domain.Extractor
	chunker    domain.Chunker
	embedder   domain.Embedder
	summarizer domain.Summarizer
	opts       IndexerOptions
}

func NewIndexer(extractor domain.Extractor, chunker domain.Chunker, embedder domain.Embedder, summarizer domain.Summarizer, opts IndexerOptions) *Indexer {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".pdf"}
	}
	if opts.Backend.Type == "" {
		opts.Backend.Type = "memory"
	}
	return &Indexer{extractor: extractor, chunker: chunker, embedder: embedder, summarizer: summarizer, opts: opts}
}

type document struct {
	name    string
	chunks  []domain.Chunk
	summary string
}

// IndexFolder indexes the matching files directly inside folder and saves
// the result to outDir. Files that cannot be read are skipped and reported.
// On error nothing is written to outDir.
func (ix *Indexer) IndexFolder(ctx context.Context, folder, outDir string) (*IndexReport, error) {
	start := time.Now()
	files, err := ix.scan(folder)
	if err != nil {
		return nil, err
	}
	applog.Info("[index] found files", "folder", folder, "count", len(files))

	report := &IndexReport{Folder: folder, OutDir: outDir}
	var docs []document
	var corpus []string
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewError(domain.KindIndexBuild, "indexing cancelled", err)
		}
		doc, reason := ix.prepare(path)
		if reason != "" {
			applog.Warn("[index] skipping file", "source", doc.name, "reason", reason)
			report.Files = append(report.Files, FileReport{Name: doc.name, Skipped: true, Reason: reason})
			report.Skipped++
			continue
		}
		applog.Info("[index] file processed", "source", doc.name, "chunks", len(doc.chunks))
		docs = append(docs, doc)
		for _, c := range doc.chunks {
			corpus = append(corpus, c.Text)
		}
	}
	if len(docs) == 0 {
		return nil, domain.NewError(domain.KindIndexBuild,
			fmt.Sprintf("no text extracted from %d file(s) in %s", len(files), folder), nil)
	}

	if err := ix.embedder.Prepare(corpus); err != nil {
		return nil, domain.NewError(domain.KindIndexBuild, "prepare embedder", err)
	}
	combined, err := ix.build(ctx, docs)
	if err != nil {
		return nil, err
	}
	previous := previousBackend(outDir)
	if err := combined.Save(outDir); err != nil {
		ix.dropRemote()
		return nil, err
	}
	ix.retire(ctx, previous, combined.Manifest.Backend)

	for _, d := range docs {
		report.Files = append(report.Files, FileReport{Name: d.name, Chunks: len(d.chunks)})
	}
	sort.SliceStable(report.Files, func(i, j int) bool { return report.Files[i].Name < report.Files[j].Name })
	report.Indexed = len(docs)
	report.Chunks = combined.Len()
	report.Elapsed = time.Since(start)
	applog.Info("[index] saved", "path", outDir, "files", report.Indexed, "skipped", report.Skipped, "chunks", report.Chunks)
	return report, nil
}

// prepare extracts, chunks and summarises one file. A non-empty reason
// means the file is skipped.
func (ix *Indexer) prepare(path string) (document, string) {
	doc := document{name: filepath.Base(path)}
	text, err := ix.extractor.Extract(path)
	if err != nil {
		return doc, err.Error()
	}
	if strings.TrimSpace(text) == "" {
		return doc, "no text extracted"
	}
	doc.chunks = ix.chunker.Chunk(text, doc.name)
	if len(doc.chunks) == 0 {
		return doc, "no chunks produced"
	}
	if ix.summarizer != nil {
		summary, err := ix.summarizer.Summarize(text, ix.opts.SummarySentences)
		if err != nil {
			applog.Warn("[index] summary failed", "source", doc.name, "error", err)
		}
		doc.summary = summary
	}
	return doc, ""
}

// build embeds each document into its own sub-index and merges them.
func (ix *Indexer) build(ctx context.Context, docs []document) (*index.Index, error) {
	combined := index.New(index.Manifest{
		Embedder: index.EmbedderInfo{
			Type:                ix.embedder.Name(),
			Model:               ix.embedder.Model(),
			Dimension:           ix.embedder.Dimension(),
			RequestedDimensions: ix.opts.RequestedDimensions,
		},
		Chunker: ix.opts.Chunker,
		Backend: ix.opts.Backend,
	})

	remoteReady := false
	fail := func(err error) (*index.Index, error) {
		if remoteReady {
			ix.dropRemote()
		}
		return nil, err
	}

	for _, d := range docs {
		texts := make([]string, len(d.chunks))
		for i, c := range d.chunks {
			texts[i] = c.Text
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fail(domain.NewError(domain.KindIndexBuild, "embed "+d.name, err))
		}

		sub := index.New(combined.Manifest)
		if err := sub.Add(d.chunks, vectors); err != nil {
			return fail(domain.NewError(domain.KindIndexBuild, "build sub-index for "+d.name, err))
		}
		sub.AddSource(index.SourceInfo{Name: d.name, Chunks: len(d.chunks), Summary: d.summary})
		if err := combined.Merge(sub); err != nil {
			return fail(domain.NewError(domain.KindIndexBuild, "merge "+d.name, err))
		}

		if ix.opts.Remote != nil {
			if !remoteReady {
				if err := ix.opts.Remote.Init(ctx, combined.Manifest.Embedder.Dimension); err != nil {
					return fail(domain.NewError(domain.KindIndexBuild, "create remote collection", err))
				}
				remoteReady = true
			}
			if err := ix.opts.Remote.Upsert(ctx, d.chunks, vectors); err != nil {
				return fail(domain.NewError(domain.KindIndexBuild, "upsert "+d.name, err))
			}
		}
	}

	if se, ok := ix.embedder.(domain.StatefulEmbedder); ok {
		state, err := se.State()
		if err != nil {
			return fail(domain.NewError(domain.KindIndexBuild, "serialise embedder state", err))
		}
		combined.SetEmbedderState(state)
	}
	combined.Manifest.CreatedAt = time.Now().UTC()
	return combined, nil
}

func (ix *Indexer) dropRemote() {
	if ix.opts.Remote == nil {
		return
	}
	if err := ix.opts.Remote.Clear(context.Background()); err != nil {
		applog.Warn("[index] failed to drop remote collection", "error", err)
	}
}

// previousBackend reports where the index currently in dir keeps its
// vectors, or the zero value when there is none.
func previousBackend(dir string) index.BackendInfo {
	old, err := index.Load(dir)
	if err != nil {
		return index.BackendInfo{}
	}
	return old.Manifest.Backend
}

// retire drops the remote collection of a replaced index.
func (ix *Indexer) retire(ctx context.Context, old, current index.BackendInfo) {
	if ix.opts.DropCollection == nil || old.Type != "qdrant" || old.Collection == "" {
		return
	}
	if current.Type == old.Type && current.Collection == old.Collection {
		return
	}
	if err := ix.opts.DropCollection(ctx, old.Collection); err != nil {
		applog.Warn("[index] failed to drop replaced collection", "collection", old.Collection, "error", err)
		return
	}
	applog.Info("[index] dropped replaced collection", "collection", old.Collection)
}

// scan lists matching files directly inside folder, sorted by name.
func (ix *Indexer) scan(folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("folder %s does not exist", folder), err)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, "read folder "+folder, err)
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("%s is not a folder", folder), nil)
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, "read folder "+folder, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !ix.wanted(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	if len(files) == 0 {
		return nil, domain.NewError(domain.KindNotFound,
			fmt.Sprintf("no %s files found in %s", strings.Join(ix.opts.Extensions, "/"), folder), nil)
	}
	return files, nil
}

func (ix *Indexer) wanted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range ix.opts.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
