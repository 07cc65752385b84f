// Package ingest runs uploaded documents through the indexing pipeline:
// store the raw file, parse it into pages, chunk, embed, and upsert into the
// vector store. Ingestion is idempotent per source filename.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/DocQueryAI/docquery-mvp/pkg/fn"
)

// Blob stores raw uploaded files.
type Blob interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// Parser extracts page text from a document's bytes.
type Parser interface {
	ParsePages(ctx context.Context, content []byte, contentType string) ([]domain.PageBlock, error)
}

// Embedder turns chunk texts into embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the vector store surface the pipeline needs.
type Store interface {
	ExistsSource(ctx context.Context, source string) (bool, error)
	Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) error
	EnsureSourceIndex(ctx context.Context) error
}

// Deps holds the pipeline's external collaborators.
type Deps struct {
	Blob     Blob
	Parser   Parser
	Embedder Embedder
	Store    Store
	Logger   *slog.Logger
}

// Service runs the ingestion pipeline. Concurrent ingests of the same
// filename are serialized so the exists-check and the writes cannot
// interleave.
type Service struct {
	deps     Deps
	pipeline fn.Stage[Document, Result]
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*sourceLock
}

type sourceLock struct {
	sync.Mutex
	refs int
}

// NewService wires the pipeline stages.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Service{
		deps:     deps,
		logger:   deps.Logger.With("component", "ingest"),
		inflight: make(map[string]*sourceLock),
	}

	upload := fn.TracedStage("ingest.upload", s.uploadStage())
	parse := fn.TracedStage("ingest.parse", s.parseStage())
	chunk := fn.TracedStage("ingest.chunk", chunkStage)
	embed := fn.TracedStage("ingest.embed", fn.RetryStage(fn.DefaultRetry, s.embedStage()))
	store := fn.TracedStage("ingest.store", s.storeStage())

	s.pipeline = fn.Then(fn.Then(fn.Then(fn.Then(upload, parse), chunk), embed), store)
	return s
}

// Ingest runs one document through the pipeline. A filename that is already
// indexed returns StatusSkipped without touching storage.
func (s *Service) Ingest(ctx context.Context, doc Document) (Result, error) {
	if err := domain.ValidateFilename(doc.Filename); err != nil {
		return Result{}, err
	}

	unlock := s.lockSource(doc.Filename)
	defer unlock()

	exists, err := s.deps.Store.ExistsSource(ctx, doc.Filename)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: exists check for %s: %w", doc.Filename, err)
	}
	if exists {
		s.logger.InfoContext(ctx, "document already indexed, skipping", "filename", doc.Filename)
		return Result{Filename: doc.Filename, Status: StatusSkipped}, nil
	}

	res, err := s.pipeline(ctx, doc).Unwrap()
	if err != nil {
		return Result{}, err
	}
	s.logger.InfoContext(ctx, "document indexed", "filename", doc.Filename, "chunks", res.Chunks)
	return res, nil
}

// lockSource takes the per-filename mutex, creating it on first use and
// dropping it when the last holder releases.
func (s *Service) lockSource(source string) func() {
	s.mu.Lock()
	l, ok := s.inflight[source]
	if !ok {
		l = &sourceLock{}
		s.inflight[source] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.inflight, source)
		}
		s.mu.Unlock()
	}
}

// --- Pipeline stages ---

// uploadStage writes the raw file to blob storage before any processing, so
// the original bytes survive even if a later stage fails.
func (s *Service) uploadStage() fn.Stage[Document, Document] {
	return func(ctx context.Context, doc Document) fn.Result[Document] {
		if err := s.deps.Blob.Put(ctx, doc.Filename, doc.ContentType, doc.Data); err != nil {
			return fn.Err[Document](fmt.Errorf("ingest: upload %s: %w", doc.Filename, err))
		}
		return fn.Ok(doc)
	}
}

func (s *Service) parseStage() fn.Stage[Document, parsedDoc] {
	return func(ctx context.Context, doc Document) fn.Result[parsedDoc] {
		pages, err := s.deps.Parser.ParsePages(ctx, doc.Data, doc.ContentType)
		if err != nil {
			return fn.Err[parsedDoc](fmt.Errorf("ingest: parse %s: %w", doc.Filename, err))
		}
		return fn.Ok(parsedDoc{Document: doc, Pages: pages})
	}
}

var chunkStage fn.Stage[parsedDoc, chunkedDoc] = func(_ context.Context, doc parsedDoc) fn.Result[chunkedDoc] {
	return fn.Ok(chunkedDoc{
		parsedDoc: doc,
		Chunks:    chunkPages(doc.Filename, doc.Pages),
	})
}

func (s *Service) embedStage() fn.Stage[chunkedDoc, embeddedDoc] {
	return func(ctx context.Context, doc chunkedDoc) fn.Result[embeddedDoc] {
		if len(doc.Chunks) == 0 {
			return fn.Ok(embeddedDoc{parsedDoc: doc.parsedDoc})
		}

		texts := make([]string, len(doc.Chunks))
		for i, c := range doc.Chunks {
			texts[i] = c.Text
		}
		vecs, err := s.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[embeddedDoc](fmt.Errorf("ingest: embed %s: %w", doc.Filename, err))
		}
		if len(vecs) != len(doc.Chunks) {
			return fn.Errf[embeddedDoc]("ingest: embed %s: got %d vectors for %d chunks", doc.Filename, len(vecs), len(doc.Chunks))
		}

		embedded := make([]domain.EmbeddedChunk, len(doc.Chunks))
		for i, c := range doc.Chunks {
			embedded[i] = domain.EmbeddedChunk{Chunk: c, Embedding: vecs[i]}
		}
		return fn.Ok(embeddedDoc{parsedDoc: doc.parsedDoc, Chunks: embedded})
	}
}

func (s *Service) storeStage() fn.Stage[embeddedDoc, Result] {
	return func(ctx context.Context, doc embeddedDoc) fn.Result[Result] {
		if len(doc.Chunks) == 0 {
			s.logger.WarnContext(ctx, "document produced no chunks", "filename", doc.Filename)
			return fn.Ok(Result{Filename: doc.Filename, Status: StatusIndexed})
		}

		if err := s.deps.Store.Upsert(ctx, doc.Chunks); err != nil {
			return fn.Err[Result](fmt.Errorf("ingest: store %s: %w", doc.Filename, err))
		}
		if err := s.deps.Store.EnsureSourceIndex(ctx); err != nil {
			// The points are already written; a missing payload index only
			// slows source lookups, so log and carry on.
			s.logger.WarnContext(ctx, "ensure source index", "error", err)
		}
		return fn.Ok(Result{
			Filename: doc.Filename,
			Status:   StatusIndexed,
			Chunks:   len(doc.Chunks),
		})
	}
}
