// Package rag orchestrates retrieval-augmented answers. It embeds the user's
// prompt, searches the vector store, filters hits by relevance, and either
// answers from document context with citations or falls back to plain chat
// for generic prompts.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
)

// Embedder embeds a query string.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel produces a completion for one prompt.
type ChatModel interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Searcher abstracts vector similarity search.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error)
}

// Options configures retrieval behaviour.
type Options struct {
	TopK               int
	RelevanceThreshold float32
	SearchTimeout      time.Duration
}

// DefaultOptions returns the retrieval defaults.
func DefaultOptions() Options {
	return Options{
		TopK:               3,
		RelevanceThreshold: 0.3,
		SearchTimeout:      5 * time.Second,
	}
}

// Answer is the outcome of one chat turn.
type Answer struct {
	Text string `json:"answer"`
	// Used holds the chunks the answer was grounded on; empty for generic
	// replies.
	Used []domain.RetrievedChunk `json:"-"`
}

// Service runs the question-answering pipeline.
type Service struct {
	embed  Embedder
	chat   ChatModel
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New wires a Service. Zero-valued opts fields fall back to defaults.
func New(embed Embedder, chat ChatModel, search Searcher, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.RelevanceThreshold == 0 {
		opts.RelevanceThreshold = def.RelevanceThreshold
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embed:  embed,
		chat:   chat,
		search: search,
		opts:   opts,
		logger: logger.With("component", "rag"),
	}
}

// Chat answers one prompt. Invalid prompts fail with domain.ErrInvalidPrompt
// before any upstream call.
func (s *Service) Chat(ctx context.Context, prompt string) (*Answer, error) {
	if err := domain.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	vector, err := s.embed.EmbedQuery(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	hits, err := s.search.Search(searchCtx, vector, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	relevant := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		s.logger.DebugContext(ctx, "retrieved chunk", "source", hit.Source, "score", hit.Score)
		if hit.Score > s.opts.RelevanceThreshold {
			relevant = append(relevant, hit)
		}
	}

	if len(relevant) == 0 || Classify(prompt) == IntentGeneric {
		s.logger.InfoContext(ctx, "answering without document context",
			"relevant", len(relevant), "intent", Classify(prompt).String())
		text, err := s.chat.Reply(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("rag: chat: %w", err)
		}
		return &Answer{Text: text}, nil
	}

	text, err := s.chat.Reply(ctx, buildPrompt(prompt, relevant))
	if err != nil {
		return nil, fmt.Errorf("rag: chat: %w", err)
	}
	s.logger.InfoContext(ctx, "answered from documents", "chunks", len(relevant))
	return &Answer{Text: text, Used: relevant}, nil
}

// buildContext renders retrieved chunks as numbered, source-attributed
// segments.
func buildContext(chunks []domain.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		source := c.Source
		if source == "" {
			source = "Unknown"
		}
		parts[i] = fmt.Sprintf("[Document %d - Source: %s, Page: %d]\n%s", i+1, source, c.PageNo, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

const promptTemplate = `You are a helpful AI assistant. Based on the following context from the documents, please answer the question.

IMPORTANT: When using information from the documents, include inline citations in your response using this format: [Source: filename, Page X]
For example: "The total amount is $1,234.56 [Source: Invoice 90389740.pdf, Page 1]"

If the context is relevant, use it to provide a detailed answer with citations.
If the answer cannot be found in the context but you can answer based on your general knowledge, provide a helpful response without citations.

Context:
%s

Question: %s

Answer:`

func buildPrompt(question string, chunks []domain.RetrievedChunk) string {
	return fmt.Sprintf(promptTemplate, buildContext(chunks), question)
}
