// Package azopenai wraps Azure OpenAI chat and embedding deployments behind
// a small client. Every upstream call goes through a shared rate limiter and
// circuit breaker so a degraded deployment sheds load instead of piling up
// requests.
package azopenai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/DocQueryAI/docquery-mvp/pkg/resilience"
)

// Config carries the Azure endpoint and deployment names. All fields except
// the resilience knobs are required.
type Config struct {
	Endpoint        string
	APIKey          string
	APIVersion      string
	EmbedDeployment string
	ChatDeployment  string

	Limiter resilience.LimiterOpts
	Breaker resilience.BreakerOpts
}

// DefaultLimiter allows a modest steady rate with room for ingestion bursts.
var DefaultLimiter = resilience.LimiterOpts{Rate: 10, Burst: 20}

// Client talks to one Azure OpenAI resource. It serves both the embedding
// deployment (queries and document batches) and the chat deployment.
type Client struct {
	chat     llms.Model
	embedder embeddings.Embedder
	limiter  *resilience.Limiter
	breaker  *resilience.Breaker
	logger   *slog.Logger
}

// New builds a client for cfg. It validates configuration eagerly but does
// not contact the endpoint.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("azopenai: endpoint and api key are required")
	}
	if cfg.EmbedDeployment == "" || cfg.ChatDeployment == "" {
		return nil, fmt.Errorf("azopenai: embed and chat deployments are required")
	}
	if cfg.Limiter.Rate <= 0 {
		cfg.Limiter = DefaultLimiter
	}
	if logger == nil {
		logger = slog.Default()
	}

	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(cfg.Endpoint),
		openai.WithToken(cfg.APIKey),
		openai.WithAPIVersion(cfg.APIVersion),
		openai.WithModel(cfg.ChatDeployment),
		openai.WithEmbeddingModel(cfg.EmbedDeployment),
	)
	if err != nil {
		return nil, fmt.Errorf("azopenai: init: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("azopenai: embedder: %w", err)
	}

	return &Client{
		chat:     llm,
		embedder: embedder,
		limiter:  resilience.NewLimiter(cfg.Limiter),
		breaker:  resilience.NewBreaker(cfg.Breaker),
		logger:   logger.With("component", "azopenai"),
	}, nil
}

// NewWithModels wires explicit chat and embedder implementations.
// Intended for tests.
func NewWithModels(chat llms.Model, embedder embeddings.Embedder) *Client {
	return &Client{
		chat:     chat,
		embedder: embedder,
		limiter:  resilience.NewLimiter(DefaultLimiter),
		breaker:  resilience.NewBreaker(resilience.BreakerOpts{}),
		logger:   slog.Default(),
	}
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.guarded(ctx, "embed_query", func(ctx context.Context) error {
		var err error
		vec, err = c.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("azopenai: embed query: %w", err)
	}
	return vec, nil
}

// EmbedBatch embeds a batch of document chunks in one upstream call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vecs [][]float32
	err := c.guarded(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		vecs, err = c.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("azopenai: embed batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("azopenai: embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Reply sends one prompt to the chat deployment and returns the completion.
func (c *Client) Reply(ctx context.Context, prompt string) (string, error) {
	var out string
	err := c.guarded(ctx, "chat", func(ctx context.Context) error {
		var err error
		out, err = llms.GenerateFromSinglePrompt(ctx, c.chat, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("azopenai: chat: %w", err)
	}
	return out, nil
}

func (c *Client) guarded(ctx context.Context, op string, f func(context.Context) error) error {
	return c.limiter.CallWait(ctx, func(ctx context.Context) error {
		err := c.breaker.Call(ctx, f)
		if err != nil {
			c.logger.WarnContext(ctx, "upstream call failed", "op", op, "error", err)
		}
		return err
	})
}
