// Package docparse converts raw document bytes into per-page text blocks by
// calling a remote layout analysis service (Document Intelligence wire
// format, prebuilt-layout model) and flattening the result.
package docparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"golang.org/x/time/rate"
)

const (
	defaultModelID    = "prebuilt-layout"
	defaultAPIVersion = "2023-07-31"
	defaultPollEvery  = 2 * time.Second
)

// Client calls the layout analysis service. Analysis is asynchronous on the
// service side: submit returns an operation URL which is polled until the
// operation completes. Polls are paced by a rate limiter so a burst of
// ingestions cannot hammer the service.
type Client struct {
	endpoint   string
	apiKey     string
	modelID    string
	apiVersion string
	http       *http.Client
	poll       *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPollInterval overrides how often the operation status is polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.poll = rate.NewLimiter(rate.Every(d), 1) }
}

// WithModel overrides the analysis model id.
func WithModel(modelID string) Option {
	return func(c *Client) { c.modelID = modelID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a layout analysis client for the given service endpoint.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		modelID:    defaultModelID,
		apiVersion: defaultAPIVersion,
		http:       &http.Client{Timeout: 60 * time.Second},
		poll:       rate.NewLimiter(rate.Every(defaultPollEvery), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParsePages analyzes a document and returns its flattened page blocks.
// A service or network failure is fatal to the caller's ingestion request;
// there is no retry here.
func (c *Client) ParsePages(ctx context.Context, content []byte, contentType string) ([]domain.PageBlock, error) {
	res, err := c.analyze(ctx, content, contentType)
	if err != nil {
		return nil, err
	}
	return Pages(res), nil
}

// analyze submits the document and polls the returned operation to completion.
func (c *Client) analyze(ctx context.Context, content []byte, contentType string) (*AnalyzeResult, error) {
	opURL, err := c.submit(ctx, content, contentType)
	if err != nil {
		return nil, err
	}

	for {
		if err := c.poll.Wait(ctx); err != nil {
			return nil, err
		}

		op, err := c.operation(ctx, opURL)
		if err != nil {
			return nil, err
		}

		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return nil, fmt.Errorf("docparse: operation succeeded without a result")
			}
			return op.AnalyzeResult, nil
		case "failed":
			if op.Error != nil {
				return nil, fmt.Errorf("docparse: analysis failed: %s: %s", op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("docparse: analysis failed")
		case "notStarted", "running":
			c.logger.Debug("docparse: analysis in progress", "status", op.Status)
		default:
			return nil, fmt.Errorf("docparse: unknown operation status %q", op.Status)
		}
	}
}

func (c *Client) submit(ctx context.Context, content []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.endpoint, c.modelID, c.apiVersion)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("docparse: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("docparse: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("docparse: submit: status %d: %s", resp.StatusCode, body)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("docparse: submit: missing Operation-Location header")
	}
	return opURL, nil
}

func (c *Client) operation(ctx context.Context, opURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("docparse: build poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docparse: poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("docparse: poll: status %d: %s", resp.StatusCode, body)
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("docparse: decode operation: %w", err)
	}
	return &op, nil
}
