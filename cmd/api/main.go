// Package main implements the document Q&A API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DocQueryAI/docquery-mvp/engine/blob"
	"github.com/DocQueryAI/docquery-mvp/engine/docparse"
	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/DocQueryAI/docquery-mvp/engine/ingest"
	"github.com/DocQueryAI/docquery-mvp/engine/rag"
	"github.com/DocQueryAI/docquery-mvp/engine/semantic"
	"github.com/DocQueryAI/docquery-mvp/pkg/azopenai"
	"github.com/DocQueryAI/docquery-mvp/pkg/metrics"
	"github.com/DocQueryAI/docquery-mvp/pkg/mid"
	"github.com/DocQueryAI/docquery-mvp/pkg/natsutil"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to NATS (blob storage) ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("docquery-api"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	blobStore, err := blob.New(ctx, nc, cfg.BlobBucket)
	if err != nil {
		return err
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureCollection(ctx, domain.EmbeddingDims); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	if err := vectorStore.EnsureSourceIndex(ctx); err != nil {
		return fmt.Errorf("ensure source index: %w", err)
	}

	// --- Azure OpenAI (embeddings + chat) ---
	aoai, err := azopenai.New(azopenai.Config{
		Endpoint:        cfg.AOAIEndpoint,
		APIKey:          cfg.AOAIKey,
		APIVersion:      cfg.AOAIVersion,
		EmbedDeployment: cfg.EmbedDeployment,
		ChatDeployment:  cfg.ChatDeployment,
	}, logger)
	if err != nil {
		return err
	}

	// --- Document Intelligence parser ---
	parser := docparse.NewClient(cfg.DocIntelEndpoint, cfg.DocIntelKey, docparse.WithLogger(logger))

	// --- Services ---
	ingestSvc := ingest.NewService(ingest.Deps{
		Blob:     blobStore,
		Parser:   parser,
		Embedder: aoai,
		Store:    vectorStore,
		Logger:   logger,
	})
	ragSvc := rag.New(aoai, aoai, vectorStore, rag.DefaultOptions(), logger)

	// --- HTTP server ---
	reg := metrics.New()
	mux := http.NewServeMux()
	events := &natsEvents{nc: nc, logger: logger}
	newAPI(ragSvc, ingestSvc, blobStore, vectorStore, events, reg, logger).routes(mux)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigins),
		mid.OTel("docquery-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// natsEvents publishes pipeline lifecycle events. Failures are logged, not
// surfaced: events are advisory.
type natsEvents struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func (e *natsEvents) Ingested(ctx context.Context, ev natsutil.IngestedEvent) {
	if err := natsutil.Publish(ctx, e.nc, natsutil.SubjectIngested, ev); err != nil {
		e.logger.WarnContext(ctx, "publish ingested event", "error", err)
	}
}

func (e *natsEvents) Deleted(ctx context.Context, ev natsutil.DeletedEvent) {
	if err := natsutil.Publish(ctx, e.nc, natsutil.SubjectDeleted, ev); err != nil {
		e.logger.WarnContext(ctx, "publish deleted event", "error", err)
	}
}
