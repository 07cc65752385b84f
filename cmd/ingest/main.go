// Command ingest runs local documents through the indexing pipeline. It is
// the operational counterpart of the API's upload endpoint, useful for
// backfilling a collection from a directory of files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/DocQueryAI/docquery-mvp/engine/blob"
	"github.com/DocQueryAI/docquery-mvp/engine/docparse"
	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/DocQueryAI/docquery-mvp/engine/ingest"
	"github.com/DocQueryAI/docquery-mvp/engine/semantic"
	"github.com/DocQueryAI/docquery-mvp/pkg/azopenai"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

type env struct {
	qdrantAddr string
	collection string
	natsURL    string
	bucket     string

	aoaiEndpoint string
	aoaiKey      string
	aoaiVersion  string
	embedDeploy  string
	chatDeploy   string

	docintelEndpoint string
	docintelKey      string
}

func loadEnv() (env, error) {
	_ = godotenv.Load()

	var missing []string
	get := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	e := env{
		qdrantAddr:       get("QDRANT_ADDR"),
		collection:       get("QDRANT_COLLECTION"),
		natsURL:          get("NATS_URL"),
		bucket:           get("BLOB_BUCKET"),
		aoaiEndpoint:     get("AOAI_ENDPOINT"),
		aoaiKey:          get("AOAI_API_KEY"),
		aoaiVersion:      get("AOAI_API_VERSION"),
		embedDeploy:      get("AOAI_EMBED_DEPLOYMENT"),
		chatDeploy:       get("AOAI_CHAT_DEPLOYMENT"),
		docintelEndpoint: get("DOCINTEL_ENDPOINT"),
		docintelKey:      get("DOCINTEL_API_KEY"),
	}
	if len(missing) > 0 {
		return env{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return e, nil
}

func main() {
	var (
		dir     = flag.String("dir", "", "ingest every file in this directory")
		workers = flag.Int("workers", 2, "concurrent documents")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	paths := flag.Args()
	if *dir != "" {
		entries, err := os.ReadDir(*dir)
		if err != nil {
			logger.Error("read dir", "err", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				paths = append(paths, filepath.Join(*dir, e.Name()))
			}
		}
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [-dir DIR] [-workers N] [file ...]")
		os.Exit(2)
	}

	if err := run(paths, *workers, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(paths []string, workers int, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadEnv()
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.natsURL, nats.Name("docquery-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	blobStore, err := blob.New(ctx, nc, cfg.bucket)
	if err != nil {
		return err
	}

	vectorStore, err := semantic.New(cfg.qdrantAddr, cfg.collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureCollection(ctx, domain.EmbeddingDims); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	aoai, err := azopenai.New(azopenai.Config{
		Endpoint:        cfg.aoaiEndpoint,
		APIKey:          cfg.aoaiKey,
		APIVersion:      cfg.aoaiVersion,
		EmbedDeployment: cfg.embedDeploy,
		ChatDeployment:  cfg.chatDeploy,
	}, logger)
	if err != nil {
		return err
	}

	svc := ingest.NewService(ingest.Deps{
		Blob:     blobStore,
		Parser:   docparse.NewClient(cfg.docintelEndpoint, cfg.docintelKey, docparse.WithLogger(logger)),
		Embedder: aoai,
		Store:    vectorStore,
		Logger:   logger,
	})

	if workers < 1 {
		workers = 1
	}
	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	indexed, skipped, failed := 0, 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res, err := ingestFile(ctx, svc, path)
				mu.Lock()
				switch {
				case err != nil:
					failed++
					logger.Error("file failed", "path", path, "err", err)
				case res.Status == ingest.StatusSkipped:
					skipped++
					fmt.Printf("skipped  %s (already indexed)\n", path)
				default:
					indexed++
					fmt.Printf("indexed  %s (%d chunks)\n", path, res.Chunks)
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		select {
		case jobs <- path:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	fmt.Printf("done: %d indexed, %d skipped, %d failed\n", indexed, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return ctx.Err()
}

func ingestFile(ctx context.Context, svc *ingest.Service, path string) (ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, err
	}

	ct := contentTypes[strings.ToLower(filepath.Ext(path))]
	if ct == "" {
		ct = "application/octet-stream"
	}

	return svc.Ingest(ctx, ingest.Document{
		Filename:    filepath.Base(path),
		ContentType: ct,
		Data:        data,
	})
}
