package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	QdrantAddr       string
	Collection       string
	NATSURL          string
	BlobBucket       string
	AOAIEndpoint     string
	AOAIKey          string
	AOAIVersion      string
	EmbedDeployment  string
	ChatDeployment   string
	DocIntelEndpoint string
	DocIntelKey      string
	CORSOrigins      []string
}

// loadConfig reads .env (if present) and then the environment. Every
// required variable that is missing is reported in one error so a broken
// deployment fails fast with the full list.
func loadConfig() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	get := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Port:             get("PORT"),
		QdrantAddr:       get("QDRANT_ADDR"),
		Collection:       get("QDRANT_COLLECTION"),
		NATSURL:          get("NATS_URL"),
		BlobBucket:       get("BLOB_BUCKET"),
		AOAIEndpoint:     get("AOAI_ENDPOINT"),
		AOAIKey:          get("AOAI_API_KEY"),
		AOAIVersion:      get("AOAI_API_VERSION"),
		EmbedDeployment:  get("AOAI_EMBED_DEPLOYMENT"),
		ChatDeployment:   get("AOAI_CHAT_DEPLOYMENT"),
		DocIntelEndpoint: get("DOCINTEL_ENDPOINT"),
		DocIntelKey:      get("DOCINTEL_API_KEY"),
	}

	corsRaw := get("CORS_ORIGINS")
	for _, o := range strings.Split(corsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
