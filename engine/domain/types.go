// Package domain defines the core types, constants, and validation shared by
// the ingestion and retrieval pipelines. It is the validation gate at every
// pipeline entry point.
package domain

import "time"

// EmbeddingDims is the embedding vector length this deployment is pinned to
// (text-embedding-ada-002). Changing the embedding model requires a new
// collection; the dimensionality of an existing collection never changes.
const EmbeddingDims = 1536

// PageBlock is the text of one document page in reading order, with table
// content flattened and appended after the page's lines.
type PageBlock struct {
	Text   string `json:"text"`
	PageNo int    `json:"page_no"`
}

// Chunk is the unit of storage and retrieval: a bounded span of document
// text plus the source file it came from and the page it was read on.
// Chunks are immutable once stored and are grouped by Source.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	PageNo int    `json:"page_no"`
}

// EmbeddedChunk is a Chunk together with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// RetrievedChunk is a Chunk returned by similarity search. Score follows the
// store's convention: higher means more similar.
type RetrievedChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// FileInfo describes a raw stored file.
type FileInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Filename    string     `json:"filename"`
	UploadedAt  *time.Time `json:"uploaded_at"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
}
