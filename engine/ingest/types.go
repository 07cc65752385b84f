package ingest

import "github.com/DocQueryAI/docquery-mvp/engine/domain"

// Document is one uploaded file entering the pipeline.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Status reports what the pipeline did with a document.
type Status string

const (
	// StatusIndexed means the document was parsed, embedded and stored.
	StatusIndexed Status = "indexed"
	// StatusSkipped means a document with the same filename was already
	// indexed, so the pipeline did nothing.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one ingestion run.
type Result struct {
	Filename string `json:"filename"`
	Status   Status `json:"status"`
	Chunks   int    `json:"chunks"`
}

// parsedDoc carries a document through the pipeline after parsing.
type parsedDoc struct {
	Document
	Pages []domain.PageBlock
}

// chunkedDoc adds the chunk set.
type chunkedDoc struct {
	parsedDoc
	Chunks []domain.Chunk
}

// embeddedDoc pairs every chunk with its embedding.
type embeddedDoc struct {
	parsedDoc
	Chunks []domain.EmbeddedChunk
}

// chunkPages splits each page's text and tags every chunk with its source
// filename and page number.
func chunkPages(source string, pages []domain.PageBlock) []domain.Chunk {
	var out []domain.Chunk
	for _, page := range pages {
		for _, text := range chunkText(page.Text, DefaultChunkSize, DefaultOverlap) {
			out = append(out, domain.Chunk{
				Text:   text,
				Source: source,
				PageNo: page.PageNo,
			})
		}
	}
	return out
}
