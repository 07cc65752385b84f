package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/DocQueryAI/docquery-mvp/engine/ingest"
	"github.com/DocQueryAI/docquery-mvp/engine/rag"
	"github.com/DocQueryAI/docquery-mvp/pkg/metrics"
	"github.com/DocQueryAI/docquery-mvp/pkg/natsutil"
)

const maxUploadBytes = 64 << 20

// chatService answers one prompt.
type chatService interface {
	Chat(ctx context.Context, prompt string) (*rag.Answer, error)
}

// ingestService runs one uploaded document through the indexing pipeline.
type ingestService interface {
	Ingest(ctx context.Context, doc ingest.Document) (ingest.Result, error)
}

// fileStore is the blob surface the file endpoints need.
type fileStore interface {
	Get(ctx context.Context, name string) ([]byte, string, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]domain.FileInfo, error)
	Delete(ctx context.Context, name string) error
}

// vectorDeleter removes a source's chunks and reports how many there were.
type vectorDeleter interface {
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// eventBus announces pipeline lifecycle events. Publishing is best-effort;
// implementations log failures rather than surfacing them to callers.
type eventBus interface {
	Ingested(ctx context.Context, ev natsutil.IngestedEvent)
	Deleted(ctx context.Context, ev natsutil.DeletedEvent)
}

type api struct {
	chat    chatService
	ingest  ingestService
	files   fileStore
	vectors vectorDeleter
	events  eventBus
	logger  *slog.Logger

	chatTotal     *metrics.Counter
	chatLatency   *metrics.Histogram
	ingestIndexed *metrics.Counter
	ingestSkipped *metrics.Counter
	chunksStored  *metrics.Counter
	chunksDeleted *metrics.Counter
}

func newAPI(chat chatService, ing ingestService, files fileStore, vectors vectorDeleter, events eventBus, reg *metrics.Registry, logger *slog.Logger) *api {
	return &api{
		chat:    chat,
		ingest:  ing,
		files:   files,
		vectors: vectors,
		events:  events,
		logger:  logger,

		chatTotal:     reg.Counter("chat_requests_total", "Chat requests served."),
		chatLatency:   reg.Histogram("chat_duration_seconds", "Chat request latency.", metrics.DefaultBuckets),
		ingestIndexed: reg.Counter("ingest_indexed_total", "Documents indexed."),
		ingestSkipped: reg.Counter("ingest_skipped_total", "Uploads skipped as duplicates."),
		chunksStored:  reg.Counter("chunks_stored_total", "Chunks written to the vector store."),
		chunksDeleted: reg.Counter("chunks_deleted_total", "Chunks removed from the vector store."),
	}
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chat", a.handleChat)
	mux.HandleFunc("POST /api/files/upload", a.handleUpload)
	mux.HandleFunc("GET /api/files/{id...}", a.handleGetFile)
	mux.HandleFunc("DELETE /api/files/{id...}", a.handleDeleteFile)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse carries the answer text; citations are inline in the text.
type ChatResponse struct {
	Answer string `json:"answer"`
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a.chatTotal.Inc()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := a.chat.Chat(r.Context(), req.Prompt)
	if err != nil {
		a.writeServiceError(w, r, "chat failed", err)
		return
	}

	a.chatLatency.Since(start)
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer.Text})
}

// UploadResponse is the JSON response for POST /api/files/upload.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks,omitempty"`
}

func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	res, err := a.ingest.Ingest(r.Context(), ingest.Document{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		a.writeServiceError(w, r, "upload failed", err)
		return
	}

	resp := UploadResponse{
		Filename: res.Filename,
		Status:   string(res.Status),
		Chunks:   res.Chunks,
	}
	switch res.Status {
	case ingest.StatusSkipped:
		a.ingestSkipped.Inc()
		resp.Message = "Document already exists in database"
	default:
		a.ingestIndexed.Inc()
		a.chunksStored.Add(int64(res.Chunks))
		resp.Message = "File processed and embedded successfully"
	}
	if a.events != nil {
		a.events.Ingested(r.Context(), natsutil.IngestedEvent{
			Filename: res.Filename,
			Status:   string(res.Status),
			Chunks:   res.Chunks,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// fileEntry is one element of the GET /api/files/ listing.
type fileEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Filename    string  `json:"filename"`
	UploadedAt  *string `json:"uploaded_at"`
	Size        int64   `json:"size"`
	ContentType *string `json:"content_type"`
}

func (a *api) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		a.handleListFiles(w, r)
		return
	}

	data, contentType, err := a.files.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		a.writeServiceError(w, r, "get file failed", err)
		return
	}

	ext := extensionOf(id)
	if isBinaryType(ext, contentType) {
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = contentTypeForExtension(ext)
		}
		serveBlob(w, id, contentType, data, "inline")
		return
	}

	if utf8.Valid(data) {
		writeJSON(w, http.StatusOK, map[string]any{
			"content":  string(data),
			"filename": id,
			"size":     len(data),
		})
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	serveBlob(w, id, contentType, data, "attachment")
}

func (a *api) handleListFiles(w http.ResponseWriter, r *http.Request) {
	infos, err := a.files.List(r.Context())
	if err != nil {
		// The original surface returns an empty list when the store is
		// unreachable; callers rely on it, so keep it and log loudly.
		a.logger.WarnContext(r.Context(), "list files degraded to empty", "error", err)
		writeJSON(w, http.StatusOK, []fileEntry{})
		return
	}

	out := make([]fileEntry, 0, len(infos))
	for _, info := range infos {
		entry := fileEntry{
			ID:       info.ID,
			Name:     info.Name,
			Filename: info.Filename,
			Size:     info.Size,
		}
		if info.UploadedAt != nil {
			ts := info.UploadedAt.Format(time.RFC3339)
			entry.UploadedAt = &ts
		}
		if info.ContentType != "" {
			ct := info.ContentType
			entry.ContentType = &ct
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteResponse is the JSON response for DELETE /api/files/{id}.
type DeleteResponse struct {
	Message       string `json:"message"`
	DeletedChunks int    `json:"deleted_chunks"`
}

func (a *api) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	exists, err := a.files.Exists(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, "delete file failed", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	if err := a.files.Delete(r.Context(), id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.writeServiceError(w, r, "delete file failed", err)
		return
	}

	deleted, err := a.vectors.DeleteBySource(r.Context(), id)
	if err != nil {
		// The blob is already gone; report the partial failure.
		a.writeServiceError(w, r, "delete chunks failed", err)
		return
	}

	a.chunksDeleted.Add(int64(deleted))
	if a.events != nil {
		a.events.Deleted(r.Context(), natsutil.DeletedEvent{Filename: id, DeletedChunks: deleted})
	}
	writeJSON(w, http.StatusOK, DeleteResponse{
		Message:       fmt.Sprintf("Successfully deleted file '%s'", id),
		DeletedChunks: deleted,
	})
}

// --- Helpers ---

var binaryExtensions = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
}

func extensionOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}

func isBinaryType(ext, contentType string) bool {
	if _, ok := binaryExtensions[ext]; ok {
		return true
	}
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

func contentTypeForExtension(ext string) string {
	if ct, ok := binaryExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

func serveBlob(w http.ResponseWriter, name, contentType string, data []byte, disposition string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes. Validation errors
// surface their message; everything else is a generic 500 with the detail
// kept server-side.
func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrInvalidPrompt), errors.Is(err, domain.ErrInvalidFilename):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	default:
		a.logger.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
