package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/DocQueryAI/docquery-mvp/engine/ingest"
	"github.com/DocQueryAI/docquery-mvp/engine/rag"
	"github.com/DocQueryAI/docquery-mvp/pkg/metrics"
	"github.com/DocQueryAI/docquery-mvp/pkg/natsutil"
)

type fakeChat struct {
	answer string
	err    error
}

func (f *fakeChat) Chat(_ context.Context, prompt string) (*rag.Answer, error) {
	if err := domain.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &rag.Answer{Text: f.answer}, nil
}

type fakeIngest struct {
	result ingest.Result
	err    error
	docs   []ingest.Document
}

func (f *fakeIngest) Ingest(_ context.Context, doc ingest.Document) (ingest.Result, error) {
	f.docs = append(f.docs, doc)
	return f.result, f.err
}

type fakeFiles struct {
	blobs   map[string][]byte
	types   map[string]string
	infos   []domain.FileInfo
	listErr error
	deleted []string
}

func (f *fakeFiles) Get(_ context.Context, name string) ([]byte, string, error) {
	data, ok := f.blobs[name]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return data, f.types[name], nil
}

func (f *fakeFiles) Exists(_ context.Context, name string) (bool, error) {
	_, ok := f.blobs[name]
	return ok, nil
}

func (f *fakeFiles) List(_ context.Context) ([]domain.FileInfo, error) {
	return f.infos, f.listErr
}

func (f *fakeFiles) Delete(_ context.Context, name string) error {
	if _, ok := f.blobs[name]; !ok {
		return domain.ErrNotFound
	}
	delete(f.blobs, name)
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeVectors struct {
	counts  map[string]int
	deleted []string
	err     error
}

func (f *fakeVectors) DeleteBySource(_ context.Context, source string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deleted = append(f.deleted, source)
	return f.counts[source], nil
}

type fakeEvents struct {
	ingested []natsutil.IngestedEvent
	deleted  []natsutil.DeletedEvent
}

func (f *fakeEvents) Ingested(_ context.Context, ev natsutil.IngestedEvent) {
	f.ingested = append(f.ingested, ev)
}

func (f *fakeEvents) Deleted(_ context.Context, ev natsutil.DeletedEvent) {
	f.deleted = append(f.deleted, ev)
}

func testServer(t *testing.T, chat chatService, ing ingestService, files fileStore, vectors vectorDeleter) *httptest.Server {
	srv, _ := testServerEvents(t, chat, ing, files, vectors)
	return srv
}

func testServerEvents(t *testing.T, chat chatService, ing ingestService, files fileStore, vectors vectorDeleter) (*httptest.Server, *fakeEvents) {
	t.Helper()
	mux := http.NewServeMux()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	events := &fakeEvents{}
	newAPI(chat, ing, files, vectors, events, metrics.New(), logger).routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, events
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv := testServer(t, &fakeChat{answer: "The total is $42 [Source: invoice.pdf, Page 1]"}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"prompt":"what is the total?"}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body ChatResponse
	decodeBody(t, resp, &body)
	if !strings.Contains(body.Answer, "invoice.pdf") {
		t.Errorf("answer = %q", body.Answer)
	}
}

func TestChatEndpointBadRequests(t *testing.T) {
	srv := testServer(t, &fakeChat{answer: "hi"}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	for _, body := range []string{`not json`, `{"prompt":""}`, `{"prompt":"   "}`} {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /api/chat: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestChatEndpointUpstreamFailure(t *testing.T) {
	srv := testServer(t, &fakeChat{err: errors.New("deployment down")}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"prompt":"question"}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if strings.Contains(body["error"], "deployment") {
		t.Errorf("error body leaks upstream detail: %q", body["error"])
	}
}

func multipartUpload(t *testing.T, url, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	resp, err := http.Post(url+"/api/files/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	return resp
}

func TestUploadEndpoint(t *testing.T) {
	ing := &fakeIngest{result: ingest.Result{Filename: "doc.pdf", Status: ingest.StatusIndexed, Chunks: 4}}
	srv, events := testServerEvents(t, &fakeChat{}, ing, &fakeFiles{}, &fakeVectors{})

	resp := multipartUpload(t, srv.URL, "doc.pdf", []byte("%PDF-1.4 data"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body UploadResponse
	decodeBody(t, resp, &body)
	if body.Message != "File processed and embedded successfully" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Filename != "doc.pdf" || body.Chunks != 4 {
		t.Errorf("body = %+v", body)
	}
	if len(ing.docs) != 1 || ing.docs[0].Filename != "doc.pdf" {
		t.Errorf("ingested docs = %+v", ing.docs)
	}
	if len(events.ingested) != 1 || events.ingested[0].Chunks != 4 {
		t.Errorf("events = %+v", events.ingested)
	}
}

func TestUploadEndpointSkipped(t *testing.T) {
	ing := &fakeIngest{result: ingest.Result{Filename: "doc.pdf", Status: ingest.StatusSkipped}}
	srv := testServer(t, &fakeChat{}, ing, &fakeFiles{}, &fakeVectors{})

	resp := multipartUpload(t, srv.URL, "doc.pdf", []byte("data"))
	var body UploadResponse
	decodeBody(t, resp, &body)
	if body.Message != "Document already exists in database" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Status != string(ingest.StatusSkipped) {
		t.Errorf("status = %q", body.Status)
	}
}

func TestUploadEndpointMissingFile(t *testing.T) {
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	resp, err := http.Post(srv.URL+"/api/files/upload", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetFileBinaryInline(t *testing.T) {
	files := &fakeFiles{
		blobs: map[string][]byte{"report.pdf": []byte("%PDF-1.4 binary")},
		types: map[string]string{"report.pdf": "application/octet-stream"},
	}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/report.pdf")
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// Stored octet-stream is corrected from the extension.
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "inline;") {
		t.Errorf("Content-Disposition = %q, want inline", cd)
	}
	if cl := resp.Header.Get("Content-Length"); cl != fmt.Sprint(len("%PDF-1.4 binary")) {
		t.Errorf("Content-Length = %q", cl)
	}
}

func TestGetFileImageContentTypeCorrected(t *testing.T) {
	files := &fakeFiles{
		blobs: map[string][]byte{"photo.png": {0x89, 'P', 'N', 'G'}},
		types: map[string]string{"photo.png": "application/octet-stream"},
	}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/photo.png")
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
}

func TestGetFileTextAsJSON(t *testing.T) {
	files := &fakeFiles{
		blobs: map[string][]byte{"notes.txt": []byte("plain text contents")},
		types: map[string]string{"notes.txt": "text/plain"},
	}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/notes.txt")
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	var body struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
		Size     int    `json:"size"`
	}
	decodeBody(t, resp, &body)
	if body.Content != "plain text contents" || body.Filename != "notes.txt" || body.Size != 19 {
		t.Errorf("body = %+v", body)
	}
}

func TestGetFileUndecodableFallsBackToAttachment(t *testing.T) {
	files := &fakeFiles{
		blobs: map[string][]byte{"data.bin": {0xff, 0xfe, 0x00, 0x80}},
		types: map[string]string{"data.bin": ""},
	}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/data.bin")
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	defer resp.Body.Close()
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGetFileNotFound(t *testing.T) {
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/missing.pdf")
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListFiles(t *testing.T) {
	uploaded := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	files := &fakeFiles{infos: []domain.FileInfo{
		{ID: "a.pdf", Name: "a.pdf", Filename: "a.pdf", UploadedAt: &uploaded, Size: 100, ContentType: "application/pdf"},
		{ID: "b.txt", Name: "b.txt", Filename: "b.txt", Size: 20},
	}}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var body []fileEntry
	decodeBody(t, resp, &body)
	if len(body) != 2 {
		t.Fatalf("got %d entries, want 2", len(body))
	}
	if body[0].UploadedAt == nil || *body[0].UploadedAt != "2026-01-15T09:30:00Z" {
		t.Errorf("uploaded_at = %v", body[0].UploadedAt)
	}
	if body[1].UploadedAt != nil || body[1].ContentType != nil {
		t.Errorf("missing metadata should be null: %+v", body[1])
	}
}

func TestListFilesDegradesToEmpty(t *testing.T) {
	files := &fakeFiles{listErr: errors.New("bucket unreachable")}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/files/")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body []fileEntry
	decodeBody(t, resp, &body)
	if len(body) != 0 {
		t.Errorf("body = %+v, want empty list", body)
	}
}

func TestDeleteFile(t *testing.T) {
	files := &fakeFiles{blobs: map[string][]byte{"doc.pdf": []byte("x")}}
	vectors := &fakeVectors{counts: map[string]int{"doc.pdf": 7}}
	srv, events := testServerEvents(t, &fakeChat{}, &fakeIngest{}, files, vectors)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/files/doc.pdf", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE file: %v", err)
	}
	var body DeleteResponse
	decodeBody(t, resp, &body)
	if body.Message != "Successfully deleted file 'doc.pdf'" {
		t.Errorf("message = %q", body.Message)
	}
	if body.DeletedChunks != 7 {
		t.Errorf("deleted_chunks = %d, want 7", body.DeletedChunks)
	}
	if len(files.deleted) != 1 || len(vectors.deleted) != 1 {
		t.Errorf("blob deletes = %v, vector deletes = %v", files.deleted, vectors.deleted)
	}
	if len(events.deleted) != 1 || events.deleted[0].DeletedChunks != 7 {
		t.Errorf("events = %+v", events.deleted)
	}
}

func TestDeleteFileNotFound(t *testing.T) {
	vectors := &fakeVectors{}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, &fakeFiles{}, vectors)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/files/ghost.pdf", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE file: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if len(vectors.deleted) != 0 {
		t.Errorf("vector delete ran for a missing file")
	}
}

func TestDeleteFilePartialFailure(t *testing.T) {
	files := &fakeFiles{blobs: map[string][]byte{"doc.pdf": []byte("x")}}
	vectors := &fakeVectors{err: errors.New("qdrant down")}
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, files, vectors)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/files/doc.pdf", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE file: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &fakeChat{}, &fakeIngest{}, &fakeFiles{}, &fakeVectors{})

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}
