// Package blob stores raw uploaded files in a NATS JetStream Object Store
// bucket, keyed by filename. The stored content type travels in object
// headers so downloads can be served with the right media type.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const contentTypeHeader = "Content-Type"

// Store wraps one object store bucket.
type Store struct {
	bucket jetstream.ObjectStore
}

// New connects to the named bucket, creating it if it does not exist.
func New(ctx context.Context, nc *nats.Conn, bucket string) (*Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("blob: jetstream: %w", err)
	}

	obs, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		obs, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "raw uploaded documents",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("blob: open bucket %s: %w", bucket, err)
	}
	return &Store{bucket: obs}, nil
}

// NewWithBucket wraps an existing bucket handle. Intended for tests.
func NewWithBucket(bucket jetstream.ObjectStore) *Store {
	return &Store{bucket: bucket}
}

// Put stores a file under its name, overwriting any previous content.
func (s *Store) Put(ctx context.Context, name, contentType string, data []byte) error {
	meta := jetstream.ObjectMeta{Name: name}
	if contentType != "" {
		meta.Headers = nats.Header{contentTypeHeader: []string{contentType}}
	}
	if _, err := s.bucket.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	return nil
}

// Get returns the file's bytes and stored content type.
// Returns domain.ErrNotFound when the file does not exist.
func (s *Store) Get(ctx context.Context, name string) ([]byte, string, error) {
	info, err := s.bucket.GetInfo(ctx, name)
	if err != nil {
		return nil, "", mapNotFound("get", name, err)
	}
	data, err := s.bucket.GetBytes(ctx, name)
	if err != nil {
		return nil, "", mapNotFound("get", name, err)
	}
	return data, contentTypeOf(info), nil
}

// Stat returns metadata for one file, or domain.ErrNotFound.
func (s *Store) Stat(ctx context.Context, name string) (*domain.FileInfo, error) {
	info, err := s.bucket.GetInfo(ctx, name)
	if err != nil {
		return nil, mapNotFound("stat", name, err)
	}
	fi := fileInfo(info)
	return &fi, nil
}

// Exists reports whether the file is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.bucket.GetInfo(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("blob: exists %s: %w", name, err)
}

// List returns every stored file's metadata. An empty bucket is an empty
// list, not an error.
func (s *Store) List(ctx context.Context) ([]domain.FileInfo, error) {
	infos, err := s.bucket.List(ctx)
	if errors.Is(err, jetstream.ErrNoObjectsFound) {
		return []domain.FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: list: %w", err)
	}

	out := make([]domain.FileInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, fileInfo(info))
	}
	return out, nil
}

// Delete removes the file, or returns domain.ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.bucket.Delete(ctx, name); err != nil {
		return mapNotFound("delete", name, err)
	}
	return nil
}

func mapNotFound(op, name string, err error) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("blob: %s %s: %w", op, name, domain.ErrNotFound)
	}
	return fmt.Errorf("blob: %s %s: %w", op, name, err)
}

func fileInfo(info *jetstream.ObjectInfo) domain.FileInfo {
	fi := domain.FileInfo{
		ID:          info.Name,
		Name:        info.Name,
		Filename:    info.Name,
		Size:        int64(info.Size),
		ContentType: contentTypeOf(info),
	}
	if !info.ModTime.IsZero() {
		t := info.ModTime
		fi.UploadedAt = &t
	}
	return fi
}

func contentTypeOf(info *jetstream.ObjectInfo) string {
	if info.Headers == nil {
		return ""
	}
	return info.Headers.Get(contentTypeHeader)
}
