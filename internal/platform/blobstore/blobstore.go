package blobstore

import (
	"context"
	"io"
)

// Store is the content store boundary: uniform byte-blob operations over a
// pluggable backend. Keys are opaque slash-separated strings; the catalog
// derives them as "{document_id}/{content_fingerprint}". No backend detail
// may leak through this interface.
//
// Contract:
//   - Get returns *errdefs.NotFound for a missing key.
//   - Delete of a missing key succeeds (idempotent).
//   - Put failures propagate immediately; the caller re-attempts the whole
//     logical operation rather than resuming a possibly partial write.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
