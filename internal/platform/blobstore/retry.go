package blobstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// retryStore adds bounded exponential backoff to the idempotent operations
// only. Put is deliberately never retried here: a failed Put may have
// written part of the object and the caller must redo the whole logical
// operation instead.
type retryStore struct {
	log      *logger.Logger
	inner    Store
	attempts int
	baseWait time.Duration
}

func WithRetry(log *logger.Logger, inner Store, attempts int, baseWait time.Duration) Store {
	if attempts < 1 {
		attempts = 1
	}
	if baseWait <= 0 {
		baseWait = 100 * time.Millisecond
	}
	return &retryStore{
		log:      log.With("service", "ContentStoreRetry"),
		inner:    inner,
		attempts: attempts,
		baseWait: baseWait,
	}
}

func (s *retryStore) Put(ctx context.Context, key string, r io.Reader) error {
	return s.inner.Put(ctx, key, r)
}

func (s *retryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if werr := s.wait(ctx, attempt); werr != nil {
				return nil, werr
			}
			s.log.Warn("Retrying content store get", "key", key, "attempt", attempt+1, "error", err)
		}
		rc, err = s.inner.Get(ctx, key)
		if err == nil || !retryable(err) {
			return rc, err
		}
	}
	return nil, err
}

func (s *retryStore) Delete(ctx context.Context, key string) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if werr := s.wait(ctx, attempt); werr != nil {
				return werr
			}
			s.log.Warn("Retrying content store delete", "key", key, "attempt", attempt+1, "error", err)
		}
		err = s.inner.Delete(ctx, key)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (s *retryStore) wait(ctx context.Context, attempt int) error {
	backoff := s.baseWait << (attempt - 1)
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NotFound is a definitive answer, not an I/O failure; cancellation must
// surface immediately.
func retryable(err error) bool {
	if errdefs.IsNotFound(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
