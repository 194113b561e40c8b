package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

const (
	gcsPutTimeout    = 2 * time.Minute
	gcsGetTimeout    = 1 * time.Minute
	gcsDeleteTimeout = 30 * time.Second
)

type gcsStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewGCSStore builds the object storage backend. In emulator mode the
// client talks plain HTTP to the emulator host without credentials.
func NewGCSStore(log *logger.Logger, cfg Config) (Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	serviceLog := log.With("service", "GCSContentStore")

	ctx := context.Background()
	var (
		client *storage.Client
		err    error
	)
	switch cfg.Mode {
	case ModeGCSEmulator:
		endpoint := strings.TrimRight(cfg.EmulatorHost, "/") + "/storage/v1/"
		client, err = storage.NewClient(ctx,
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithHTTPClient(&http.Client{Timeout: gcsPutTimeout}),
		)
	case ModeGCS:
		saPath := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
		if saPath != "" {
			client, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
		} else {
			client, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
		}
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage content store initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
	)
	return &gcsStore{log: serviceLog, client: client, bucket: cfg.Bucket}, nil
}

func (s *gcsStore) Put(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, gcsPutTimeout)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit blob %q: %w", key, err)
	}
	return nil
}

func (s *gcsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsGetTimeout)
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		cancel()
		return nil, &errdefs.NotFound{Resource: "blob", ID: key}
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open blob %q: %w", key, err)
	}
	return &cancelReadCloser{ReadCloser: rc, cancel: cancel}, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, gcsDeleteTimeout)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

// cancelReadCloser ties the reader's deadline context to its Close so the
// timeout is released when the caller finishes streaming.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
