package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

func clearContentStoreEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTENT_STORE_MODE", "")
	t.Setenv("CONTENT_LOCAL_ROOT", "")
	t.Setenv("CONTENT_GCS_BUCKET_NAME", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
}

func TestResolveContentStoreInvalidMode(t *testing.T) {
	clearContentStoreEnv(t)
	t.Setenv("CONTENT_STORE_MODE", "s3")

	_, err := resolveContentStore(logger.NewNop())
	if err == nil {
		t.Fatalf("resolveContentStore: expected error, got nil")
	}

	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidConfig, got.Code)
	}
	var cfgErr *blobstore.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected wrapped ConfigError, got=%v", err)
	}
	if cfgErr.Code != blobstore.ConfigErrorInvalidMode {
		t.Fatalf("config code: want=%q got=%q", blobstore.ConfigErrorInvalidMode, cfgErr.Code)
	}
}

func TestResolveContentStoreGCSMissingBucket(t *testing.T) {
	clearContentStoreEnv(t)
	t.Setenv("CONTENT_STORE_MODE", "gcs")

	_, err := resolveContentStore(logger.NewNop())
	if err == nil {
		t.Fatalf("resolveContentStore: expected error, got nil")
	}

	var cfgErr *blobstore.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected wrapped ConfigError, got=%T", err)
	}
	if cfgErr.Code != blobstore.ConfigErrorMissingBucket {
		t.Fatalf("config code: want=%q got=%q", blobstore.ConfigErrorMissingBucket, cfgErr.Code)
	}
}

func TestResolveContentStoreEmulatorInvalidHost(t *testing.T) {
	clearContentStoreEnv(t)
	t.Setenv("CONTENT_STORE_MODE", "gcs_emulator")
	t.Setenv("CONTENT_GCS_BUCKET_NAME", "docscope-test")
	t.Setenv("STORAGE_EMULATOR_HOST", "not-a-url")

	_, err := resolveContentStore(logger.NewNop())
	if err == nil {
		t.Fatalf("resolveContentStore: expected error, got nil")
	}

	var cfgErr *blobstore.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected wrapped ConfigError, got=%T", err)
	}
	if cfgErr.Code != blobstore.ConfigErrorInvalidEmulatorHost {
		t.Fatalf("config code: want=%q got=%q", blobstore.ConfigErrorInvalidEmulatorHost, cfgErr.Code)
	}
}

func TestResolveContentStoreInfersLocal(t *testing.T) {
	clearContentStoreEnv(t)

	orig := newLocalStore
	t.Cleanup(func() { newLocalStore = orig })

	var capturedRoot string
	expected := &testBlobStore{}
	newLocalStore = func(_ *logger.Logger, root string) (blobstore.Store, error) {
		capturedRoot = root
		return expected, nil
	}

	store, err := resolveContentStore(logger.NewNop())
	if err != nil {
		t.Fatalf("resolveContentStore: %v", err)
	}
	if store == nil {
		t.Fatalf("expected a store")
	}
	if capturedRoot != "data/content" {
		t.Fatalf("local root: want=%q got=%q", "data/content", capturedRoot)
	}
}

func TestResolveContentStoreInfersEmulator(t *testing.T) {
	clearContentStoreEnv(t)
	t.Setenv("CONTENT_GCS_BUCKET_NAME", "docscope-test")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	orig := newGCSStore
	t.Cleanup(func() { newGCSStore = orig })

	var captured blobstore.Config
	newGCSStore = func(_ *logger.Logger, cfg blobstore.Config) (blobstore.Store, error) {
		captured = cfg
		return &testBlobStore{}, nil
	}

	if _, err := resolveContentStore(logger.NewNop()); err != nil {
		t.Fatalf("resolveContentStore: %v", err)
	}
	if captured.Mode != blobstore.ModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", blobstore.ModeGCSEmulator, captured.Mode)
	}
	if captured.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: want=%q got=%q", "http://fake-gcs:4443", captured.EmulatorHost)
	}
}

func TestResolveContentStoreConnectFailed(t *testing.T) {
	clearContentStoreEnv(t)
	t.Setenv("CONTENT_STORE_MODE", "gcs")
	t.Setenv("CONTENT_GCS_BUCKET_NAME", "docscope-test")

	orig := newGCSStore
	t.Cleanup(func() { newGCSStore = orig })

	newGCSStore = func(_ *logger.Logger, _ blobstore.Config) (blobstore.Store, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err := resolveContentStore(logger.NewNop())
	if err == nil {
		t.Fatalf("resolveContentStore: expected error, got nil")
	}

	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorConnectFailed, got.Code)
	}
}

type testBlobStore struct{}

func (t *testBlobStore) Put(ctx context.Context, key string, rd io.Reader) error {
	return nil
}

func (t *testBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (t *testBlobStore) Delete(ctx context.Context, key string) error {
	return nil
}
