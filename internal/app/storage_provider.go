package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// Indirection points for tests; production wiring never swaps these.
var (
	newLocalStore = blobstore.NewLocalStore
	newGCSStore   = blobstore.NewGCSStore
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "content store bootstrap failed"
	}
	return fmt.Sprintf("content store bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveContentStore selects and connects the content store from the
// environment, wrapping reads and deletes with retry. Config problems and
// connection problems get distinct codes so operators can tell a typo from
// an outage.
func resolveContentStore(log *logger.Logger) (blobstore.Store, error) {
	cfg, err := blobstore.ResolveConfigFromEnv()
	if err != nil {
		var cfgErr *blobstore.ConfigError
		mode := ""
		if errors.As(err, &cfgErr) {
			mode = cfgErr.Mode
		}
		berr := &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorInvalidConfig,
			Mode:  mode,
			Cause: err,
		}
		log.Error("content store selection failed", "error_code", berr.Code, "error", berr)
		return nil, berr
	}

	log.Info("content store selected",
		"mode", string(cfg.Mode),
		"mode_source", cfg.ModeSource(),
		"bucket", cfg.Bucket,
		"local_root", cfg.LocalRoot)

	var store blobstore.Store
	switch cfg.Mode {
	case blobstore.ModeLocal:
		store, err = newLocalStore(log, cfg.LocalRoot)
	default:
		store, err = newGCSStore(log, cfg)
	}
	if err != nil {
		berr := &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorConnectFailed,
			Mode:  string(cfg.Mode),
			Cause: err,
		}
		log.Error("content store connect failed", "error_code", berr.Code, "error", berr)
		return nil, berr
	}
	return blobstore.WithRetry(log, store, 3, 200*time.Millisecond), nil
}
