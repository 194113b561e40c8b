package app

import (
	"fmt"
	"strings"

	"github.com/docscope/docscope-backend/internal/platform/envutil"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
)

type VectorStoreMode string

const (
	VectorStoreModeQdrant    VectorStoreMode = "qdrant"
	VectorStoreModeLocalJSON VectorStoreMode = "localjson"
)

var (
	newQdrantStore    = vectorstore.NewQdrantStore
	newLocalJSONStore = vectorstore.NewLocalJSONStore
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidMode   VectorProviderBootstrapErrorCode = "invalid_mode"
	VectorProviderBootstrapErrorInvalidConfig VectorProviderBootstrapErrorCode = "invalid_config"
	VectorProviderBootstrapErrorConnectFailed VectorProviderBootstrapErrorCode = "connect_failed"
)

type VectorProviderBootstrapError struct {
	Code  VectorProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector store bootstrap failed"
	}
	return fmt.Sprintf("vector store bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore selects the vector index from VECTOR_STORE_MODE. An
// unset mode falls back to qdrant when QDRANT_URL is present and to the
// local JSON store otherwise, mirroring the content store's bare-checkout
// behavior.
func resolveVectorStore(log *logger.Logger) (vectorstore.Store, error) {
	raw := strings.ToLower(strings.TrimSpace(envutil.String("VECTOR_STORE_MODE", "")))
	mode := VectorStoreMode(raw)
	modeSource := "explicit"
	if raw == "" {
		modeSource = "inferred"
		if envutil.String("QDRANT_URL", "") != "" {
			mode = VectorStoreModeQdrant
		} else {
			mode = VectorStoreModeLocalJSON
		}
	}

	switch mode {
	case VectorStoreModeQdrant:
		cfg, err := vectorstore.ResolveQdrantConfigFromEnv()
		if err != nil {
			berr := &VectorProviderBootstrapError{
				Code:  VectorProviderBootstrapErrorInvalidConfig,
				Mode:  string(mode),
				Cause: err,
			}
			log.Error("vector store selection failed", "mode_source", modeSource, "error_code", berr.Code, "error", berr)
			return nil, berr
		}
		store, err := newQdrantStore(log, cfg)
		if err != nil {
			berr := &VectorProviderBootstrapError{
				Code:  VectorProviderBootstrapErrorConnectFailed,
				Mode:  string(mode),
				Cause: err,
			}
			log.Error("vector store connect failed", "mode_source", modeSource, "error_code", berr.Code, "error", berr)
			return nil, berr
		}
		log.Info("vector store selected", "mode", string(mode), "mode_source", modeSource, "collection", cfg.Collection)
		return store, nil
	case VectorStoreModeLocalJSON:
		path := envutil.String("VECTOR_LOCAL_PATH", "data/vectors.json")
		store, err := newLocalJSONStore(log, path)
		if err != nil {
			berr := &VectorProviderBootstrapError{
				Code:  VectorProviderBootstrapErrorConnectFailed,
				Mode:  string(mode),
				Cause: err,
			}
			log.Error("vector store connect failed", "mode_source", modeSource, "error_code", berr.Code, "error", berr)
			return nil, berr
		}
		log.Info("vector store selected", "mode", string(mode), "mode_source", modeSource, "path", path)
		return store, nil
	default:
		berr := &VectorProviderBootstrapError{
			Code:  VectorProviderBootstrapErrorInvalidMode,
			Mode:  string(mode),
			Cause: fmt.Errorf("unsupported vector store mode %q", mode),
		}
		log.Error("vector store selection failed", "mode_source", modeSource, "error_code", berr.Code, "error", berr)
		return nil, berr
	}
}
