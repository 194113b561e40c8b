package vectorstore

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type QdrantConfig struct {
	URL             string
	Collection      string
	NamespacePrefix string
	VectorDim       int
}

type QdrantConfigErrorCode string

const (
	QdrantConfigErrorMissingURL        QdrantConfigErrorCode = "missing_url"
	QdrantConfigErrorInvalidURL        QdrantConfigErrorCode = "invalid_url"
	QdrantConfigErrorMissingCollection QdrantConfigErrorCode = "missing_collection"
	QdrantConfigErrorInvalidVectorDim  QdrantConfigErrorCode = "invalid_vector_dim"
)

type QdrantConfigError struct {
	Code  QdrantConfigErrorCode
	Value string
	Cause error
}

func (e *QdrantConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case QdrantConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case QdrantConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case QdrantConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case QdrantConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *QdrantConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveQdrantConfigFromEnv() (QdrantConfig, error) {
	rawDim := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM"))
	dim := 0
	if rawDim != "" {
		parsed, err := strconv.Atoi(rawDim)
		if err != nil {
			return QdrantConfig{}, &QdrantConfigError{Code: QdrantConfigErrorInvalidVectorDim, Value: rawDim, Cause: err}
		}
		dim = parsed
	}

	cfg := QdrantConfig{
		URL:             strings.TrimSpace(os.Getenv("QDRANT_URL")),
		Collection:      strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")),
		NamespacePrefix: strings.TrimSpace(os.Getenv("QDRANT_NAMESPACE_PREFIX")),
		VectorDim:       dim,
	}
	if cfg.NamespacePrefix == "" {
		cfg.NamespacePrefix = "ds"
	}
	if err := ValidateQdrantConfig(cfg); err != nil {
		return QdrantConfig{}, err
	}
	return cfg, nil
}

func ValidateQdrantConfig(cfg QdrantConfig) error {
	if cfg.URL == "" {
		return &QdrantConfigError{Code: QdrantConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &QdrantConfigError{Code: QdrantConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &QdrantConfigError{Code: QdrantConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &QdrantConfigError{Code: QdrantConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
