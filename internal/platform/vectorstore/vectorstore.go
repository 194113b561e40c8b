package vectorstore

import "context"

// Vector is one embedded chunk plus its searchable payload fields.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Store is the metadata/vector index boundary. Namespaces isolate
// collections of vectors (one per deployment scope); filter entries are
// payload-field equality constraints, a []string value meaning any-of.
// Ranking semantics belong to the backend, not to callers.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}
