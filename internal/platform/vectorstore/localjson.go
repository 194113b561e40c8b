package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// localJSONStore keeps all vectors in one JSON file guarded by a mutex.
// It exists so local deployments and tests run with no search engine; it
// makes no attempt at being fast beyond brute-force cosine scoring.
type localJSONStore struct {
	log  *logger.Logger
	path string

	mu      sync.Mutex
	records map[string]localRecord
}

type localRecord struct {
	Namespace string         `json:"namespace"`
	ID        string         `json:"id"`
	Values    []float32      `json:"values"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewLocalJSONStore(log *logger.Logger, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("local vector store path is required")
	}
	s := &localJSONStore{
		log:     log.With("service", "LocalJSONVectorStore"),
		path:    path,
		records: map[string]localRecord{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.log.Info("Local JSON vector store selected", "path", path, "records", len(s.records))
	return s, nil
}

func (s *localJSONStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("vector %q has empty values", id), nil)
		}
		s.records[recordKey(namespace, id)] = localRecord{
			Namespace: namespace,
			ID:        id,
			Values:    v.Values,
			Metadata:  v.Metadata,
		}
	}
	return s.persistLocked(op)
}

func (s *localJSONStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error) {
	const op = "query"
	if len(q) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Match, 0, topK)
	for _, rec := range s.records {
		if rec.Namespace != namespace {
			continue
		}
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		score, ok := cosine(q, rec.Values)
		if !ok {
			continue
		}
		out = append(out, Match{ID: rec.ID, Score: score, Metadata: rec.Metadata})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *localJSONStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, recordKey(namespace, strings.TrimSpace(id)))
	}
	return s.persistLocked(op)
}

func (s *localJSONStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read local vector store: %w", err)
	}
	var records []localRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode local vector store: %w", err)
	}
	for _, rec := range records {
		s.records[recordKey(rec.Namespace, rec.ID)] = rec
	}
	return nil
}

func (s *localJSONStore) persistLocked(op string) error {
	records := make([]localRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Namespace == records[j].Namespace {
			return records[i].ID < records[j].ID
		}
		return records[i].Namespace < records[j].Namespace
	})
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return opErr(op, OperationErrorEncodeFailed, "encode local vector store", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return opErr(op, OperationErrorTransportFailed, "create local vector store directory", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return opErr(op, OperationErrorTransportFailed, "write local vector store", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return opErr(op, OperationErrorTransportFailed, "commit local vector store", err)
	}
	return nil
}

func recordKey(namespace, id string) string {
	return namespace + "|" + id
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			s, ok := got.(string)
			if !ok {
				return false
			}
			found := false
			for _, candidate := range w {
				if candidate == s {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
