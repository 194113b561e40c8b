package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/platform/openai"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
	"github.com/docscope/docscope-backend/internal/types"
)

// VectorNamespace is the single namespace holding every document chunk;
// scoping happens through the metadata filter, not through namespaces.
const VectorNamespace = "documents"

// Vector payload keys written at derivation time and filtered on at query
// time.
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkText  = "chunk_text"
)

// SearchHit is one scored chunk, joined back to its catalog document.
type SearchHit struct {
	Document   *types.Document `json:"document"`
	ChunkIndex int             `json:"chunk_index"`
	Snippet    string          `json:"snippet"`
	Score      float64         `json:"score"`
}

// SearchService answers similarity queries over the caller's resolved
// scope. Permissions are enforced once, by scope resolution; the vector
// store only ever sees a filter over already-authorized document IDs.
type SearchService interface {
	Search(ctx context.Context, userID uuid.UUID, tagIDs []uuid.UUID, query string, topK int) ([]SearchHit, error)
}

type searchService struct {
	scoper   ScoperService
	embedder openai.Embedder
	vectors  vectorstore.Store
	log      *logger.Logger
}

func NewSearchService(
	scoper ScoperService,
	embedder openai.Embedder,
	vectors vectorstore.Store,
	baseLog *logger.Logger,
) SearchService {
	return &searchService{
		scoper:   scoper,
		embedder: embedder,
		vectors:  vectors,
		log:      baseLog.With("service", "SearchService"),
	}
}

func (s *searchService) Search(ctx context.Context, userID uuid.UUID, tagIDs []uuid.UUID, query string, topK int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &errdefs.InvariantViolation{Rule: "search_query", Detail: "query is required"}
	}
	if topK <= 0 {
		topK = 10
	}

	scope, err := s.scoper.Resolve(ctx, userID, tagIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.Document, len(scope.Documents))
	scopeIDs := make([]string, 0, len(scope.Documents))
	for _, d := range scope.Documents {
		byID[d.ID.String()] = d
		scopeIDs = append(scopeIDs, d.ID.String())
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, &errdefs.InvariantViolation{Rule: "embedding_count", Detail: "embedder returned no vector for query"}
	}

	matches, err := s.vectors.QueryMatches(ctx, VectorNamespace, embeddings[0], topK, map[string]any{
		MetaDocumentID: scopeIDs,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		docID, _ := m.Metadata[MetaDocumentID].(string)
		doc, ok := byID[docID]
		if !ok {
			// The filter should make this impossible; drop rather than
			// leak a chunk from outside the scope.
			s.log.Warn("match outside resolved scope dropped", "vector_id", m.ID)
			continue
		}
		chunkIdx := 0
		if f, ok := m.Metadata[MetaChunkIndex].(float64); ok {
			chunkIdx = int(f)
		}
		snippet, _ := m.Metadata[MetaChunkText].(string)
		hits = append(hits, SearchHit{
			Document:   doc,
			ChunkIndex: chunkIdx,
			Snippet:    snippet,
			Score:      m.Score,
		})
	}
	return hits, nil
}
