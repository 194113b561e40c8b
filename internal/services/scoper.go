package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/observability"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// Scope is a resolved, permission-filtered document set ready to hand to a
// retrieval pipeline. Documents are ordered by (created_at, id) so two
// resolutions of the same state produce byte-identical scopes.
type Scope struct {
	Documents   []*types.Document `json:"documents"`
	TagIDs      []uuid.UUID       `json:"tag_ids"`
	DroppedTags []uuid.UUID       `json:"dropped_tag_ids,omitempty"`
	TotalTokens int               `json:"total_tokens"`
}

// ScoperService turns a requested tag set into the documents a user may
// actually retrieve over. Unreadable tags are dropped silently rather than
// erroring, so a shared query template works for users with different
// grants; a scope that ends up empty is an explicit EmptyScope error so
// nothing downstream runs against no context.
type ScoperService interface {
	Resolve(ctx context.Context, userID uuid.UUID, requestedTagIDs []uuid.UUID) (*Scope, error)
}

type scoperService struct {
	docRepo   repos.DocumentRepo
	perms     PermissionService
	maxTokens int
	log       *logger.Logger
}

func NewScoperService(
	docRepo repos.DocumentRepo,
	perms PermissionService,
	maxTokens int,
	baseLog *logger.Logger,
) ScoperService {
	return &scoperService{
		docRepo:   docRepo,
		perms:     perms,
		maxTokens: maxTokens,
		log:       baseLog.With("service", "ScoperService"),
	}
}

func (s *scoperService) Resolve(ctx context.Context, userID uuid.UUID, requestedTagIDs []uuid.UUID) (*Scope, error) {
	if len(requestedTagIDs) == 0 {
		return nil, &errdefs.EmptyScope{RequestedTagIDs: requestedTagIDs}
	}

	readable := make([]uuid.UUID, 0, len(requestedTagIDs))
	var dropped []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, tagID := range requestedTagIDs {
		if seen[tagID] {
			continue
		}
		seen[tagID] = true
		err := s.perms.Check(ctx, nil, tagID, userID, types.PermissionRead)
		if err == nil {
			readable = append(readable, tagID)
			continue
		}
		if errdefs.IsPermissionDenied(err) {
			dropped = append(dropped, tagID)
			continue
		}
		return nil, err
	}
	if len(dropped) > 0 {
		s.log.Debug("dropped unreadable tags from scope",
			"user_id", userID.String(),
			"requested", len(requestedTagIDs),
			"dropped", len(dropped))
	}
	if len(readable) == 0 {
		return nil, &errdefs.EmptyScope{RequestedTagIDs: requestedTagIDs}
	}

	docs, err := s.docRepo.Find(ctx, nil, repos.DocumentFilter{
		TagIDs: readable,
		Status: types.DocumentStatusReady,
	})
	if err != nil {
		return nil, err
	}
	// The repo already orders by (created_at, id); re-filter here for the
	// retrievable flag, which is a retrieval property not a catalog one.
	filtered := docs[:0]
	total := 0
	for _, d := range docs {
		if !d.Retrievable {
			continue
		}
		filtered = append(filtered, d)
		total += d.TokenCount
	}
	if len(filtered) == 0 {
		return nil, &errdefs.EmptyScope{RequestedTagIDs: requestedTagIDs}
	}
	if s.maxTokens > 0 && total > s.maxTokens {
		return nil, &errdefs.TokenBudgetExceeded{Limit: s.maxTokens, Actual: total}
	}

	observability.Current().ObserveScopeResolved(ctx, len(filtered), total)
	return &Scope{
		Documents:   filtered,
		TagIDs:      readable,
		DroppedTags: dropped,
		TotalTokens: total,
	}, nil
}
