package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docscope/docscope-backend/internal/observability"
	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// SweepResult reports what one GC pass reclaimed.
type SweepResult struct {
	Documents int
	Artifacts int
	Errors    int
}

// GCService reclaims soft-deleted records after the retention window:
// blobs first, then vector points, then the rows. Row deletion comes last
// so a partial sweep leaves re-discoverable work, never an unreferenced
// blob.
type GCService interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

type gcService struct {
	docRepo      repos.DocumentRepo
	artifactRepo repos.ArtifactRepo
	blobs        blobstore.Store
	vectors      vectorstore.Store
	retention    time.Duration
	log          *logger.Logger
}

func NewGCService(
	docRepo repos.DocumentRepo,
	artifactRepo repos.ArtifactRepo,
	blobs blobstore.Store,
	vectors vectorstore.Store,
	retention time.Duration,
	baseLog *logger.Logger,
) GCService {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &gcService{
		docRepo:      docRepo,
		artifactRepo: artifactRepo,
		blobs:        blobs,
		vectors:      vectors,
		retention:    retention,
		log:          baseLog.With("service", "GCService"),
	}
}

func (s *gcService) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	res := &SweepResult{}

	docs, err := s.docRepo.ListDeletedBefore(ctx, nil, cutoff)
	if err != nil {
		return res, err
	}
	for _, doc := range docs {
		if err := s.reclaimDocument(ctx, doc, res); err != nil {
			// One stuck document must not stall the sweep; it stays
			// soft-deleted and the next pass retries it.
			res.Errors++
			s.log.Error("gc document reclaim failed", "document_id", doc.ID.String(), "error", err)
		}
	}

	// Artifacts marked deleted independently of their document, e.g. by a
	// soft delete that was later followed by a re-upload of a new record.
	orphaned, err := s.artifactRepo.ListDeletedBefore(ctx, nil, cutoff)
	if err != nil {
		return res, err
	}
	for _, a := range orphaned {
		if err := s.reclaimArtifact(ctx, a); err != nil {
			res.Errors++
			s.log.Error("gc artifact reclaim failed", "artifact_id", a.ID.String(), "error", err)
			continue
		}
		res.Artifacts++
	}

	observability.Current().ObserveGCReclaimed(ctx, res.Documents, res.Artifacts)
	s.log.Info("gc sweep finished",
		"documents", res.Documents,
		"artifacts", res.Artifacts,
		"errors", res.Errors)
	return res, nil
}

func (s *gcService) reclaimDocument(ctx context.Context, doc *types.Document, res *SweepResult) error {
	artifacts, err := s.artifactRepo.ListByDocument(ctx, nil, doc.ID)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if err := s.reclaimArtifact(ctx, a); err != nil {
			return err
		}
		res.Artifacts++
	}
	if doc.ContentFingerprint != "" {
		if err := s.blobs.Delete(ctx, ContentKey(doc.ID, doc.ContentFingerprint)); err != nil {
			return err
		}
	}
	if err := s.docRepo.HardDelete(ctx, nil, doc.ID); err != nil {
		return err
	}
	res.Documents++
	return nil
}

func (s *gcService) reclaimArtifact(ctx context.Context, a *types.Artifact) error {
	if a.Type == types.ArtifactTypeVector {
		ids, err := vectorIDsFromExtra(a.Extra)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := s.vectors.DeleteIDs(ctx, VectorNamespace, ids); err != nil {
				return err
			}
		}
	} else if a.StorageRef != "" {
		// Delete is idempotent, so retrying a half-reclaimed artifact is
		// safe.
		if err := s.blobs.Delete(ctx, a.StorageRef); err != nil {
			return err
		}
	}
	return s.artifactRepo.HardDelete(ctx, nil, a.ID)
}

// vectorIDsFromExtra reads the point IDs a vector derivation recorded on
// its artifact so GC can delete exactly those points.
func vectorIDsFromExtra(extra []byte) ([]string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	var payload struct {
		VectorIDs []string `json:"vector_ids"`
	}
	if err := json.Unmarshal(extra, &payload); err != nil {
		return nil, err
	}
	return payload.VectorIDs, nil
}
