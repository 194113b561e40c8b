package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// ArtifactService tracks derived outputs through their lifecycle:
// pending -> ready | failed, ready -> stale on invalidation. Transitions
// are linearizable per (document, type): a striped in-process lock orders
// local callers and the version CAS in the repo rejects any writer that
// lost the race, including one in another process.
type ArtifactService interface {
	// RequestDerivation admits a new pending artifact. A second request
	// while one is already pending for the same (document, type) is a
	// Conflict, not a queue.
	RequestDerivation(ctx context.Context, documentID uuid.UUID, artifactType types.ArtifactType, fingerprint string) (*types.Artifact, error)
	// Complete moves pending -> ready and demotes any previously ready
	// artifact of the same (document, type) to stale.
	Complete(ctx context.Context, artifactID uuid.UUID, storageRef string, extra []byte) (*types.Artifact, error)
	Fail(ctx context.Context, artifactID uuid.UUID, reason string) error
	// Invalidate demotes every ready artifact of a document to stale,
	// typically because the source content changed. Stale artifacts stay
	// queryable; nothing is deleted here.
	Invalidate(ctx context.Context, documentID uuid.UUID) error
	// LatestReady returns the current ready artifact, or the most recent
	// stale one when no ready exists so callers can see what they would be
	// serving and how fresh it is. NotFound when neither exists.
	LatestReady(ctx context.Context, documentID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*types.Artifact, error)
	// FailPendingOlderThan force-fails derivations stuck pending past the
	// cutoff. Returns how many were failed.
	FailPendingOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type artifactService struct {
	artifactRepo repos.ArtifactRepo
	docRepo      repos.DocumentRepo
	locks        *keyLock
	log          *logger.Logger
}

func NewArtifactService(
	artifactRepo repos.ArtifactRepo,
	docRepo repos.DocumentRepo,
	baseLog *logger.Logger,
) ArtifactService {
	return &artifactService{
		artifactRepo: artifactRepo,
		docRepo:      docRepo,
		locks:        newKeyLock(64),
		log:          baseLog.With("service", "ArtifactService"),
	}
}

// DerivationFingerprint identifies one derivation: same content and same
// processor version means the same fingerprint, so re-runs are detectable.
func DerivationFingerprint(contentFingerprint, processorName, processorVersion string) string {
	sum := sha256.Sum256([]byte(contentFingerprint + "|" + processorName + "|" + processorVersion))
	return hex.EncodeToString(sum[:])
}

func lockKey(documentID uuid.UUID, artifactType types.ArtifactType) string {
	return documentID.String() + "/" + string(artifactType)
}

func (s *artifactService) RequestDerivation(ctx context.Context, documentID uuid.UUID, artifactType types.ArtifactType, fingerprint string) (*types.Artifact, error) {
	unlock := s.locks.lock(lockKey(documentID, artifactType))
	defer unlock()

	doc, err := s.docRepo.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Status == types.DocumentStatusDeleted {
		return nil, &errdefs.NotFound{Resource: "document", ID: documentID.String()}
	}
	pending, err := s.artifactRepo.LatestByStatus(ctx, nil, documentID, artifactType, types.ArtifactStatusPending)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, &errdefs.Conflict{
			Resource: "artifact",
			Detail:   "a " + string(artifactType) + " derivation is already in flight for this document",
		}
	}

	now := time.Now().UTC()
	artifact := &types.Artifact{
		ID:          uuid.New(),
		DocumentID:  documentID,
		Type:        artifactType,
		Fingerprint: fingerprint,
		Status:      types.ArtifactStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.artifactRepo.Create(ctx, nil, artifact); err != nil {
		return nil, err
	}
	s.log.Info("derivation requested",
		"artifact_id", artifact.ID.String(),
		"document_id", documentID.String(),
		"type", string(artifactType))
	return artifact, nil
}

func (s *artifactService) Complete(ctx context.Context, artifactID uuid.UUID, storageRef string, extra []byte) (*types.Artifact, error) {
	artifact, err := s.artifactRepo.GetByID(ctx, nil, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, &errdefs.NotFound{Resource: "artifact", ID: artifactID.String()}
	}

	unlock := s.locks.lock(lockKey(artifact.DocumentID, artifact.Type))
	defer unlock()

	updates := map[string]interface{}{
		"status":      types.ArtifactStatusReady,
		"storage_ref": storageRef,
		"reason":      "",
		"updated_at":  time.Now().UTC(),
	}
	if len(extra) > 0 {
		updates["extra"] = extra
	}
	won, err := s.artifactRepo.TransitionCAS(ctx, nil, artifactID, types.ArtifactStatusPending, artifact.Version, updates)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, &errdefs.Conflict{
			Resource: "artifact",
			Detail:   "artifact " + artifactID.String() + " is no longer pending",
		}
	}

	// Demote the previous generation. Only the CAS winner reaches this
	// point, so at most one ready artifact survives per (document, type).
	if err := s.demoteReadySiblings(ctx, artifact.DocumentID, artifact.Type, artifactID); err != nil {
		return nil, err
	}

	s.log.Info("derivation completed",
		"artifact_id", artifactID.String(),
		"document_id", artifact.DocumentID.String(),
		"type", string(artifact.Type))
	return s.artifactRepo.GetByID(ctx, nil, artifactID)
}

func (s *artifactService) Fail(ctx context.Context, artifactID uuid.UUID, reason string) error {
	artifact, err := s.artifactRepo.GetByID(ctx, nil, artifactID)
	if err != nil {
		return err
	}
	if artifact == nil {
		return &errdefs.NotFound{Resource: "artifact", ID: artifactID.String()}
	}

	unlock := s.locks.lock(lockKey(artifact.DocumentID, artifact.Type))
	defer unlock()

	won, err := s.artifactRepo.TransitionCAS(ctx, nil, artifactID, types.ArtifactStatusPending, artifact.Version, map[string]interface{}{
		"status":     types.ArtifactStatusFailed,
		"reason":     reason,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !won {
		return &errdefs.Conflict{
			Resource: "artifact",
			Detail:   "artifact " + artifactID.String() + " is no longer pending",
		}
	}
	s.log.Warn("derivation failed",
		"artifact_id", artifactID.String(),
		"document_id", artifact.DocumentID.String(),
		"type", string(artifact.Type),
		"reason", reason)
	return nil
}

func (s *artifactService) Invalidate(ctx context.Context, documentID uuid.UUID) error {
	artifacts, err := s.artifactRepo.ListByDocument(ctx, nil, documentID)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if a.Status != types.ArtifactStatusReady {
			continue
		}
		unlock := s.locks.lock(lockKey(a.DocumentID, a.Type))
		// Losing the CAS means a concurrent transition already owns the
		// new state; there is nothing left to demote.
		_, err = s.artifactRepo.TransitionCAS(ctx, nil, a.ID, types.ArtifactStatusReady, a.Version, map[string]interface{}{
			"status":     types.ArtifactStatusStale,
			"updated_at": time.Now().UTC(),
		})
		unlock()
		if err != nil {
			return err
		}
	}
	s.log.Info("artifacts invalidated", "document_id", documentID.String())
	return nil
}

func (s *artifactService) LatestReady(ctx context.Context, documentID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error) {
	ready, err := s.artifactRepo.LatestByStatus(ctx, nil, documentID, artifactType, types.ArtifactStatusReady)
	if err != nil {
		return nil, err
	}
	if ready != nil {
		return ready, nil
	}
	stale, err := s.artifactRepo.LatestByStatus(ctx, nil, documentID, artifactType, types.ArtifactStatusStale)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		return stale, nil
	}
	return nil, &errdefs.NotFound{Resource: "artifact", ID: documentID.String() + "/" + string(artifactType)}
}

func (s *artifactService) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*types.Artifact, error) {
	return s.artifactRepo.ListByDocument(ctx, nil, documentID)
}

func (s *artifactService) FailPendingOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := s.artifactRepo.ListPendingOlderThan(ctx, nil, cutoff)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, a := range stuck {
		unlock := s.locks.lock(lockKey(a.DocumentID, a.Type))
		won, err := s.artifactRepo.TransitionCAS(ctx, nil, a.ID, types.ArtifactStatusPending, a.Version, map[string]interface{}{
			"status":     types.ArtifactStatusFailed,
			"reason":     "derivation timed out",
			"updated_at": time.Now().UTC(),
		})
		unlock()
		if err != nil {
			return failed, err
		}
		if won {
			failed++
			s.log.Warn("derivation timed out",
				"artifact_id", a.ID.String(),
				"document_id", a.DocumentID.String(),
				"type", string(a.Type))
		}
	}
	return failed, nil
}

func (s *artifactService) demoteReadySiblings(ctx context.Context, documentID uuid.UUID, artifactType types.ArtifactType, keep uuid.UUID) error {
	siblings, err := s.artifactRepo.ListByDocumentAndType(ctx, nil, documentID, artifactType)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.ID == keep || sib.Status != types.ArtifactStatusReady {
			continue
		}
		if _, err := s.artifactRepo.TransitionCAS(ctx, nil, sib.ID, types.ArtifactStatusReady, sib.Version, map[string]interface{}{
			"status":     types.ArtifactStatusStale,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
	}
	return nil
}
