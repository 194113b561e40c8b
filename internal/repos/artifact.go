package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

type ArtifactRepo interface {
	Create(ctx context.Context, tx *gorm.DB, artifact *types.Artifact) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Artifact, error)
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Artifact, error)
	ListByDocumentAndType(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType) ([]*types.Artifact, error)
	LatestByStatus(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType, status types.ArtifactStatus) (*types.Artifact, error)
	// TransitionCAS updates one artifact row only if it still carries the
	// expected status and version; reports whether the swap won.
	TransitionCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus types.ArtifactStatus, version int64, updates map[string]interface{}) (bool, error)
	// MarkDeletedByDocument flips every live artifact of a document to
	// deleted. Used by document soft-delete; per-row CAS is not needed
	// because the document is already out of every read path.
	MarkDeletedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
	ListPendingOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error)
	ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error)
	HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: db, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) Create(ctx context.Context, tx *gorm.DB, artifact *types.Artifact) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(artifact).Error
}

func (r *artifactRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var artifact types.Artifact
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&artifact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (r *artifactRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Artifact
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) ListByDocumentAndType(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType) ([]*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Artifact
	if err := transaction.WithContext(ctx).
		Where("document_id = ? AND type = ?", documentID, artifactType).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) LatestByStatus(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType, status types.ArtifactStatus) (*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var artifact types.Artifact
	err := transaction.WithContext(ctx).
		Where("document_id = ? AND type = ? AND status = ?", documentID, artifactType, status).
		Order("updated_at DESC").
		First(&artifact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (r *artifactRepo) TransitionCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus types.ArtifactStatus, version int64, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates["version"] = version + 1
	updates["updated_at"] = time.Now().UTC()
	res := transaction.WithContext(ctx).
		Model(&types.Artifact{}).
		Where("id = ? AND status = ? AND version = ?", id, fromStatus, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *artifactRepo) MarkDeletedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Artifact{}).
		Where("document_id = ? AND status <> ?", documentID, types.ArtifactStatusDeleted).
		Updates(map[string]interface{}{
			"status":     types.ArtifactStatusDeleted,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *artifactRepo) ListPendingOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Artifact
	if err := transaction.WithContext(ctx).
		Where("status = ? AND created_at < ?", types.ArtifactStatusPending, cutoff).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Artifact
	if err := transaction.WithContext(ctx).
		Where("status = ? AND updated_at < ?", types.ArtifactStatusDeleted, cutoff).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Artifact{}).Error
}
