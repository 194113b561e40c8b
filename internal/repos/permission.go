package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

type PermissionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, perm *types.Permission) error
	Get(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) (*types.Permission, error)
	Delete(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) error
	DeleteByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error
	ListByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) ([]*types.Permission, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Permission, error)
	CountByTagAndLevel(ctx context.Context, tx *gorm.DB, tagID uuid.UUID, level types.PermissionLevel) (int64, error)
}

type permissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPermissionRepo(db *gorm.DB, baseLog *logger.Logger) PermissionRepo {
	return &permissionRepo{db: db, log: baseLog.With("repo", "PermissionRepo")}
}

func (r *permissionRepo) Upsert(ctx context.Context, tx *gorm.DB, perm *types.Permission) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	perm.UpdatedAt = time.Now().UTC()
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = perm.UpdatedAt
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "tag_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
		}).
		Create(perm).Error
}

func (r *permissionRepo) Get(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) (*types.Permission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var perm types.Permission
	err := transaction.WithContext(ctx).
		Where("tag_id = ? AND user_id = ?", tagID, userID).
		First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepo) Delete(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("tag_id = ? AND user_id = ?", tagID, userID).
		Delete(&types.Permission{}).Error
}

func (r *permissionRepo) DeleteByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("tag_id = ?", tagID).
		Delete(&types.Permission{}).Error
}

func (r *permissionRepo) ListByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) ([]*types.Permission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Permission
	if err := transaction.WithContext(ctx).
		Where("tag_id = ?", tagID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *permissionRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Permission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Permission
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *permissionRepo) CountByTagAndLevel(ctx context.Context, tx *gorm.DB, tagID uuid.UUID, level types.PermissionLevel) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Permission{}).
		Where("tag_id = ? AND level = ?", tagID, level).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}
