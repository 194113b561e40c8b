package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

type TagRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tag *types.Tag) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Tag, error)
	GetByNameCI(ctx context.Context, tx *gorm.DB, name string) (*types.Tag, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Tag, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	return &tagRepo{db: db, log: baseLog.With("repo", "TagRepo")}
}

func (r *tagRepo) Create(ctx context.Context, tx *gorm.DB, tag *types.Tag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(tag).Error
}

func (r *tagRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tag types.Tag
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepo) GetByNameCI(ctx context.Context, tx *gorm.DB, name string) (*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tag types.Tag
	err := transaction.WithContext(ctx).
		Where("lower(name) = lower(?)", name).
		First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Tag
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tagRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Tag{}).Error
}
