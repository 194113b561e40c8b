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

// DocumentFilter narrows Find. A nil/zero field means "any". Find never
// filters by permission; callers must pass results through the scoper
// before exposing them.
type DocumentFilter struct {
	TagIDs         []uuid.UUID
	OwnerID        uuid.UUID
	Status         types.DocumentStatus
	IncludeDeleted bool
}

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.Document) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error)
	Find(ctx context.Context, tx *gorm.DB, filter DocumentFilter) ([]*types.Document, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	AttachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error
	DetachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error
	ListTagIDs(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]uuid.UUID, error)
	MapTagIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	DeleteTagLinksByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error
	ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Document, error)
	HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(doc).Error
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc types.Document
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tagIDs, err := r.ListTagIDs(ctx, transaction, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.TagIDs = tagIDs
	return &doc, nil
}

func (r *documentRepo) Find(ctx context.Context, tx *gorm.DB, filter DocumentFilter) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.Document{})
	if len(filter.TagIDs) > 0 {
		q = q.Where("id IN (?)", transaction.
			Model(&types.DocumentTag{}).
			Select("document_id").
			Where("tag_id IN ?", filter.TagIDs))
	}
	if filter.OwnerID != uuid.Nil {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	} else if !filter.IncludeDeleted {
		q = q.Where("status <> ?", types.DocumentStatusDeleted)
	}

	var docs []*types.Document
	if err := q.Order("created_at ASC, id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return docs, nil
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	tagsByDoc, err := r.MapTagIDs(ctx, transaction, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.TagIDs = tagsByDoc[d.ID]
	}
	return docs, nil
}

func (r *documentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) AttachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	link := &types.DocumentTag{
		DocumentID: documentID,
		TagID:      tagID,
		CreatedAt:  time.Now().UTC(),
	}
	// Re-attaching an existing link is a no-op, not an error.
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
}

func (r *documentRepo) DetachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("document_id = ? AND tag_id = ?", documentID, tagID).
		Delete(&types.DocumentTag{}).Error
}

func (r *documentRepo) ListTagIDs(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	err := transaction.WithContext(ctx).
		Model(&types.DocumentTag{}).
		Where("document_id = ?", documentID).
		Order("tag_id ASC").
		Pluck("tag_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *documentRepo) MapTagIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID][]uuid.UUID, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}
	var links []*types.DocumentTag
	if err := transaction.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("tag_id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	for _, l := range links {
		out[l.DocumentID] = append(out[l.DocumentID], l.TagID)
	}
	return out, nil
}

func (r *documentRepo) DeleteTagLinksByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("tag_id = ?", tagID).
		Delete(&types.DocumentTag{}).Error
}

func (r *documentRepo) ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var docs []*types.Document
	if err := transaction.WithContext(ctx).
		Where("status = ? AND deleted_at_unix > 0 AND deleted_at_unix < ?", types.DocumentStatusDeleted, cutoff.Unix()).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", id).
		Delete(&types.DocumentTag{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Document{}).Error
}
