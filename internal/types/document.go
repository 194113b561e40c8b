package types

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusUploading DocumentStatus = "uploading"
	DocumentStatusReady     DocumentStatus = "ready"
	DocumentStatusFailed    DocumentStatus = "failed"
	DocumentStatusDeleted   DocumentStatus = "deleted"
)

// Document is the authoritative catalog record for one uploaded file.
// Tag membership lives in document_tag rows; TagIDs is populated by the
// repo so the serialized record keeps its tag_ids field.
type Document struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Filename           string         `gorm:"column:filename;not null" json:"filename"`
	MimeType           string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes          int64          `gorm:"column:size_bytes;not null" json:"size_bytes"`
	OwnerID            uuid.UUID      `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	ContentFingerprint string         `gorm:"column:content_fingerprint;index" json:"content_fingerprint"`
	TokenCount         int            `gorm:"column:token_count;not null;default:0" json:"token_count"`
	Retrievable        bool           `gorm:"column:retrievable;not null;default:true" json:"retrievable"`
	Status             DocumentStatus `gorm:"column:status;not null;default:'uploading';index" json:"status"`
	CreatedAt          time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	DeletedAtUnix      int64          `gorm:"column:deleted_at_unix;not null;default:0" json:"-"`

	TagIDs []uuid.UUID `gorm:"-" json:"tag_ids"`
}

func (Document) TableName() string { return "document" }

// DocumentTag links a document to a tag. Deleting a tag cascades to these
// rows; deleting a document keeps them for audit until the GC sweep.
type DocumentTag struct {
	DocumentID uuid.UUID `gorm:"column:document_id;type:uuid;primaryKey" json:"document_id"`
	TagID      uuid.UUID `gorm:"column:tag_id;type:uuid;primaryKey;index" json:"tag_id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (DocumentTag) TableName() string { return "document_tag" }
