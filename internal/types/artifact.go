package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ArtifactType string

const (
	ArtifactTypeMarkdown ArtifactType = "markdown"
	ArtifactTypeVector   ArtifactType = "vector"
	ArtifactTypePreview  ArtifactType = "preview"
	ArtifactTypeTabular  ArtifactType = "tabular"
)

type ArtifactStatus string

const (
	ArtifactStatusPending ArtifactStatus = "pending"
	ArtifactStatusReady   ArtifactStatus = "ready"
	ArtifactStatusStale   ArtifactStatus = "stale"
	ArtifactStatusFailed  ArtifactStatus = "failed"
	ArtifactStatusDeleted ArtifactStatus = "deleted"
)

// Artifact records one derived output of a document. DocumentID is a
// lookup-only back-reference: deleting a document marks its artifacts, it
// never cascades the rows away. Version backs the compare-and-swap that
// keeps status transitions linearizable per (document, type).
type Artifact struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"column:document_id;type:uuid;not null;index:idx_artifact_doc_type" json:"document_id"`
	Type        ArtifactType   `gorm:"column:type;not null;index:idx_artifact_doc_type" json:"type"`
	Fingerprint string         `gorm:"column:fingerprint;not null" json:"fingerprint"`
	StorageRef  string         `gorm:"column:storage_ref" json:"storage_ref"`
	Status      ArtifactStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Reason      string         `gorm:"column:reason" json:"reason,omitempty"`
	Extra       datatypes.JSON `gorm:"column:extra;type:jsonb" json:"extra,omitempty"`
	Version     int64          `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Artifact) TableName() string { return "artifact" }
