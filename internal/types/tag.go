package types

import (
	"time"

	"github.com/google/uuid"
)

type TagKind string

const (
	TagKindShared  TagKind = "shared"
	TagKindPrivate TagKind = "private"
)

// Tag is a named, permissioned grouping of documents. Private tags are
// created implicitly for a session and visible only to their owner.
type Tag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:idx_tag_name_ci,expression:lower(name)" json:"name"`
	Kind      TagKind   `gorm:"column:kind;not null;default:'shared'" json:"kind"`
	OwnerID   uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Tag) TableName() string { return "tag" }
