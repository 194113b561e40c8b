package types

import (
	"time"

	"github.com/google/uuid"
)

type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

// Rank orders levels so that admin implies write implies read.
func (l PermissionLevel) Rank() int {
	switch l {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

func (l PermissionLevel) Covers(required PermissionLevel) bool {
	return l.Rank() >= required.Rank() && required.Rank() > 0
}

// Permission maps (user, tag) to a level. The composite primary key keeps
// at most one row per pair; Grant upserts rather than inserting duplicates.
type Permission struct {
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	TagID     uuid.UUID       `gorm:"column:tag_id;type:uuid;primaryKey;index" json:"tag_id"`
	Level     PermissionLevel `gorm:"column:level;not null" json:"level"`
	CreatedAt time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Permission) TableName() string { return "permission" }
