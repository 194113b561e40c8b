package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job type names are shared between the services that enqueue work and the
// worker handlers that claim it.
const (
	JobTypeArtifactDerive = "artifact.derive"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRun is one unit of background work claimed by the worker: an artifact
// derivation, the pending-timeout sweep or the GC sweep.
type JobRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType  string         `gorm:"column:entity_type" json:"entity_type"`
	EntityID    uuid.UUID      `gorm:"column:entity_id;type:uuid;index" json:"entity_id"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	Status      JobStatus      `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	RunAt       time.Time      `gorm:"column:run_at;not null;index" json:"run_at"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	FinishedAt  *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	LastError   string         `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
