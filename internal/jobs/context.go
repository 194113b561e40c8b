package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// Context is the execution handle for one claimed job run: the decoded
// payload, the row, and the only sanctioned ways to finish it. Handlers
// go through Succeed/Fail so retry accounting lives in exactly one place.
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.JobRun
	Repo repos.JobRunRepo

	maxAttempts int
	payload     map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, maxAttempts int) *Context {
	c := &Context{
		Ctx:         ctx,
		DB:          db,
		Job:         job,
		Repo:        repo,
		maxAttempts: maxAttempts,
	}
	c.payload = map[string]any{}
	if job != nil && len(job.Payload) > 0 {
		// Malformed payloads leave the map empty; handlers fail on the
		// missing field with a better message than a decode error.
		_ = json.Unmarshal(job.Payload, &c.payload)
	}
	return c
}

func (c *Context) Payload(key string) string {
	v, _ := c.payload[key].(string)
	return v
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, error) {
	raw := c.Payload(key)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("payload field %q missing", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("payload field %q is not a uuid: %w", key, err)
	}
	return id, nil
}

func (c *Context) Heartbeat() {
	if c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(c.Ctx, c.DB, c.Job.ID)
}

func (c *Context) Succeed() error {
	now := time.Now().UTC()
	return c.Repo.UpdateFields(c.Ctx, c.DB, c.Job.ID, map[string]interface{}{
		"status":      types.JobStatusSucceeded,
		"finished_at": now,
		"last_error":  "",
	})
}

// Fail records the error and either requeues with backoff or, past the
// attempt ceiling, finishes the run as failed.
func (c *Context) Fail(stage string, cause error) error {
	msg := stage
	if cause != nil {
		msg = stage + ": " + cause.Error()
	}
	now := time.Now().UTC()
	if c.Job.Attempts >= c.maxAttempts {
		return c.Repo.UpdateFields(c.Ctx, c.DB, c.Job.ID, map[string]interface{}{
			"status":      types.JobStatusFailed,
			"finished_at": now,
			"last_error":  msg,
		})
	}
	backoff := time.Duration(c.Job.Attempts) * 30 * time.Second
	return c.Repo.UpdateFields(c.Ctx, c.DB, c.Job.ID, map[string]interface{}{
		"status":     types.JobStatusQueued,
		"run_at":     now.Add(backoff),
		"last_error": msg,
	})
}
