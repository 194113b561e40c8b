package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
)

// Worker polls the job_run table and dispatches claimed jobs to their
// registered handlers. Polling keeps the queue in the same transactional
// store as the rows the jobs mutate; there is no separate broker to drift
// from the database.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *Registry

	pollInterval time.Duration
	maxAttempts  int
	staleRunning time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *Registry) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		pollInterval: 1 * time.Second,
		maxAttempts:  5,
		staleRunning: 2 * time.Minute,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

func (w *Worker) tick(ctx context.Context) {
	job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.maxAttempts, w.staleRunning)
	if err != nil {
		w.log.Warn("job claim failed", "error", err)
		return
	}
	if job == nil {
		return
	}
	jc := NewContext(ctx, w.db, job, w.repo, w.maxAttempts)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler for job type", "job_type", job.JobType, "job_id", job.ID.String())
		_ = jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}
	// A panicking handler fails the run instead of killing the worker.
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "job_id", job.ID.String(), "job_type", job.JobType, "panic", r)
				_ = jc.Fail("panic", fmt.Errorf("%v", r))
			}
		}()
		h.Run(jc)
	}()
}
