package jobs

import (
	"context"
	"time"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/services"
)

// Sweeper runs the two maintenance passes on their own tickers: failing
// derivations stuck pending past the timeout, and the GC reclaim of
// soft-deleted records past retention. Both passes are idempotent, so
// overlapping runs across replicas are wasteful but harmless.
type Sweeper struct {
	artifacts services.ArtifactService
	gc        services.GCService
	log       *logger.Logger

	derivationTimeout time.Duration
	timeoutInterval   time.Duration
	gcInterval        time.Duration
}

func NewSweeper(
	artifacts services.ArtifactService,
	gc services.GCService,
	derivationTimeout time.Duration,
	baseLog *logger.Logger,
) *Sweeper {
	if derivationTimeout <= 0 {
		derivationTimeout = 10 * time.Minute
	}
	return &Sweeper{
		artifacts:         artifacts,
		gc:                gc,
		log:               baseLog.With("component", "Sweeper"),
		derivationTimeout: derivationTimeout,
		timeoutInterval:   time.Minute,
		gcInterval:        15 * time.Minute,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx, s.timeoutInterval, s.sweepTimeouts)
	go s.loop(ctx, s.gcInterval, s.sweepGC)
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

func (s *Sweeper) sweepTimeouts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.derivationTimeout)
	failed, err := s.artifacts.FailPendingOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Warn("pending timeout sweep failed", "error", err)
		return
	}
	if failed > 0 {
		s.log.Info("timed out stuck derivations", "count", failed)
	}
}

func (s *Sweeper) sweepGC(ctx context.Context) {
	if _, err := s.gc.Sweep(ctx); err != nil {
		s.log.Warn("gc sweep failed", "error", err)
	}
}
