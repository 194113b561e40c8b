package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// Metrics holds the service's instruments. Instruments come from the
// global meter provider, so with no metrics SDK installed every recording
// is a cheap no-op and call sites never nil-check.
type Metrics struct {
	uploads       metric.Int64Counter
	derivations   metric.Int64Counter
	gcReclaimed   metric.Int64Counter
	scopeResolved metric.Int64Counter
}

var (
	metricsOnce sync.Once
	current     *Metrics
)

func Init(log *logger.Logger) *Metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("docscope")
		m := &Metrics{}
		var err error
		if m.uploads, err = meter.Int64Counter("docscope.uploads.total"); err != nil && log != nil {
			log.Warn("metric init failed", "metric", "uploads", "error", err)
		}
		if m.derivations, err = meter.Int64Counter("docscope.derivations.total"); err != nil && log != nil {
			log.Warn("metric init failed", "metric", "derivations", "error", err)
		}
		if m.gcReclaimed, err = meter.Int64Counter("docscope.gc.reclaimed.total"); err != nil && log != nil {
			log.Warn("metric init failed", "metric", "gc_reclaimed", "error", err)
		}
		if m.scopeResolved, err = meter.Int64Counter("docscope.scope.resolved.total"); err != nil && log != nil {
			log.Warn("metric init failed", "metric", "scope_resolved", "error", err)
		}
		current = m
	})
	return current
}

// Current returns the instruments, or nil before Init. Callers use the
// nil-safe Observe helpers below.
func Current() *Metrics { return current }

func (m *Metrics) ObserveUpload(ctx context.Context) {
	if m == nil || m.uploads == nil {
		return
	}
	m.uploads.Add(ctx, 1)
}

func (m *Metrics) ObserveDerivation(ctx context.Context, artifactType, outcome string) {
	if m == nil || m.derivations == nil {
		return
	}
	m.derivations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("artifact_type", artifactType),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) ObserveGCReclaimed(ctx context.Context, documents, artifacts int) {
	if m == nil || m.gcReclaimed == nil {
		return
	}
	m.gcReclaimed.Add(ctx, int64(documents), metric.WithAttributes(attribute.String("kind", "document")))
	m.gcReclaimed.Add(ctx, int64(artifacts), metric.WithAttributes(attribute.String("kind", "artifact")))
}

func (m *Metrics) ObserveScopeResolved(ctx context.Context, docs, tokens int) {
	if m == nil || m.scopeResolved == nil {
		return
	}
	m.scopeResolved.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("documents", docs),
		attribute.Int("tokens", tokens),
	))
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer("docscope")
}
