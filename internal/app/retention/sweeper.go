// Package retention removes result files once they outlive the retention
// window.
package retention

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common/logger"
)

// Store is the artifact storage the sweeper prunes. List returns only entries
// matching the artifact naming pattern.
type Store interface {
	List(ctx context.Context) ([]session.ArtifactInfo, error)
	Remove(ctx context.Context, name session.ArtifactName) error
}

// Metrics records sweep results.
type Metrics interface {
	AddArtifactsSwept(ctx context.Context, n int64)
	IncSweepErrors(ctx context.Context)
}

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now() }

// Report summarizes one sweep.
type Report struct {
	Scanned int
	Removed int
	Failed  int
}

// Sweeper periodically deletes artifacts older than maxAge.
type Sweeper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	metrics  Metrics

	timeProvider timeProvider
	wg           sync.WaitGroup

	tracer trace.Tracer
	logger *logger.Logger
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(
	store Store,
	interval time.Duration,
	maxAge time.Duration,
	metrics Metrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Sweeper {
	return &Sweeper{
		store:        store,
		interval:     interval,
		maxAge:       maxAge,
		metrics:      metrics,
		timeProvider: realTimeProvider{},
		tracer:       tracer,
		logger:       logger,
	}
}

// Start sweeps once and then every interval in the background until ctx is
// cancelled. Wait blocks until the loop has exited.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info(ctx, "result sweeper started", "interval", s.interval.String(), "max_age", s.maxAge.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info(context.WithoutCancel(ctx), "result sweeper stopped")
				return

			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Wait blocks until a started sweeper has stopped.
func (s *Sweeper) Wait() { s.wg.Wait() }

// Sweep removes every artifact whose age exceeds maxAge. A failed removal is
// logged and the sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	now := s.timeProvider.Now()
	ctx, span := s.tracer.Start(ctx, "retention_sweeper.sweep",
		trace.WithAttributes(
			attribute.String("max_age", s.maxAge.String()),
			attribute.String("now", now.Format(time.RFC3339)),
		))
	defer span.End()

	infos, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list artifacts")
		s.logger.Error(ctx, "failed to list result files", "error", err)
		s.metrics.IncSweepErrors(ctx)
		return Report{}
	}

	rep := Report{Scanned: len(infos)}
	for _, info := range infos {
		if now.Sub(info.ModTime) <= s.maxAge {
			continue
		}

		if err := s.store.Remove(ctx, info.Name); err != nil {
			rep.Failed++
			s.metrics.IncSweepErrors(ctx)
			s.logger.Error(ctx, "error while removing result file", "name", info.Name, "error", err)
			continue
		}
		rep.Removed++
		s.logger.Info(ctx, "removed stale result file", "name", info.Name, "age", now.Sub(info.ModTime).String())
	}

	if rep.Removed > 0 {
		s.metrics.AddArtifactsSwept(ctx, int64(rep.Removed))
	}
	span.SetAttributes(
		attribute.Int("scanned", rep.Scanned),
		attribute.Int("removed", rep.Removed),
		attribute.Int("failed", rep.Failed),
	)
	span.SetStatus(codes.Ok, "sweep complete")

	return rep
}
