package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/specter/internal/domain/session"
)

const namespace = "specter_sessions"

// Metrics defines the instrumentation the session core records.
type Metrics interface {
	IncSessionsStarted(ctx context.Context)
	IncSessionsRejected(ctx context.Context)
	IncSessionsFinished(ctx context.Context, status session.Status)
	ObserveSessionDuration(ctx context.Context, status session.Status, d time.Duration)
	AddActiveSessions(ctx context.Context, delta int64)
	IncLinesEmitted(ctx context.Context)
	IncArtifactsWritten(ctx context.Context)
	AddArtifactsSwept(ctx context.Context, n int64)
	IncSweepErrors(ctx context.Context)
}

type metrics struct {
	sessionsStarted  metric.Int64Counter
	sessionsRejected metric.Int64Counter
	sessionsFinished metric.Int64Counter
	sessionDuration  metric.Float64Histogram
	activeSessions   metric.Int64UpDownCounter
	linesEmitted     metric.Int64Counter
	artifactsWritten metric.Int64Counter
	artifactsSwept   metric.Int64Counter
	sweepErrors      metric.Int64Counter
}

// NewMetrics creates the session instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(metrics)
	var err error

	if m.sessionsStarted, err = meter.Int64Counter(
		"sessions_started_total",
		metric.WithDescription("Total number of admitted search sessions"),
	); err != nil {
		return nil, err
	}

	if m.sessionsRejected, err = meter.Int64Counter(
		"sessions_rejected_total",
		metric.WithDescription("Total number of searches rejected because every slot was taken"),
	); err != nil {
		return nil, err
	}

	if m.sessionsFinished, err = meter.Int64Counter(
		"sessions_finished_total",
		metric.WithDescription("Total number of sessions that reached a terminal state"),
	); err != nil {
		return nil, err
	}

	if m.sessionDuration, err = meter.Float64Histogram(
		"session_duration_seconds",
		metric.WithDescription("Time from admission to terminal state"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.activeSessions, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of sessions currently holding a slot"),
	); err != nil {
		return nil, err
	}

	if m.linesEmitted, err = meter.Int64Counter(
		"lines_emitted_total",
		metric.WithDescription("Total number of result lines streamed to clients"),
	); err != nil {
		return nil, err
	}

	if m.artifactsWritten, err = meter.Int64Counter(
		"artifacts_written_total",
		metric.WithDescription("Total number of result files written"),
	); err != nil {
		return nil, err
	}

	if m.artifactsSwept, err = meter.Int64Counter(
		"artifacts_swept_total",
		metric.WithDescription("Total number of expired result files removed"),
	); err != nil {
		return nil, err
	}

	if m.sweepErrors, err = meter.Int64Counter(
		"sweep_errors_total",
		metric.WithDescription("Total number of result files the sweeper failed to remove"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) IncSessionsStarted(ctx context.Context)  { m.sessionsStarted.Add(ctx, 1) }
func (m *metrics) IncSessionsRejected(ctx context.Context) { m.sessionsRejected.Add(ctx, 1) }

func (m *metrics) IncSessionsFinished(ctx context.Context, status session.Status) {
	m.sessionsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.WireName())))
}

func (m *metrics) ObserveSessionDuration(ctx context.Context, status session.Status, d time.Duration) {
	m.sessionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status.WireName())))
}

func (m *metrics) AddActiveSessions(ctx context.Context, delta int64) {
	m.activeSessions.Add(ctx, delta)
}

func (m *metrics) IncLinesEmitted(ctx context.Context) {
	m.linesEmitted.Add(ctx, 1)
}

func (m *metrics) IncArtifactsWritten(ctx context.Context) {
	m.artifactsWritten.Add(ctx, 1)
}

func (m *metrics) AddArtifactsSwept(ctx context.Context, n int64) {
	m.artifactsSwept.Add(ctx, n)
}

func (m *metrics) IncSweepErrors(ctx context.Context) {
	m.sweepErrors.Add(ctx, 1)
}
