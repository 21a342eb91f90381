package session

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common/logger"
)

// DefaultEventBuffer is the number of events a session may queue ahead of a
// slow consumer before its reader pauses.
const DefaultEventBuffer = 64

// ReportWriter persists the positive lines of a completed session.
type ReportWriter interface {
	Write(ctx context.Context, target session.Target, lines []string) (session.ArtifactName, error)
}

// OrchestratorConfig holds the settings that shape every session.
type OrchestratorConfig struct {
	// EventBuffer bounds the events queued per session.
	EventBuffer int
	// KeepEmpty writes an artifact even when a completed search found nothing.
	KeepEmpty bool
}

// Orchestrator composes the gate, registry, supervisor and report writer into
// one session lifecycle.
type Orchestrator struct {
	gate       *Gate
	registry   *Registry
	supervisor *Supervisor
	writer     ReportWriter
	cfg        OrchestratorConfig
	metrics    Metrics

	timeProvider timeProvider

	// mu orders admission against Shutdown so wg.Add never races wg.Wait.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	tracer trace.Tracer
	logger *logger.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	gate *Gate,
	registry *Registry,
	supervisor *Supervisor,
	writer ReportWriter,
	cfg OrchestratorConfig,
	metrics Metrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Orchestrator {
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	return &Orchestrator{
		gate:         gate,
		registry:     registry,
		supervisor:   supervisor,
		writer:       writer,
		cfg:          cfg,
		metrics:      metrics,
		timeProvider: realTimeProvider{},
		tracer:       tracer,
		logger:       logger,
	}
}

// Start admits a search for target and returns its event stream. It returns
// ErrAdmissionRejected without creating anything when every slot is taken,
// and ErrShuttingDown once Shutdown has begun.
// The session outlives ctx; use Stream.Close or Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, target session.Target) (*Stream, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.session.start",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		span.SetStatus(codes.Error, "shutting down")
		o.logger.Warn(ctx, "search rejected, shutting down", "target", target.String())
		return nil, session.ErrShuttingDown
	}

	slot, ok := o.gate.TryAcquire()
	if !ok {
		o.metrics.IncSessionsRejected(ctx)
		span.SetStatus(codes.Error, "admission rejected")
		o.logger.Warn(ctx, "search rejected, all slots busy", "target", target.String(), "capacity", o.gate.Capacity())
		return nil, session.ErrAdmissionRejected
	}

	id := session.NewID()
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	s := newSession(id, target, o.timeProvider.Now(), cancel, o.cfg.EventBuffer)

	o.registry.Register(id, s)
	// The buffer always has room for the first event.
	s.events <- session.IdentityEvent{SessionID: id}

	o.metrics.IncSessionsStarted(ctx)
	o.metrics.AddActiveSessions(ctx, 1)
	span.SetAttributes(attribute.String("session_id", id))
	o.logger.Info(ctx, "search started", "session_id", id, "target", target.String())

	o.wg.Add(1)
	go o.run(runCtx, s, slot)

	span.SetStatus(codes.Ok, "session admitted")
	return &Stream{s: s}, nil
}

// Cancel cancels the live session id. It returns false when id is unknown or
// already terminal. True means the cancel was requested, not that it took
// effect: a session whose tool exits at the same moment may still finish as
// COMPLETED, and its terminal event is authoritative.
func (o *Orchestrator) Cancel(ctx context.Context, id string) bool {
	ok := o.registry.Cancel(id, session.ErrCancelled)
	o.logger.Info(ctx, "cancel requested", "session_id", id, "found", ok)
	return ok
}

// Active reports the number of sessions holding a slot.
func (o *Orchestrator) Active() int { return o.gate.InUse() }

// Capacity reports the maximum number of concurrent sessions.
func (o *Orchestrator) Capacity() int { return o.gate.Capacity() }

// Shutdown stops admitting sessions, cancels every live one and waits for
// their teardown or for ctx to end, whichever comes first.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	n := o.registry.CancelAll(session.ErrShuttingDown)
	o.logger.Info(ctx, "cancelling live sessions", "count", n)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the session and performs teardown in a fixed order: the
// supervisor stops reading, the slot is released, the registry entry is
// removed and the terminal event is emitted.
func (o *Orchestrator) run(ctx context.Context, s *Session, slot *Slot) {
	defer o.wg.Done()

	out := o.supervisor.Run(ctx, s)

	slot.Release()
	o.metrics.AddActiveSessions(ctx, -1)
	o.registry.Unregister(s.id)
	s.cancel(nil)

	ev := o.finalize(context.WithoutCancel(ctx), s, out)

	o.metrics.IncSessionsFinished(ctx, out.Status)
	o.metrics.ObserveSessionDuration(ctx, out.Status, o.timeProvider.Now().Sub(s.createdAt))
	o.logger.Info(ctx, "search finished",
		"session_id", s.id,
		"target", s.target.String(),
		"status", out.Status.String(),
		"checked", out.Checked,
		"positives", s.agg.Count(),
	)

	s.finish(ev)
}

// finalize builds the terminal event, writing the artifact for a completed
// session.
func (o *Orchestrator) finalize(ctx context.Context, s *Session, out Outcome) session.Event {
	switch out.Status {
	case session.StatusCompleted:
		done := session.DoneEvent{Status: out.Status, Count: s.agg.Count()}
		if done.Count == 0 && !o.cfg.KeepEmpty {
			return done
		}

		name, err := o.writer.Write(ctx, s.target, s.agg.Lines())
		if err != nil {
			o.logger.Error(ctx, "failed to write results file", "session_id", s.id, "error", err)
			done.Reason = "Failed to write results file."
			return done
		}
		o.metrics.IncArtifactsWritten(ctx)
		done.Artifact = name.String()
		return done

	case session.StatusTimedOut, session.StatusCancelled:
		return session.DoneEvent{Status: out.Status, Count: s.agg.Count(), Reason: out.Reason}

	default:
		return session.ErrorEvent{Reason: out.Reason}
	}
}
