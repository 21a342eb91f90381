package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common/logger"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// ToolNotFoundReason is reported when no tool executable is configured.
const ToolNotFoundReason = "Sherlock not found on the server. Set SHERLOCK_PATH or install sherlock-project."

// SupervisorConfig holds the settings for running the tool.
type SupervisorConfig struct {
	// ToolPath is the executable; empty means the tool was not found.
	ToolPath string
	// Args follow the target on the command line.
	Args []string
	// Timeout bounds the lifetime of one child.
	Timeout time.Duration
	// KillGrace is how long a terminated child has before it is killed.
	KillGrace time.Duration
	// TotalSites is reported as the total in every line event; zero omits it.
	TotalSites int
}

// Outcome is the terminal result of one supervised run.
type Outcome struct {
	Status   session.Status
	Reason   string
	ExitCode int
	Checked  int
	Err      error
}

// Supervisor owns the lifecycle of child processes: spawn, output capture,
// deadline enforcement and termination.
type Supervisor struct {
	spawner session.Spawner
	cfg     SupervisorConfig
	metrics Metrics

	tracer trace.Tracer
	logger *logger.Logger
}

// NewSupervisor creates a Supervisor that spawns through spawner.
func NewSupervisor(
	spawner session.Spawner,
	cfg SupervisorConfig,
	metrics Metrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Supervisor {
	return &Supervisor{spawner: spawner, cfg: cfg, metrics: metrics, tracer: tracer, logger: logger}
}

type exitResult struct {
	code int
	err  error
}

// Run drives s from PENDING to a terminal state and returns how it ended.
// When Run returns the child has been reaped and its output is no longer read.
func (sv *Supervisor) Run(ctx context.Context, s *Session) Outcome {
	ctx, span := sv.tracer.Start(ctx, "supervisor.session.run",
		trace.WithAttributes(
			attribute.String("session_id", s.id),
			attribute.String("target", s.target.String()),
			attribute.String("timeout", sv.cfg.Timeout.String()),
		))
	defer span.End()

	logCtx := logger.NewLoggerContext(sv.logger.With("session_id", s.id, "target", s.target.String()))

	if cause := context.Cause(ctx); cause != nil {
		s.transition(session.StatusPending, session.StatusCancelled)
		span.AddEvent("cancelled_before_spawn")
		return Outcome{Status: session.StatusCancelled, Reason: cause.Error(), Err: cause}
	}

	if sv.cfg.ToolPath == "" {
		s.transition(session.StatusPending, session.StatusFailed)
		span.SetStatus(codes.Error, "tool not found")
		return Outcome{Status: session.StatusFailed, Reason: ToolNotFoundReason, Err: session.ErrSpawnFailed}
	}

	args := append([]string{s.target.String()}, sv.cfg.Args...)
	proc, err := sv.spawner.Spawn(ctx, sv.cfg.ToolPath, args)
	if err != nil {
		// A cancel that lands while the tool is starting is still a cancel.
		if cause := context.Cause(ctx); cause != nil {
			s.transition(session.StatusPending, session.StatusCancelled)
			span.AddEvent("cancelled_during_spawn", trace.WithAttributes(attribute.String("cause", cause.Error())))
			return Outcome{Status: session.StatusCancelled, Reason: cause.Error(), Err: cause}
		}
		s.transition(session.StatusPending, session.StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		logCtx.Error(ctx, "failed to start tool", "error", err)
		if !errors.Is(err, session.ErrSpawnFailed) {
			err = fmt.Errorf("%w: %w", session.ErrSpawnFailed, err)
		}
		return Outcome{Status: session.StatusFailed, Reason: fmt.Sprintf("Error running sherlock: %v", err), Err: err}
	}
	defer proc.Close()

	s.pid.Store(int64(proc.Pid()))
	if !s.transition(session.StatusPending, session.StatusRunning) {
		_ = proc.Kill()
		_ = proc.Close()
		_, _ = proc.Wait()
		cause := context.Cause(ctx)
		if cause == nil {
			cause = session.ErrCancelled
		}
		// Another path already settled the session; report what it decided.
		return Outcome{Status: s.Status(), Reason: cause.Error(), Err: cause}
	}
	logCtx.Add("pid", proc.Pid())
	span.AddEvent("process_started", trace.WithAttributes(attribute.Int("pid", proc.Pid())))
	logCtx.Debug(ctx, "tool started")

	tr := NewTranslator(sv.cfg.TotalSites, &s.agg)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		sv.read(ctx, s, proc.Output(), tr)
	}()

	exitCh := make(chan exitResult, 1)
	go func() {
		<-readDone
		code, err := proc.Wait()
		exitCh <- exitResult{code: code, err: err}
	}()

	deadline := time.NewTimer(sv.cfg.Timeout)
	defer deadline.Stop()

	var out Outcome
	select {
	case ex := <-exitCh:
		out = sv.exited(s, ex)

	case <-deadline.C:
		span.AddEvent("deadline_exceeded")
		out = sv.terminate(ctx, s, proc, exitCh, session.StatusTimedOut, session.ErrTimedOut)
		out.Reason = "Search timed out."

	case <-ctx.Done():
		cause := context.Cause(ctx)
		span.AddEvent("cancel_requested", trace.WithAttributes(attribute.String("cause", cause.Error())))
		out = sv.terminate(ctx, s, proc, exitCh, session.StatusCancelled, cause)
	}
	out.Checked = tr.Checked()

	logCtx.Info(ctx, "tool finished",
		"status", out.Status.String(),
		"exit_code", out.ExitCode,
		"checked", out.Checked,
		"positives", s.agg.Count(),
	)
	span.SetAttributes(attribute.String("status", out.Status.String()), attribute.Int("checked", out.Checked))
	if out.Status == session.StatusFailed {
		span.SetStatus(codes.Error, out.Reason)
	} else {
		span.SetStatus(codes.Ok, out.Status.String())
	}

	return out
}

// exited handles an exit the supervisor did not cause.
func (sv *Supervisor) exited(s *Session, ex exitResult) Outcome {
	s.stopReading()

	switch {
	case ex.err != nil:
		s.transition(session.StatusRunning, session.StatusFailed)
		err := fmt.Errorf("%w: %w", session.ErrRuntimeFailed, ex.err)
		return Outcome{Status: session.StatusFailed, ExitCode: ex.code, Reason: fmt.Sprintf("Error running sherlock: %v", ex.err), Err: err}

	case ex.code == 0:
		s.transition(session.StatusRunning, session.StatusCompleted)
		return Outcome{Status: session.StatusCompleted}

	case ex.code < 0:
		s.transition(session.StatusRunning, session.StatusFailed)
		return Outcome{Status: session.StatusFailed, ExitCode: ex.code, Reason: "tool terminated by signal", Err: session.ErrRuntimeFailed}

	default:
		s.transition(session.StatusRunning, session.StatusFailed)
		return Outcome{
			Status:   session.StatusFailed,
			ExitCode: ex.code,
			Reason:   fmt.Sprintf("tool exited with status %d", ex.code),
			Err:      fmt.Errorf("%w: exit status %d", session.ErrRuntimeFailed, ex.code),
		}
	}
}

// terminate stops reading, signals the process group and escalates to a kill
// after the grace period. It returns once the child has been reaped.
func (sv *Supervisor) terminate(
	ctx context.Context,
	s *Session,
	proc session.Process,
	exitCh <-chan exitResult,
	status session.Status,
	cause error,
) Outcome {
	s.stopReading()
	s.transition(session.StatusRunning, status)

	if err := proc.Terminate(); err != nil {
		sv.logger.Warn(ctx, "failed to signal tool", "session_id", s.id, "error", err)
	}

	grace := time.NewTimer(sv.cfg.KillGrace)
	defer grace.Stop()

	var ex exitResult
	select {
	case ex = <-exitCh:
	case <-grace.C:
		trace.SpanFromContext(ctx).AddEvent("kill_escalated")
		sv.logger.Warn(ctx, "tool ignored termination, killing", "session_id", s.id, "pid", proc.Pid())
		if err := proc.Kill(); err != nil {
			sv.logger.Warn(ctx, "failed to kill tool", "session_id", s.id, "error", err)
		}

		grace.Reset(sv.cfg.KillGrace)
		select {
		case ex = <-exitCh:
		case <-grace.C:
			// A descendant outside the group may hold the pipe open.
			_ = proc.Close()
			ex = <-exitCh
		}
	}

	return Outcome{Status: status, ExitCode: ex.code, Reason: cause.Error(), Err: cause}
}

// read emits one event per result line until EOF. A line longer than
// maxLineSize is cut at that size and the remainder up to its newline is
// dropped, so later lines are still read. Once reading is stopped the rest of
// the output is drained and discarded so the child never blocks on a full pipe.
func (sv *Supervisor) read(ctx context.Context, s *Session, r io.Reader, tr *Translator) {
	br := bufio.NewReaderSize(r, initialLineBuffer)
	line := make([]byte, 0, initialLineBuffer)
	truncated := false

	for {
		chunk, err := br.ReadSlice('\n')
		if room := maxLineSize - len(line); len(chunk) > room {
			line = append(line, chunk[:max(room, 0)]...)
			truncated = true
		} else {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if len(line) > 0 {
			if truncated {
				sv.logger.Warn(ctx, "tool output line truncated", "session_id", s.id, "limit", maxLineSize)
			}
			sv.emitLine(ctx, s, tr, line)
		}
		line, truncated = line[:0], false

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			sv.logger.Warn(ctx, "stopped reading tool output", "session_id", s.id, "error", err)
		}
		_, _ = io.Copy(io.Discard, r)
		return
	}
}

func (sv *Supervisor) emitLine(ctx context.Context, s *Session, tr *Translator, line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	ev, ok := tr.Translate(string(bytes.ToValidUTF8(line, []byte("\uFFFD"))))
	if !ok {
		return
	}
	if s.emit(ev) {
		sv.metrics.IncLinesEmitted(ctx)
	}
}
