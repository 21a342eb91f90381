package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common/logger"
)

// fakeProcess is a pipe-backed child. The test writes its output and decides
// when it exits; Terminate exits it unless ignoreTerm is set.
type fakeProcess struct {
	pid        int
	ignoreTerm bool

	pr *io.PipeReader
	pw *io.PipeWriter

	code     int
	exited   chan struct{}
	exitOnce sync.Once

	terminated atomic.Bool
	killed     atomic.Bool
}

func newFakeProcess(pid int, ignoreTerm bool) *fakeProcess {
	pr, pw := io.Pipe()
	return &fakeProcess{pid: pid, ignoreTerm: ignoreTerm, pr: pr, pw: pw, exited: make(chan struct{})}
}

func (p *fakeProcess) Pid() int          { return p.pid }
func (p *fakeProcess) Output() io.Reader { return p.pr }
func (p *fakeProcess) Close() error      { return p.pr.Close() }

func (p *fakeProcess) Terminate() error {
	p.terminated.Store(true)
	if !p.ignoreTerm {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.code = code
		_ = p.pw.Close()
		close(p.exited)
	})
}

// write emits raw output. It fails silently once the reader is closed.
func (p *fakeProcess) write(s string) {
	_, _ = io.WriteString(p.pw, s)
}

type fakeSpawner struct {
	mu         sync.Mutex
	err        error
	ignoreTerm bool
	calls      [][]string
	started    chan *fakeProcess
	nextPid    int
	// onSpawn runs before the spawn proceeds.
	onSpawn func()
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{started: make(chan *fakeProcess, 16), nextPid: 1000}
}

func (s *fakeSpawner) Spawn(ctx context.Context, path string, args []string) (session.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]string{path}, args...))
	if s.onSpawn != nil {
		s.onSpawn()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrSpawnFailed, err)
	}
	if s.err != nil {
		return nil, s.err
	}
	s.nextPid++
	p := newFakeProcess(s.nextPid, s.ignoreTerm)
	s.started <- p
	return p, nil
}

func (s *fakeSpawner) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-s.started:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("process was not spawned")
		return nil
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	writeFn func(session.Target, []string) (session.ArtifactName, error)
	calls   [][]string
}

func (w *fakeWriter) Write(_ context.Context, target session.Target, lines []string) (session.ArtifactName, error) {
	w.mu.Lock()
	w.calls = append(w.calls, append([]string(nil), lines...))
	w.mu.Unlock()

	if w.writeFn != nil {
		return w.writeFn(target, lines)
	}
	return session.NewArtifactName(target), nil
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type harness struct {
	orch     *Orchestrator
	gate     *Gate
	registry *Registry
	spawner  *fakeSpawner
	writer   *fakeWriter
}

type harnessOption func(*SupervisorConfig, *OrchestratorConfig)

func newHarness(t *testing.T, capacity int, opts ...harnessOption) *harness {
	t.Helper()

	scfg := SupervisorConfig{
		ToolPath:  "/usr/bin/sherlock",
		Args:      []string{"--print-all", "--no-color"},
		Timeout:   5 * time.Second,
		KillGrace: 50 * time.Millisecond,
	}
	ocfg := OrchestratorConfig{EventBuffer: DefaultEventBuffer}
	for _, opt := range opts {
		opt(&scfg, &ocfg)
	}

	gate, err := NewGate(capacity)
	require.NoError(t, err)
	metrics, err := NewMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	tracer := noop.NewTracerProvider().Tracer("test")
	spawner := newFakeSpawner()
	writer := &fakeWriter{}
	registry := NewRegistry()
	sup := NewSupervisor(spawner, scfg, metrics, tracer, logger.Noop())

	return &harness{
		orch:     NewOrchestrator(gate, registry, sup, writer, ocfg, metrics, tracer, logger.Noop()),
		gate:     gate,
		registry: registry,
		spawner:  spawner,
		writer:   writer,
	}
}

func (h *harness) start(t *testing.T, target string) *Stream {
	t.Helper()
	tgt, err := session.NewTarget(target)
	require.NoError(t, err)
	st, err := h.orch.Start(context.Background(), tgt)
	require.NoError(t, err)
	return st
}

// next reads one event or fails the test.
func next(t *testing.T, st *Stream) session.Event {
	t.Helper()
	select {
	case ev, ok := <-st.Events():
		require.True(t, ok, "stream closed early")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// drain reads events until the stream closes.
func drain(t *testing.T, st *Stream) []session.Event {
	t.Helper()
	var out []session.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-st.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not close, got %d events", len(out))
			return out
		}
	}
}

var errSpawn = errors.New("exec: \"sherlock\": executable file not found in $PATH")
