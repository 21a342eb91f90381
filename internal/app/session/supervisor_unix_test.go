//go:build !windows

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/internal/infra/process"
	"github.com/ahrav/specter/internal/infra/storage/artifact"
	"github.com/ahrav/specter/pkg/common/logger"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-sherlock")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newRealOrchestrator(t *testing.T, toolPath string, timeout time.Duration) (*Orchestrator, *artifact.Store) {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	store, err := artifact.NewStore(filepath.Join(t.TempDir(), "results"), logger.Noop(), tracer)
	require.NoError(t, err)
	metrics, err := NewMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)
	gate, err := NewGate(1)
	require.NoError(t, err)

	sup := NewSupervisor(
		process.NewSpawner(t.TempDir()),
		SupervisorConfig{
			ToolPath:  toolPath,
			Args:      []string{"--print-all", "--no-color"},
			Timeout:   timeout,
			KillGrace: 100 * time.Millisecond,
		},
		metrics, tracer, logger.Noop(),
	)
	return NewOrchestrator(gate, NewRegistry(), sup, store, OrchestratorConfig{}, metrics, tracer, logger.Noop()), store
}

func TestSupervisor_RealProcessCompletes(t *testing.T) {
	script := writeScript(t, `
[ "$2" = "--print-all" ] || exit 9
echo "[*] Checking username $1 on:"
echo "[+] GitHub: https://github.com/$1"
echo "[-] Reddit: Not Found!" 1>&2
printf '[+] GitLab: https://gitlab.com/%s' "$1"
`)
	orch, store := newRealOrchestrator(t, script, 5*time.Second)

	target, err := session.NewTarget("alice")
	require.NoError(t, err)
	st, err := orch.Start(context.Background(), target)
	require.NoError(t, err)

	events := drain(t, st)
	require.Len(t, events, 5)
	assert.IsType(t, session.IdentityEvent{}, events[0])

	done, ok := events[4].(session.DoneEvent)
	require.True(t, ok)
	assert.Equal(t, session.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Count)

	name, err := session.ParseArtifactName(done.Artifact)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(store.Dir(), name.String()))
	require.NoError(t, err)
	assert.Equal(t, "[+] GitHub: https://github.com/alice\n[+] GitLab: https://gitlab.com/alice", string(data))
}

func TestSupervisor_RealProcessTimesOutAndIsKilled(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "survived")
	script := writeScript(t, `
trap '' TERM
echo "[-] Site: Not Found!"
sleep 2
touch "`+marker+`"
`)
	orch, _ := newRealOrchestrator(t, script, 200*time.Millisecond)

	target, err := session.NewTarget("alice")
	require.NoError(t, err)
	st, err := orch.Start(context.Background(), target)
	require.NoError(t, err)

	start := time.Now()
	events := drain(t, st)
	assert.Less(t, time.Since(start), 2*time.Second)

	done, ok := events[len(events)-1].(session.DoneEvent)
	require.True(t, ok)
	assert.Equal(t, session.StatusTimedOut, done.Status)
	assert.Empty(t, done.Artifact)

	// The group kill must have reached the script before it could finish.
	time.Sleep(2500 * time.Millisecond)
	assert.NoFileExists(t, marker)
}
