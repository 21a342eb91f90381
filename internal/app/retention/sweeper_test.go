package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/internal/infra/storage/artifact"
	"github.com/ahrav/specter/pkg/common/logger"
)

type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

type mockStore struct{ mock.Mock }

func (m *mockStore) List(ctx context.Context) ([]session.ArtifactInfo, error) {
	args := m.Called(ctx)
	infos, _ := args.Get(0).([]session.ArtifactInfo)
	return infos, args.Error(1)
}

func (m *mockStore) Remove(ctx context.Context, name session.ArtifactName) error {
	return m.Called(ctx, name).Error(0)
}

type recordingMetrics struct {
	mu     sync.Mutex
	swept  int64
	errors int
}

func (r *recordingMetrics) AddArtifactsSwept(_ context.Context, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept += n
}

func (r *recordingMetrics) IncSweepErrors(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func artifactName(t *testing.T, target string) session.ArtifactName {
	t.Helper()
	tgt, err := session.NewTarget(target)
	require.NoError(t, err)
	return session.NewArtifactName(tgt)
}

func newTestSweeper(store Store, metrics Metrics, now time.Time) *Sweeper {
	s := NewSweeper(store, time.Minute, 10*time.Minute, metrics, noop.NewTracerProvider().Tracer("test"), logger.Noop())
	s.timeProvider = &mockTimeProvider{now: now}
	return s
}

func TestSweeper_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	old := artifactName(t, "old")
	older := artifactName(t, "older")
	fresh := artifactName(t, "fresh")
	edge := artifactName(t, "edge")

	tests := []struct {
		name        string
		infos       []session.ArtifactInfo
		removeErr   map[session.ArtifactName]error
		wantRemoved []session.ArtifactName
		wantReport  Report
	}{
		{
			name:       "empty_directory",
			wantReport: Report{},
		},
		{
			name: "removes_only_expired",
			infos: []session.ArtifactInfo{
				{Name: old, ModTime: now.Add(-11 * time.Minute)},
				{Name: fresh, ModTime: now.Add(-time.Minute)},
				{Name: edge, ModTime: now.Add(-10 * time.Minute)},
			},
			wantRemoved: []session.ArtifactName{old},
			wantReport:  Report{Scanned: 3, Removed: 1},
		},
		{
			name: "failure_does_not_stop_sweep",
			infos: []session.ArtifactInfo{
				{Name: old, ModTime: now.Add(-time.Hour)},
				{Name: older, ModTime: now.Add(-2 * time.Hour)},
			},
			removeErr:   map[session.ArtifactName]error{old: errors.New("permission denied")},
			wantRemoved: []session.ArtifactName{old, older},
			wantReport:  Report{Scanned: 2, Removed: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("List", mock.Anything).Return(tt.infos, nil)
			for _, name := range tt.wantRemoved {
				store.On("Remove", mock.Anything, name).Return(tt.removeErr[name]).Once()
			}
			metrics := new(recordingMetrics)

			rep := newTestSweeper(store, metrics, now).Sweep(context.Background())

			assert.Equal(t, tt.wantReport, rep)
			assert.Equal(t, int64(tt.wantReport.Removed), metrics.swept)
			assert.Equal(t, tt.wantReport.Failed, metrics.errors)
			store.AssertExpectations(t)
			store.AssertNumberOfCalls(t, "Remove", len(tt.wantRemoved))
		})
	}
}

func TestSweeper_ListFailure(t *testing.T) {
	store := new(mockStore)
	store.On("List", mock.Anything).Return(nil, errors.New("no such directory"))
	metrics := new(recordingMetrics)

	rep := newTestSweeper(store, metrics, time.Now()).Sweep(context.Background())

	assert.Equal(t, Report{}, rep)
	assert.Equal(t, 1, metrics.errors)
	store.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestSweeper_RealStoreLeavesForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "results")
	store, err := artifact.NewStore(dir, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	target, err := session.NewTarget("alice")
	require.NoError(t, err)
	expired, err := store.Write(ctx, target, []string{"[+] a"})
	require.NoError(t, err)
	young, err := store.Write(ctx, target, []string{"[+] b"})
	require.NoError(t, err)

	foreign := filepath.Join(dir, "README.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))
	lookalike := filepath.Join(dir, "alice_"+strings.Repeat("z", 32)+".txt")
	require.NoError(t, os.WriteFile(lookalike, []byte("x"), 0o644))

	now := time.Now()
	past := now.Add(-time.Hour)
	for _, p := range []string{filepath.Join(dir, expired.String()), foreign, lookalike} {
		require.NoError(t, os.Chtimes(p, past, past))
	}

	rep := newTestSweeper(store, new(recordingMetrics), now).Sweep(ctx)
	assert.Equal(t, 1, rep.Removed)

	assert.NoFileExists(t, filepath.Join(dir, expired.String()))
	assert.FileExists(t, filepath.Join(dir, young.String()))
	assert.FileExists(t, foreign)
	assert.FileExists(t, lookalike)
}

func TestSweeper_StartSweepsImmediatelyAndStops(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	name := artifactName(t, "alice")

	store := new(mockStore)
	store.On("List", mock.Anything).Return([]session.ArtifactInfo{{Name: name, ModTime: now.Add(-time.Hour)}}, nil)
	removed := make(chan struct{}, 1)
	store.On("Remove", mock.Anything, name).Return(nil).Run(func(mock.Arguments) {
		select {
		case removed <- struct{}{}:
		default:
		}
	})

	s := newTestSweeper(store, new(recordingMetrics), now)
	s.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sweep at startup")
	}

	cancel()
	s.Wait()
	store.AssertNumberOfCalls(t, "List", 1)
}
