package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/specter/internal/config"
	"github.com/ahrav/specter/internal/config/fileloader"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LOG_LEVEL", "ALLOWED_ORIGIN", "MAX_CONCURRENT_SEARCHES", "SEARCH_TIMEOUT", "SHERLOCK_PATH",
		"SPECTER_LOG_LEVEL", "SPECTER_SEARCH_MAX_CONCURRENT", "SPECTER_SEARCH_TIMEOUT", "SPECTER_TOOL_PATH",
		"SPECTER_WEB_ALLOWED_ORIGINS", "SPECTER_RESULTS_RETENTION",
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Web.APIHost)
	assert.Equal(t, []string{"*"}, cfg.Web.AllowedOrigins)
	assert.Equal(t, 3, cfg.Search.MaxConcurrent)
	assert.Equal(t, 300*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Search.KillGrace)
	assert.Equal(t, 64, cfg.Search.EventBuffer)
	assert.Equal(t, "sherlock", cfg.Tool.Name)
	assert.Equal(t, []string{"--print-all", "--no-color"}, cfg.Tool.Args)
	assert.Equal(t, filepath.Join(os.TempDir(), "specter"), cfg.Tool.WorkDir)
	assert.Equal(t, filepath.Join(os.TempDir(), "specter", "results"), cfg.Results.Dir)
	assert.Equal(t, 10*time.Minute, cfg.Results.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Results.SweepInterval)
	assert.False(t, cfg.Results.KeepEmpty)
	assert.Equal(t, 5, cfg.Limits.SearchesPerMinute)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverlayThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "specter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  max_concurrent: 7
  timeout: 45s
results:
  keep_empty: true
  retention: 1h
web:
  allowed_origins: ["https://a.example", "https://b.example"]
`), 0o644))

	t.Setenv("SPECTER_RESULTS_RETENTION", "2h")

	cfg, err := config.Load(context.Background(), fileloader.NewFileLoader(path))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Search.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Search.Timeout)
	assert.True(t, cfg.Results.KeepEmpty)
	assert.Equal(t, 2*time.Hour, cfg.Results.Retention, "environment overrides the file")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Web.AllowedOrigins)
}

func TestLoad_LegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ALLOWED_ORIGIN", "https://specter.example")
	t.Setenv("MAX_CONCURRENT_SEARCHES", "9")
	t.Setenv("SEARCH_TIMEOUT", "120")
	t.Setenv("SHERLOCK_PATH", "/opt/sherlock/bin/sherlock")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://specter.example"}, cfg.Web.AllowedOrigins)
	assert.Equal(t, 9, cfg.Search.MaxConcurrent)
	assert.Equal(t, 120*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "/opt/sherlock/bin/sherlock", cfg.Tool.Path)
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONCURRENT_SEARCHES", "9")
	t.Setenv("SPECTER_SEARCH_MAX_CONCURRENT", "2")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Search.MaxConcurrent)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "zero_concurrency", env: map[string]string{"SPECTER_SEARCH_MAX_CONCURRENT": "0"}},
		{name: "bad_legacy_timeout", env: map[string]string{"SEARCH_TIMEOUT": "five minutes"}},
		{name: "negative_timeout", env: map[string]string{"SPECTER_SEARCH_TIMEOUT": "-1s"}},
		{name: "unknown_log_level", env: map[string]string{"SPECTER_LOG_LEVEL": "chatty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(context.Background())
			assert.Error(t, err)
		})
	}
}

type failingLoader struct{}

func (failingLoader) Load(context.Context) (map[string]any, error) {
	return nil, errors.New("unreachable")
}

func TestLoad_LoaderError(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(context.Background(), failingLoader{})
	assert.Error(t, err)

	_, err = config.Load(context.Background(), fileloader.NewFileLoader(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}
