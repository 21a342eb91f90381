// Package config loads the service configuration from defaults, an optional
// YAML overlay and the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the service reads, except the
// legacy names listed in legacyEnv.
const EnvPrefix = "SPECTER"

// Config represents the top-level configuration.
type Config struct {
	Web       WebConfig       `yaml:"web" mapstructure:"web"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Tool      ToolConfig      `yaml:"tool" mapstructure:"tool"`
	Results   ResultsConfig   `yaml:"results" mapstructure:"results"`
	Limits    LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// WebConfig configures the HTTP servers.
type WebConfig struct {
	APIHost     string        `yaml:"api_host" mapstructure:"api_host" validate:"required"`
	DebugHost   string        `yaml:"debug_host" mapstructure:"debug_host"`
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gt=0"`

	// WriteTimeout of zero leaves responses unbounded; event streams last as
	// long as a search.
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// StaticDir is served at / when it holds an index.html.
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
	// TrustProxy keys rate limits on X-Forwarded-For instead of the peer.
	TrustProxy bool `yaml:"trust_proxy" mapstructure:"trust_proxy"`
}

// SearchConfig bounds the search sessions.
type SearchConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"min=1"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	KillGrace     time.Duration `yaml:"kill_grace" mapstructure:"kill_grace" validate:"gt=0"`
	EventBuffer   int           `yaml:"event_buffer" mapstructure:"event_buffer" validate:"min=1"`
}

// ToolConfig describes the enumeration tool.
type ToolConfig struct {
	// Name is looked up on PATH when Path is empty or missing.
	Name       string   `yaml:"name" mapstructure:"name" validate:"required"`
	Path       string   `yaml:"path" mapstructure:"path"`
	Args       []string `yaml:"args" mapstructure:"args"`
	WorkDir    string   `yaml:"work_dir" mapstructure:"work_dir" validate:"required"`
	TotalSites int      `yaml:"total_sites" mapstructure:"total_sites" validate:"min=0"`
}

// ResultsConfig controls artifact storage and retention.
type ResultsConfig struct {
	Dir           string        `yaml:"dir" mapstructure:"dir" validate:"required"`
	Retention     time.Duration `yaml:"retention" mapstructure:"retention" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"gt=0"`
	KeepEmpty     bool          `yaml:"keep_empty" mapstructure:"keep_empty"`
}

// LimitsConfig sets the per client request budget for searches.
type LimitsConfig struct {
	SearchesPerMinute int           `yaml:"searches_per_minute" mapstructure:"searches_per_minute" validate:"min=1"`
	Burst             int           `yaml:"burst" mapstructure:"burst" validate:"min=1"`
	IdleTTL           time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl" validate:"gt=0"`
}

// TelemetryConfig configures tracing and metrics export. An empty Endpoint
// disables export.
type TelemetryConfig struct {
	ServiceName string  `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	Probability float64 `yaml:"probability" mapstructure:"probability" validate:"gte=0,lte=1"`
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
}

func setDefaults(v *viper.Viper) {
	base := filepath.Join(os.TempDir(), "specter")

	v.SetDefault("web.api_host", "0.0.0.0:8000")
	v.SetDefault("web.debug_host", "")
	v.SetDefault("web.read_timeout", 10*time.Second)
	v.SetDefault("web.write_timeout", 0)
	v.SetDefault("web.idle_timeout", 120*time.Second)
	v.SetDefault("web.shutdown_timeout", 20*time.Second)
	v.SetDefault("web.allowed_origins", []string{"*"})
	v.SetDefault("web.static_dir", "")
	v.SetDefault("web.trust_proxy", false)

	v.SetDefault("search.max_concurrent", 3)
	v.SetDefault("search.timeout", 300*time.Second)
	v.SetDefault("search.kill_grace", 3*time.Second)
	v.SetDefault("search.event_buffer", 64)

	v.SetDefault("tool.name", "sherlock")
	v.SetDefault("tool.path", "")
	v.SetDefault("tool.args", []string{"--print-all", "--no-color"})
	v.SetDefault("tool.work_dir", base)
	v.SetDefault("tool.total_sites", 0)

	v.SetDefault("results.dir", filepath.Join(base, "results"))
	v.SetDefault("results.retention", 10*time.Minute)
	v.SetDefault("results.sweep_interval", 5*time.Minute)
	v.SetDefault("results.keep_empty", false)

	v.SetDefault("limits.searches_per_minute", 5)
	v.SetDefault("limits.burst", 5)
	v.SetDefault("limits.idle_ttl", 10*time.Minute)

	v.SetDefault("telemetry.service_name", "specter")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.probability", 0.05)
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("log.level", "info")
}

// legacyEnv maps the unprefixed variable names the service has always
// honoured to their keys. A prefixed variable for the same key wins.
var legacyEnv = map[string]string{
	"LOG_LEVEL":               "log.level",
	"ALLOWED_ORIGIN":          "web.allowed_origins",
	"MAX_CONCURRENT_SEARCHES": "search.max_concurrent",
	"SEARCH_TIMEOUT":          "search.timeout",
	"SHERLOCK_PATH":           "tool.path",
}

// Load builds the configuration: defaults, then each loader in order, then the
// environment. The result is validated.
func Load(ctx context.Context, loaders ...Loader) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, l := range loaders {
		settings, err := l.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading config overlay: %w", err)
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merging config overlay: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := applyLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyLegacyEnv(v *viper.Viper) error {
	for name, key := range legacyEnv {
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(prefixed); ok {
			continue
		}

		switch name {
		case "SEARCH_TIMEOUT":
			secs, err := strconv.Atoi(val)
			if err != nil || secs <= 0 {
				return fmt.Errorf("SEARCH_TIMEOUT must be a positive number of seconds, got %q", val)
			}
			v.Set(key, time.Duration(secs)*time.Second)
		case "ALLOWED_ORIGIN":
			v.Set(key, []string{val})
		default:
			v.Set(key, val)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint of cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
