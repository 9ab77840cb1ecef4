package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full codeloop configuration
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Model      ModelConfig      `mapstructure:"model"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Prompts    PromptsConfig    `mapstructure:"prompts"`
	Cloud      CloudConfig      `mapstructure:"cloud"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// RunConfig contains run-level settings
type RunConfig struct {
	Name            string `mapstructure:"name"`
	Description     string `mapstructure:"description"`
	DescriptionFile string `mapstructure:"description_file"`
}

// ModelConfig contains inference endpoint settings
type ModelConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Name         string        `mapstructure:"name"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeySecret string        `mapstructure:"api_key_secret"` // Secret Manager path
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RunnerConfig contains generated-program execution settings
type RunnerConfig struct {
	Interpreter []string      `mapstructure:"interpreter"`
	Extension   string        `mapstructure:"extension"`
	WorkDir     string        `mapstructure:"work_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoopConfig contains iteration controller settings
type LoopConfig struct {
	MaxIterations     int  `mapstructure:"max_iterations"` // 0 = unlimited
	ContextAttempts   int  `mapstructure:"context_attempts"`
	ReuseJudgmentCode bool `mapstructure:"reuse_judgment_code"`
}

// FeedbackConfig contains reviewer input settings
type FeedbackConfig struct {
	Mode    string        `mapstructure:"mode"`    // auto, form, line or none
	Timeout time.Duration `mapstructure:"timeout"` // 0 = wait forever
	Prompt  string        `mapstructure:"prompt"`
}

// TranscriptConfig selects and configures the artifact store
type TranscriptConfig struct {
	Backend   string   `mapstructure:"backend"` // file, sqlite or s3
	Dir       string   `mapstructure:"dir"`
	SQLiteDSN string   `mapstructure:"sqlite_dsn"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config contains object store settings for the s3 backend
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// PromptsConfig points at a YAML file overriding the built-in prompts
type PromptsConfig struct {
	File string `mapstructure:"file"`
}

// CloudConfig contains GCP settings
type CloudConfig struct {
	Project string `mapstructure:"project"` // GCP project ID; detected when empty
}

// LoggingConfig contains run log settings
type LoggingConfig struct {
	Cloud   bool   `mapstructure:"cloud"` // mirror the run log to Cloud Logging
	LogName string `mapstructure:"log_name"`
}

// TracingConfig contains OpenTelemetry export settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// MetricsConfig contains Prometheus Pushgateway settings
type MetricsConfig struct {
	PushURL string `mapstructure:"push_url"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// keys lists every setting so AutomaticEnv can resolve it during Unmarshal.
var keys = []string{
	"run.name", "run.description", "run.description_file",
	"model.base_url", "model.name", "model.api_key", "model.api_key_secret",
	"model.temperature", "model.max_tokens", "model.timeout",
	"runner.interpreter", "runner.extension", "runner.work_dir", "runner.timeout",
	"loop.max_iterations", "loop.context_attempts", "loop.reuse_judgment_code",
	"feedback.mode", "feedback.timeout", "feedback.prompt",
	"transcript.backend", "transcript.dir", "transcript.sqlite_dsn",
	"transcript.s3.endpoint", "transcript.s3.access_key", "transcript.s3.secret_key",
	"transcript.s3.bucket", "transcript.s3.prefix", "transcript.s3.use_ssl",
	"prompts.file", "cloud.project", "logging.cloud", "logging.log_name",
	"tracing.enabled", "tracing.endpoint", "tracing.insecure", "metrics.push_url",
}

// BindEnv maps every setting to {prefix}_{SECTION}_{KEY}, e.g.
// CODELOOP_LOOP_MAX_ITERATIONS.
func BindEnv(v *viper.Viper, prefix string) error {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// Booleans whose default is true cannot be told apart from unset after
	// unmarshalling.
	v.SetDefault("loop.reuse_judgment_code", true)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Run.Name == "" {
		cfg.Run.Name = "codeloop"
	}

	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "http://127.0.0.1:1234/v1"
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = "local-model"
	}

	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 5 * time.Minute
	}

	if len(cfg.Runner.Interpreter) == 0 {
		cfg.Runner.Interpreter = []string{"python3"}
	}

	cfg.Runner.Extension = strings.TrimPrefix(cfg.Runner.Extension, ".")
	if cfg.Runner.Extension == "" {
		cfg.Runner.Extension = "py"
	}

	if cfg.Runner.Timeout == 0 {
		cfg.Runner.Timeout = 60 * time.Second
	}

	if cfg.Loop.ContextAttempts == 0 {
		cfg.Loop.ContextAttempts = 3
	}

	if cfg.Feedback.Mode == "" {
		cfg.Feedback.Mode = "auto"
	}

	if cfg.Transcript.Backend == "" {
		cfg.Transcript.Backend = BackendFile
	}

	if cfg.Transcript.Dir == "" {
		cfg.Transcript.Dir = "codeloop-runs"
	}

	if cfg.Logging.LogName == "" {
		cfg.Logging.LogName = "codeloop"
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4318"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Model.BaseURL == "" {
		return fmt.Errorf("model base_url is required")
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("invalid model temperature: %v (must be between 0 and 2)", c.Model.Temperature)
	}

	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model max_tokens must be >= 0")
	}

	if len(c.Runner.Interpreter) == 0 || c.Runner.Interpreter[0] == "" {
		return fmt.Errorf("runner interpreter is required")
	}

	if strings.EqualFold(strings.TrimPrefix(c.Runner.Extension, "."), "txt") {
		return fmt.Errorf("runner extension txt is reserved for program output")
	}

	if c.Runner.Timeout < 0 {
		return fmt.Errorf("runner timeout must be >= 0")
	}

	if c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop max_iterations must be >= 0 (0 means unlimited)")
	}

	if c.Loop.ContextAttempts < 1 {
		return fmt.Errorf("loop context_attempts must be >= 1")
	}

	validModes := map[string]bool{"auto": true, "form": true, "line": true, "none": true}
	if !validModes[c.Feedback.Mode] {
		return fmt.Errorf("invalid feedback mode: %s (must be auto, form, line, or none)", c.Feedback.Mode)
	}

	if c.Feedback.Timeout < 0 {
		return fmt.Errorf("feedback timeout must be >= 0")
	}

	switch c.Transcript.Backend {
	case BackendFile:
		if c.Transcript.Dir == "" {
			return fmt.Errorf("transcript dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Transcript.SQLiteDSN == "" {
			return fmt.Errorf("transcript sqlite_dsn is required for the sqlite backend")
		}
	case BackendS3:
		if c.Transcript.S3.Endpoint == "" {
			return fmt.Errorf("transcript s3 endpoint is required for the s3 backend")
		}
		if c.Transcript.S3.Bucket == "" {
			return fmt.Errorf("transcript s3 bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid transcript backend: %s (must be file, sqlite, or s3)", c.Transcript.Backend)
	}

	return nil
}

// ValidateForRun performs additional validation required before starting a run
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Run.Description == "" && c.Run.DescriptionFile == "" {
		return fmt.Errorf("a project description is required")
	}

	return nil
}
