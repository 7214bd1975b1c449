// Package config provides unified configuration loading for sigilgate.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sigilgate/internal/backup"
	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/gate"
	"github.com/nvandessel/sigilgate/internal/logging"
	"github.com/nvandessel/sigilgate/internal/onboarding"
	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// SigilgateConfig contains all sigilgate configuration settings.
type SigilgateConfig struct {
	// Logging contains settings for operational and transition logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Verifier contains the spatial and timing rules for tracing.
	Verifier VerifierConfig `json:"verifier" yaml:"verifier"`

	// Sequencer contains the stage order and progress weighting.
	Sequencer SequencerConfig `json:"sequencer" yaml:"sequencer"`

	// Sigil describes the anchor path to trace.
	Sigil SigilConfig `json:"sigil" yaml:"sigil"`

	// Gates configures the reference completion gates.
	Gates GatesConfig `json:"gates" yaml:"gates"`

	// Metrics configures Prometheus collectors.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Backup configures catalog archives and their retention.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// LoggingConfig configures sigilgate's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity. "debug" and "trace" also enable the
	// transition trace at .sigilgate/transitions.jsonl.
	Level string `json:"level" yaml:"level" validate:"omitempty,loglevel"`
}

// VerifierConfig mirrors verifier.Config in file form.
type VerifierConfig struct {
	Tolerance     float64       `json:"tolerance" yaml:"tolerance" validate:"gt=0"`
	CaptureRadius float64       `json:"capture_radius" yaml:"capture_radius" validate:"gt=0,ltefield=Tolerance"`
	TimeBudget    time.Duration `json:"time_budget" yaml:"time_budget" validate:"gt=0"`
	TickInterval  time.Duration `json:"tick_interval" yaml:"tick_interval" validate:"gte=0"`
	FailHold      time.Duration `json:"fail_hold" yaml:"fail_hold" validate:"gte=0"`
	SuccessHold   time.Duration `json:"success_hold" yaml:"success_hold" validate:"gte=0"`
}

// SequencerConfig mirrors sequencer.Config in file form.
type SequencerConfig struct {
	Stages             []string `json:"stages" yaml:"stages" validate:"required,min=1,unique,dive,required"`
	Progress           []int    `json:"progress" yaml:"progress" validate:"required,dive,min=0,max=100"`
	TrustExternalJumps bool     `json:"trust_external_jumps" yaml:"trust_external_jumps"`
}

// SigilConfig describes the sigil. Explicit anchors take precedence over the
// generated zig-zag shape.
type SigilConfig struct {
	Anchors   []sigil.Anchor `json:"anchors,omitempty" yaml:"anchors,omitempty" validate:"omitempty,min=2"`
	Points    int            `json:"points" yaml:"points" validate:"min=2"`
	Step      float64        `json:"step" yaml:"step" validate:"gt=0"`
	Amplitude float64        `json:"amplitude" yaml:"amplitude"`
}

// GatesConfig configures the reference gates.
type GatesConfig struct {
	UploadDuration    time.Duration `json:"upload_duration" yaml:"upload_duration" validate:"gt=0"`
	UploadSteps       int           `json:"upload_steps" yaml:"upload_steps" validate:"min=1,max=100"`
	SelectionOptions  []string      `json:"selection_options" yaml:"selection_options" validate:"required,unique,dive,required"`
	SelectionRequired int           `json:"selection_required" yaml:"selection_required" validate:"min=1"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" validate:"omitempty,metricname"`

	// Addr is where /metrics is served while the MCP server runs.
	Addr string `json:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// BackupConfig configures catalog export. Retention applies to the
// directory an archive is written to; unset limits keep the 10 newest.
type BackupConfig struct {
	Compression  bool   `json:"compression" yaml:"compression"`
	MaxCount     int    `json:"max_count" yaml:"max_count" validate:"min=0"`
	MaxAge       string `json:"max_age,omitempty" yaml:"max_age,omitempty"`               // e.g. "30d", "2w", "720h"
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"` // e.g. "100MB"
}

// Default returns a SigilgateConfig with sensible defaults.
func Default() *SigilgateConfig {
	stages := make([]string, len(sequencer.DefaultStages))
	for i, s := range sequencer.DefaultStages {
		stages[i] = string(s)
	}
	return &SigilgateConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Verifier: VerifierConfig{
			Tolerance:     constants.DefaultTolerance,
			CaptureRadius: constants.DefaultCaptureRadius,
			TimeBudget:    constants.DefaultTimeBudget,
			TickInterval:  constants.DefaultTickInterval,
			FailHold:      constants.DefaultFailHold,
			SuccessHold:   constants.DefaultSuccessHold,
		},
		Sequencer: SequencerConfig{
			Stages:             stages,
			Progress:           append([]int(nil), constants.DefaultProgressTable...),
			TrustExternalJumps: true,
		},
		Sigil: SigilConfig{
			Points:    constants.DefaultSigilAnchors,
			Step:      constants.DefaultSigilStep,
			Amplitude: constants.DefaultSigilAmplitude,
		},
		Gates: GatesConfig{
			UploadDuration:    constants.DefaultUploadDuration,
			UploadSteps:       constants.DefaultUploadSteps,
			SelectionOptions:  append([]string(nil), constants.DefaultSelectionOptions...),
			SelectionRequired: constants.DefaultSelectionRequired,
		},
		Metrics: MetricsConfig{
			Namespace: "sigilgate",
			Addr:      "localhost:9464",
		},
		Backup: BackupConfig{
			Compression: true,
			MaxCount:    10,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.sigilgate/config.yaml -> <root>/.sigilgate/config.yaml -> environment.
func Load(root string) (*SigilgateConfig, error) {
	config := Default()

	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, constants.DirName, constants.ConfigFile))
	}
	if root != "" {
		paths = append(paths, filepath.Join(root, constants.DirName, constants.ConfigFile))
	}

	seen := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err == nil {
			if seen[abs] {
				continue
			}
			seen[abs] = true
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if err := mergeFile(config, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the defaults.
func LoadFromFile(path string) (*SigilgateConfig, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

func mergeFile(config *SigilgateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *SigilgateConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var (
	validate        = newValidator()
	metricNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logging.ValidLevel(fl.Field().String())
	})
	_ = v.RegisterValidation("metricname", func(fl validator.FieldLevel) bool {
		return metricNameRegex.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks that the configuration is valid: field rules first, then
// the cross-section rules each component enforces on construction.
func (c *SigilgateConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q rule (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validating config: %w", err)
	}

	if err := c.VerifierConfig().Validate(); err != nil {
		return fmt.Errorf("verifier: %w", err)
	}
	if err := c.SequencerConfig().Validate(); err != nil {
		return fmt.Errorf("sequencer: %w", err)
	}
	if c.Gates.SelectionRequired > len(c.Gates.SelectionOptions) {
		return fmt.Errorf("gates: selection_required %d exceeds %d options",
			c.Gates.SelectionRequired, len(c.Gates.SelectionOptions))
	}
	if _, err := c.Graph(); err != nil {
		return fmt.Errorf("sigil: %w", err)
	}
	if _, err := c.Retention(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// Retention builds the archive retention limits.
func (c *SigilgateConfig) Retention() (backup.Retention, error) {
	b := c.Backup
	return backup.NewRetention(b.MaxCount, b.MaxAge, b.MaxTotalSize)
}

// VerifierConfig converts the verifier section.
func (c *SigilgateConfig) VerifierConfig() verifier.Config {
	v := c.Verifier
	return verifier.Config{
		Tolerance:     v.Tolerance,
		CaptureRadius: v.CaptureRadius,
		TimeBudget:    v.TimeBudget,
		TickInterval:  v.TickInterval,
		FailHold:      v.FailHold,
		SuccessHold:   v.SuccessHold,
	}
}

// SequencerConfig converts the sequencer section.
func (c *SigilgateConfig) SequencerConfig() sequencer.Config {
	stages := make([]sequencer.Stage, len(c.Sequencer.Stages))
	for i, s := range c.Sequencer.Stages {
		stages[i] = sequencer.Stage(s)
	}
	return sequencer.Config{
		Stages:             stages,
		Progress:           append([]int(nil), c.Sequencer.Progress...),
		TrustExternalJumps: c.Sequencer.TrustExternalJumps,
	}
}

// OnboardingConfig converts every section a Flow needs.
func (c *SigilgateConfig) OnboardingConfig() onboarding.Config {
	return onboarding.Config{
		Verifier:  c.VerifierConfig(),
		Sequencer: c.SequencerConfig(),
		Upload: gate.UploadConfig{
			Duration: c.Gates.UploadDuration,
			Steps:    c.Gates.UploadSteps,
		},
		SelectionOptions:  append([]string(nil), c.Gates.SelectionOptions...),
		SelectionRequired: c.Gates.SelectionRequired,
	}
}

// Graph builds the configured sigil.
func (c *SigilgateConfig) Graph() (*sigil.Graph, error) {
	if len(c.Sigil.Anchors) > 0 {
		return sigil.NewPath(c.Sigil.Anchors)
	}
	return sigil.NewPath(sigil.Zigzag(c.Sigil.Points, c.Sigil.Step, c.Sigil.Amplitude))
}

// envOverrides holds the environment variables that override file settings.
// Unset variables leave their pointer nil.
type envOverrides struct {
	LogLevel           *string        `env:"SIGILGATE_LOG_LEVEL"`
	Tolerance          *float64       `env:"SIGILGATE_TOLERANCE"`
	CaptureRadius      *float64       `env:"SIGILGATE_CAPTURE_RADIUS"`
	TimeBudget         *time.Duration `env:"SIGILGATE_TIME_BUDGET"`
	TrustExternalJumps *bool          `env:"SIGILGATE_TRUST_EXTERNAL_JUMPS"`
	MetricsEnabled     *bool          `env:"SIGILGATE_METRICS_ENABLED"`
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SigilgateConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		config.Logging.Level = *o.LogLevel
	}
	if o.Tolerance != nil {
		config.Verifier.Tolerance = *o.Tolerance
	}
	if o.CaptureRadius != nil {
		config.Verifier.CaptureRadius = *o.CaptureRadius
	}
	if o.TimeBudget != nil {
		config.Verifier.TimeBudget = *o.TimeBudget
	}
	if o.TrustExternalJumps != nil {
		config.Sequencer.TrustExternalJumps = *o.TrustExternalJumps
	}
	if o.MetricsEnabled != nil {
		config.Metrics.Enabled = *o.MetricsEnabled
	}
	return nil
}
