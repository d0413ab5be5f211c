// Package config loads varbatch settings from ~/.varbatch/config.yaml, an
// optional project overlay and VARBATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rshade/varbatch/internal/annotate"
	"github.com/rshade/varbatch/internal/engine/batch"
	"github.com/rshade/varbatch/internal/ipc"
)

// Default values.
const (
	DefaultFork         = 0
	DefaultBufferSize   = batch.DefaultBufferSize
	DefaultAnnotator    = annotate.VariantClassName
	DefaultOutputFormat = "vcf"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"

	configFileName = "config.yaml"
	outputTypeFile = "file"

	// maxFork bounds the number of worker processes.
	maxFork = 1024
)

// Environment variables that override file settings.
const (
	EnvHome          = "VARBATCH_HOME"
	EnvFork          = "VARBATCH_FORK"
	EnvBufferSize    = "VARBATCH_BUFFER_SIZE"
	EnvLogLevel      = "VARBATCH_LOG_LEVEL"
	EnvWorkerTimeout = "VARBATCH_WORKER_TIMEOUT"
	EnvProjectDir    = "VARBATCH_PROJECT_DIR"
)

// Output formats.
const (
	FormatVCF    = "vcf"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// ValidOutputFormats lists the accepted output.format values.
//
//nolint:gochecknoglobals // read-only lookup table
var ValidOutputFormats = []string{FormatVCF, FormatJSON, FormatNDJSON}

//nolint:gochecknoglobals // read-only lookup table
var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete varbatch configuration.
type Config struct {
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`

	configPath string
}

// DispatchConfig controls the parallel dispatcher.
type DispatchConfig struct {
	// Fork is the number of worker processes; 0 runs in-process.
	Fork       int `yaml:"fork"`
	BufferSize int `yaml:"buffer_size"`
	// MinSubChunk overrides the splitter's additive floor when positive.
	MinSubChunk   int           `yaml:"min_sub_chunk,omitempty"`
	WorkerTimeout time.Duration `yaml:"worker_timeout,omitempty"`
	// WorkerBinary runs a different executable as the worker.
	WorkerBinary   string     `yaml:"worker_binary,omitempty"`
	Sequential     bool       `yaml:"sequential,omitempty"`
	WorkerLogLevel string     `yaml:"worker_log_level,omitempty"`
	Faults         ipc.Faults `yaml:"faults,omitempty"`
}

// AnnotationConfig selects the annotator.
type AnnotationConfig struct {
	Annotator string            `yaml:"annotator"`
	Options   map[string]string `yaml:"options,omitempty"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	Format string `yaml:"format"`
	// OmitHeader drops VCF header lines from vcf output.
	OmitHeader bool `yaml:"omit_header,omitempty"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// Default returns a Config holding only built-in defaults.
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			Fork:       DefaultFork,
			BufferSize: DefaultBufferSize,
		},
		Annotation: AnnotationConfig{
			Annotator: DefaultAnnotator,
		},
		Output: OutputConfig{
			Format: DefaultOutputFormat,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// New returns defaults overlaid with the user config file, if any, and the
// environment. A malformed config file is ignored; use Load to see the error.
func New() *Config {
	cfg := newFromFile()
	cfg.ApplyEnvOverrides()
	return cfg
}

func newFromFile() *Config {
	cfg := Default()
	dir, err := GetConfigDir()
	if err != nil {
		return cfg
	}
	cfg.configPath = filepath.Join(dir, configFileName)
	if _, statErr := os.Stat(cfg.configPath); statErr == nil {
		_ = cfg.Load(cfg.configPath)
	}
	return cfg
}

// Load reads path and unmarshals it over c.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Save writes c to its config path, creating the directory if needed.
func (c *Config) Save() error {
	if c.configPath == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return err
		}
		c.configPath = filepath.Join(dir, configFileName)
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes c to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns the file c was loaded from or will be saved to.
func (c *Config) Path() string {
	return c.configPath
}

// ApplyEnvOverrides applies VARBATCH_* variables. Unparseable values are
// ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvFork); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dispatch.Fork = n
		}
	}
	if v := os.Getenv(EnvBufferSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dispatch.BufferSize = n
		}
	}
	if v := os.Getenv(EnvWorkerTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Dispatch.WorkerTimeout = d
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks value ranges and names. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	d := c.Dispatch
	if d.Fork < 0 || d.Fork > maxFork {
		errs = append(errs, fmt.Errorf("dispatch.fork must be between 0 and %d, got %d", maxFork, d.Fork))
	}
	if d.BufferSize < batch.MinBufferSize || d.BufferSize > batch.MaxBufferSize {
		errs = append(errs, fmt.Errorf("dispatch.buffer_size must be between %d and %d, got %d",
			batch.MinBufferSize, batch.MaxBufferSize, d.BufferSize))
	}
	if d.MinSubChunk < 0 {
		errs = append(errs, fmt.Errorf("dispatch.min_sub_chunk must be >= 0, got %d", d.MinSubChunk))
	}
	if d.WorkerTimeout < 0 {
		errs = append(errs, fmt.Errorf("dispatch.worker_timeout must be >= 0, got %s", d.WorkerTimeout))
	}
	if d.WorkerLogLevel != "" && !slices.Contains(validLogLevels, d.WorkerLogLevel) {
		errs = append(errs, fmt.Errorf("dispatch.worker_log_level %q is not a log level", d.WorkerLogLevel))
	}
	if !annotate.Default().Has(c.Annotation.Annotator) {
		errs = append(errs, fmt.Errorf("annotation.annotator %q is not a registered annotator", c.Annotation.Annotator))
	}
	if !slices.Contains(ValidOutputFormats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format must be one of %v, got %q", ValidOutputFormats, c.Output.Format))
	}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not a log level", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
