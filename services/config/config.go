// Package config loads the node configuration: a YAML document (from a
// file or embedded per device), environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"

	"sensornode-go/types"
)

// EnvPrefix prefixes every override variable, e.g. SENSORNODE_CHIP_PATH.
const EnvPrefix = "SENSORNODE"

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type Config struct {
	Device    string          `yaml:"device" split_words:"true"`
	Chip      ChipConfig      `yaml:"chip" split_words:"true"`
	Pipeline  PipelineConfig  `yaml:"pipeline" split_words:"true"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" split_words:"true"`
	Metrics   MetricsConfig   `yaml:"metrics" split_words:"true"`
	Log       LogConfig       `yaml:"log" split_words:"true"`
	Pins      []Pin           `yaml:"pins" ignored:"true"`
}

type ChipConfig struct {
	Path     string `yaml:"path" split_words:"true"`
	Consumer string `yaml:"consumer" split_words:"true"`
	Sim      bool   `yaml:"sim" split_words:"true"`
	SimLines int    `yaml:"sim_lines" split_words:"true"`
}

type PipelineConfig struct {
	WaitSlice   time.Duration `yaml:"wait_slice" split_words:"true"`
	RateSamples int           `yaml:"rate_samples" split_words:"true"`
	RateSpan    time.Duration `yaml:"rate_span" split_words:"true"`
	MaxTimeout  time.Duration `yaml:"max_timeout" split_words:"true"`
	LowRate     float64       `yaml:"low_rate" split_words:"true"`
	HighRate    float64       `yaml:"high_rate" split_words:"true"`
	// event log throttle, events/s and burst
	LogRate  float64 `yaml:"log_rate" split_words:"true"`
	LogBurst int     `yaml:"log_burst" split_words:"true"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval" split_words:"true"`
}

// MetricsConfig.Addr empty disables the /metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr" split_words:"true"`
}

type LogConfig struct {
	Level       string `yaml:"level" split_words:"true"`
	Development bool   `yaml:"development" split_words:"true"`
}

// Pin modes.
const (
	ModeInterrupt = "interrupt"
	ModeInput     = "input"
	ModeOutput    = "output"
)

// Pin is one line the node uses.
type Pin struct {
	Name    string   `yaml:"name"`
	Line    int      `yaml:"line"`
	Mode    string   `yaml:"mode"`
	Edge    string   `yaml:"edge,omitempty"`
	Bias    []string `yaml:"bias,omitempty"`
	Initial bool     `yaml:"initial,omitempty"`
}

// ParsedEdge parses the pin's edge selection.
func (p Pin) ParsedEdge() (types.Edge, error) { return types.ParseEdge(p.Edge) }

// ParsedBias parses the pin's bias flags.
func (p Pin) ParsedBias() (types.Bias, error) { return types.ParseBias(p.Bias) }

// Default returns the built-in settings every document is layered on.
func Default() *Config {
	return &Config{
		Chip: ChipConfig{
			Path:     "/dev/gpiochip0",
			Consumer: "sensornode",
			SimLines: 32,
		},
		Pipeline: PipelineConfig{
			WaitSlice:   time.Second,
			RateSamples: 100,
			RateSpan:    6 * time.Second,
			MaxTimeout:  100 * time.Millisecond,
			LowRate:     10,
			HighRate:    100,
			LogRate:     20,
			LogBurst:    10,
		},
		Heartbeat: HeartbeatConfig{Interval: 2 * time.Second},
		Metrics:   MetricsConfig{Addr: ":9108"},
		Log:       LogConfig{Level: "info"},
	}
}

// Parse layers a YAML document over Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from SENSORNODE_* variables named after the field
// path, e.g. SENSORNODE_PIPELINE_WAIT_SLICE. Unset variables leave values
// alone. Keys come from split_words, not envconfig tags, since a tagged
// field would also match the bare tag name (PATH).
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

// Load reads path, or the embedded config for device when path is empty,
// applies environment overrides and validates the result.
func Load(path, device string) (*Config, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		var ok bool
		raw, ok = EmbeddedConfigLookup(device)
		if !ok || len(raw) == 0 {
			return nil, errors.New("no embedded config for device: " + device)
		}
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Device == "" {
		cfg.Device = device
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) { return yaml.Marshal(cfg) }

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if !c.Chip.Sim && c.Chip.Path == "" {
		add("chip.path is required unless chip.sim is set")
	}
	if c.Chip.Sim && c.Chip.SimLines <= 0 {
		add("chip.sim_lines must be positive")
	}

	p := c.Pipeline
	if p.WaitSlice <= 0 {
		add("pipeline.wait_slice must be positive")
	}
	if p.RateSamples <= 0 {
		add("pipeline.rate_samples must be positive")
	}
	if p.RateSpan <= 0 {
		add("pipeline.rate_span must be positive")
	}
	if p.MaxTimeout < 0 {
		add("pipeline.max_timeout must not be negative")
	}
	if p.LowRate < 0 || p.HighRate <= p.LowRate {
		add("pipeline: need 0 <= low_rate < high_rate, got %g and %g", p.LowRate, p.HighRate)
	}
	if p.LogRate <= 0 || p.LogBurst <= 0 {
		add("pipeline.log_rate and log_burst must be positive")
	}
	if c.Heartbeat.Interval <= 0 {
		add("heartbeat.interval must be positive")
	}

	seen := map[int]string{}
	for i, pin := range c.Pins {
		id := pin.Name
		if id == "" {
			id = fmt.Sprintf("pins[%d]", i)
		}
		if pin.Line < 0 {
			add("%s: line must not be negative", id)
		}
		if prev, dup := seen[pin.Line]; dup {
			add("%s: line %d already used by %s", id, pin.Line, prev)
		}
		seen[pin.Line] = id

		edge, e := pin.ParsedEdge()
		if e != nil {
			add("%s: %w", id, e)
		}
		if _, e := pin.ParsedBias(); e != nil {
			add("%s: %w", id, e)
		}
		switch pin.Mode {
		case ModeInterrupt:
			if e == nil && edge == types.EdgeNone {
				add("%s: interrupt pins need an edge", id)
			}
		case ModeInput, ModeOutput:
			if edge != types.EdgeNone {
				add("%s: edge is only valid for interrupt pins", id)
			}
		default:
			add("%s: unknown mode %q", id, pin.Mode)
		}
	}
	return err
}
