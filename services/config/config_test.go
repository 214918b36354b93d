package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensornode-go/types"
)

func TestEmbeddedConfigsAreValid(t *testing.T) {
	for device := range embeddedConfigs {
		t.Run(device, func(t *testing.T) {
			cfg, err := Load("", device)
			require.NoError(t, err)
			assert.Equal(t, device, cfg.Device)
			assert.NotEmpty(t, cfg.Pins)
		})
	}
}

func TestLoadUnknownDevice(t *testing.T) {
	_, err := Load("", "toaster")
	assert.ErrorContains(t, err, "no embedded config for device: toaster")
}

func TestParseLayersOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
chip:
  path: /dev/gpiochip4
pipeline:
  wait_slice: 250ms
pins:
  - name: btn
    line: 5
    mode: interrupt
    edge: both
    bias: [pull-up, active-low]
`))
	require.NoError(t, err)
	assert.Equal(t, "/dev/gpiochip4", cfg.Chip.Path)
	assert.Equal(t, "sensornode", cfg.Chip.Consumer)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.WaitSlice)
	assert.Equal(t, 100, cfg.Pipeline.RateSamples)
	require.Len(t, cfg.Pins, 1)

	edge, err := cfg.Pins[0].ParsedEdge()
	require.NoError(t, err)
	assert.Equal(t, types.EdgeBoth, edge)
	bias, err := cfg.Pins[0].ParsedBias()
	require.NoError(t, err)
	assert.Equal(t, types.BiasPullUp|types.BiasActiveLow, bias)
	assert.NoError(t, cfg.Validate())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("chip:\n  paht: /dev/gpiochip0\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENSORNODE_CHIP_PATH", "/dev/gpiochip9")
	t.Setenv("SENSORNODE_PIPELINE_WAIT_SLICE", "50ms")
	t.Setenv("SENSORNODE_LOG_LEVEL", "debug")
	t.Setenv("SENSORNODE_METRICS_ADDR", "")

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chip:\n  path: /dev/gpiochip0\nlog:\n  level: warn\n"), 0o600))

	cfg, err := Load(path, "bench")
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.Device)
	assert.Equal(t, "/dev/gpiochip9", cfg.Chip.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.WaitSlice)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero wait slice", func(c *Config) { c.Pipeline.WaitSlice = 0 }, "wait_slice"},
		{"inverted rates", func(c *Config) { c.Pipeline.LowRate, c.Pipeline.HighRate = 100, 10 }, "low_rate < high_rate"},
		{"no chip path", func(c *Config) { c.Chip.Path = "" }, "chip.path"},
		{"zero heartbeat", func(c *Config) { c.Heartbeat.Interval = 0 }, "heartbeat.interval"},
		{"duplicate line", func(c *Config) {
			c.Pins = []Pin{
				{Name: "a", Line: 3, Mode: ModeInput},
				{Name: "b", Line: 3, Mode: ModeOutput},
			}
		}, "line 3 already used by a"},
		{"bad edge", func(c *Config) {
			c.Pins = []Pin{{Name: "a", Line: 1, Mode: ModeInterrupt, Edge: "sideways"}}
		}, "unknown edge"},
		{"interrupt without edge", func(c *Config) {
			c.Pins = []Pin{{Name: "a", Line: 1, Mode: ModeInterrupt}}
		}, "need an edge"},
		{"edge on output", func(c *Config) {
			c.Pins = []Pin{{Name: "a", Line: 1, Mode: ModeOutput, Edge: "rising"}}
		}, "only valid for interrupt"},
		{"bad bias", func(c *Config) {
			c.Pins = []Pin{{Name: "a", Line: 1, Mode: ModeInput, Bias: []string{"pull-up", "pull-down"}}}
		}, "exclusive"},
		{"bad mode", func(c *Config) {
			c.Pins = []Pin{{Line: 1, Mode: "pwm"}}
		}, `pins[0]: unknown mode "pwm"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestDump(t *testing.T) {
	cfg, err := Load("", "sim")
	require.NoError(t, err)
	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "device: sim")
	assert.Contains(t, string(out), "name: status-led")
}
