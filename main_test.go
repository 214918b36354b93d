package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sensornode-go/errcode"
	"sensornode-go/logging"
	"sensornode-go/services/config"
	"sensornode-go/services/gpio"
	"sensornode-go/services/gpio/chip"
	"sensornode-go/types"
)

func TestRegisterPinsFromEmbeddedConfig(t *testing.T) {
	cfg, err := config.Load("", "sim")
	require.NoError(t, err)

	sim := chip.NewSim(t.Name(), cfg.Chip.SimLines)
	t.Cleanup(func() { _ = sim.Close() })
	p := gpio.New(sim)
	require.NoError(t, registerPins(p, cfg.Pins, logging.Wrap(zaptest.NewLogger(t))))

	assert.Len(t, p.Pins(), len(cfg.Pins))
	for _, pin := range cfg.Pins {
		assert.True(t, chip.Claimed(sim.Name(), pin.Line), pin.Name)
	}
}

func TestRegisterPinsStopsOnConflict(t *testing.T) {
	sim := chip.NewSim(t.Name(), 8)
	t.Cleanup(func() { _ = sim.Close() })
	p := gpio.New(sim)

	pins := []config.Pin{
		{Name: "led", Line: 2, Mode: config.ModeOutput},
		{Name: "button", Line: 2, Mode: config.ModeInterrupt, Edge: "rising"},
	}
	err := registerPins(p, pins, logging.Nop())
	assert.ErrorIs(t, err, errcode.PinInUse)
}

func TestEventSinksCountAndLog(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc := config.Default().Pipeline
	pc.LogRate, pc.LogBurst = 1, 1
	sinks := newEventSinks(zaptest.NewLogger(t), reg, pc)
	sinks.logger.Start()

	for i := 0; i < 3; i++ {
		sinks.fanout.Get(types.Event{Pin: 5, Edge: types.EdgeRising, Timestamp: time.Duration(i)})
	}
	sinks.logger.Stop(0)
	require.Equal(t, 0, sinks.logger.Wait())

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "sensornode_gpio_edges_total"))
	assert.Equal(t, uint64(2), sinks.throttle.Dropped())
}
