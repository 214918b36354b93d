package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sensornode-go/logging"
	"sensornode-go/services/config"
	"sensornode-go/services/gpio"
	"sensornode-go/services/gpio/chip"
	"sensornode-go/types"
)

// registerPins requests every configured line. Interrupt pins are
// registered as one batch; the first failure aborts startup.
func registerPins(p *gpio.Pipeline, pins []config.Pin, log *logging.Logger) error {
	var irqs []gpio.Interrupt
	for _, pin := range pins {
		// config.Validate has already checked these parse
		edge, _ := pin.ParsedEdge()
		bias, _ := pin.ParsedBias()

		switch pin.Mode {
		case config.ModeInterrupt:
			name := pin.Name
			irqs = append(irqs, gpio.Interrupt{
				Pin:  pin.Line,
				Edge: edge,
				Bias: bias,
				Handler: func(ev types.Event) {
					log.Debug("interrupt", zap.String("pin", name), zap.Stringer("edge", ev.Edge))
				},
			})
		case config.ModeOutput:
			if _, err := p.RegisterOutput(pin.Line, pin.Initial, bias); err != nil {
				return fmt.Errorf("output %s: %w", pin.Name, err)
			}
		case config.ModeInput:
			get, err := p.RegisterInput(pin.Line, bias)
			if err != nil {
				return fmt.Errorf("input %s: %w", pin.Name, err)
			}
			if v, err := get(); err == nil {
				log.Info("input level", zap.String("pin", pin.Name), zap.Bool("high", v))
			}
		}
	}
	return p.RegisterInterrupts(irqs)
}

// simulate toggles every simulated interrupt line, one line per tick.
func simulate(ctx context.Context, sim *chip.Sim, pins []config.Pin) {
	var lines []int
	for _, p := range pins {
		if p.Mode == config.ModeInterrupt {
			lines = append(lines, p.Line)
		}
	}
	if len(lines) == 0 {
		return
	}
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			line := lines[i%len(lines)]
			level, _ := sim.Level(line)
			sim.Drive(line, !level)
		}
	}
}
