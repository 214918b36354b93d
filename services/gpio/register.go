package gpio

import (
	"fmt"

	"go.uber.org/zap"

	"sensornode-go/errcode"
	"sensornode-go/types"
)

// Interrupt is one entry of a batched registration.
type Interrupt struct {
	Pin     int
	Edge    types.Edge
	Bias    types.Bias
	Handler Handler
}

// Setter drives an output line.
type Setter func(level bool) error

// Getter reads an input line.
type Getter func() (bool, error)

// RegisterInterrupt watches pin for edge and calls h for each matching
// event. The line is requested on first use; registering another handler
// for the same pin and edge appends to the list, and a new edge on an
// open pin widens its detection. EdgeBoth registers h for both edges.
//
// Registration may happen while the pipeline runs; the capture loop picks
// new lines up before its next wait.
func (p *Pipeline) RegisterInterrupt(pin int, edge types.Edge, bias types.Bias, h Handler) error {
	const op = "register_interrupt"
	if h == nil {
		return errcode.New(errcode.InvalidParams, op, "nil handler")
	}
	if edge == types.EdgeNone {
		return errcode.New(errcode.InvalidParams, op, fmt.Sprintf("pin %d: no edge selected", pin))
	}
	if err := p.checkOpen(op); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpenLocked(op); err != nil {
		return err
	}

	ent, ok := p.lines[pin]
	switch {
	case !ok:
		line, err := p.chip.RequestInput(pin, edge, bias)
		if err != nil {
			return fmt.Errorf("pin %d: %w", pin, err)
		}
		ent = &lineEntry{line: line, use: useInterrupt, edges: edge, bias: bias}
		p.lines[pin] = ent
		p.order = append(p.order, pin)
		p.dirty = true
	case ent.use != useInterrupt:
		return &errcode.E{C: errcode.PinInUse, Op: op, Msg: fmt.Sprintf("pin %d is open as %s", pin, ent.use)}
	case !ent.edges.Has(edge):
		want := ent.edges | edge
		if err := ent.line.SetEdges(want); err != nil {
			return fmt.Errorf("pin %d: %w", pin, err)
		}
		ent.edges = want
	}
	if ok && bias != ent.bias {
		p.log.Warn("bias ignored for open pin",
			zap.Int("pin", pin), zap.Stringer("bias", bias), zap.Stringer("kept", ent.bias))
	}

	for _, e := range edge.Split() {
		k := handlerKey{pin: pin, edge: e}
		p.handlers[k] = append(p.handlers[k], h)
	}
	p.metrics.Registrations.Inc()
	p.log.Debug("interrupt registered",
		zap.Int("pin", pin), zap.Stringer("edge", edge), zap.Stringer("bias", bias))
	return nil
}

// RegisterInterrupts registers each entry in order. It stops at the first
// failure; entries registered before it stay registered.
func (p *Pipeline) RegisterInterrupts(list []Interrupt) error {
	for i, in := range list {
		if err := p.RegisterInterrupt(in.Pin, in.Edge, in.Bias, in.Handler); err != nil {
			return fmt.Errorf("interrupt %d of %d: %w", i+1, len(list), err)
		}
	}
	return nil
}

// RegisterOutput requests pin as an output driven to initial and returns
// a setter bound to it.
func (p *Pipeline) RegisterOutput(pin int, initial bool, bias types.Bias) (Setter, error) {
	ent, err := p.claimPlain("register_output", pin, useOutput, bias, initial)
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.Int("pin", pin))
	return func(level bool) error {
		if err := ent.line.SetValue(level); err != nil {
			log.Warn("set value failed", zap.Bool("level", level), zap.Error(err))
			return err
		}
		return nil
	}, nil
}

// RegisterInput requests pin as a plain input and returns a getter bound
// to it.
func (p *Pipeline) RegisterInput(pin int, bias types.Bias) (Getter, error) {
	ent, err := p.claimPlain("register_input", pin, useInput, bias, false)
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.Int("pin", pin))
	return func() (bool, error) {
		v, err := ent.line.Value()
		if err != nil {
			log.Warn("get value failed", zap.Error(err))
		}
		return v, err
	}, nil
}

func (p *Pipeline) claimPlain(op string, pin int, use lineUse, bias types.Bias, initial bool) (*lineEntry, error) {
	if err := p.checkOpen(op); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpenLocked(op); err != nil {
		return nil, err
	}

	if ent, ok := p.lines[pin]; ok {
		return nil, &errcode.E{C: errcode.PinInUse, Op: op, Msg: fmt.Sprintf("pin %d is open as %s", pin, ent.use)}
	}
	var ent *lineEntry
	if use == useOutput {
		line, err := p.chip.RequestOutput(pin, initial, bias)
		if err != nil {
			return nil, fmt.Errorf("pin %d: %w", pin, err)
		}
		ent = &lineEntry{line: line, use: use, bias: bias}
	} else {
		line, err := p.chip.RequestInput(pin, types.EdgeNone, bias)
		if err != nil {
			return nil, fmt.Errorf("pin %d: %w", pin, err)
		}
		ent = &lineEntry{line: line, use: use, bias: bias}
	}
	p.lines[pin] = ent
	p.order = append(p.order, pin)
	p.log.Debug("line registered", zap.Int("pin", pin), zap.Stringer("use", use), zap.Stringer("bias", bias))
	return ent, nil
}
