//go:build linux

package chip

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"sensornode-go/errcode"
	"sensornode-go/types"
)

// Open opens a GPIO character device, e.g. "gpiochip0" or
// "/dev/gpiochip0". consumer labels every line requested through it.
func Open(path, consumer string) (Chip, error) {
	c, err := gpiocdev.NewChip(path, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownChip, "open "+path, err)
	}
	return &cdevChip{c: c, q: newEventQueue(), lines: map[int]*cdevLine{}}, nil
}

type cdevChip struct {
	c *gpiocdev.Chip
	q *eventQueue

	mu    sync.Mutex
	lines map[int]*cdevLine
}

func (c *cdevChip) Name() string { return c.c.Name }
func (c *cdevChip) Lines() int   { return c.c.Lines() }

func (c *cdevChip) LineInfo(offset int) (LineInfo, error) {
	li, err := c.c.LineInfo(offset)
	if err != nil {
		return LineInfo{}, mapErr("line_info", err)
	}
	return LineInfo{Offset: li.Offset, Name: li.Name, Consumer: li.Consumer, Used: li.Used}, nil
}

func (c *cdevChip) RequestInput(offset int, edges types.Edge, bias types.Bias) (Line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithEventHandler(c.handle)}
	opts = append(opts, edgeOption(edges))
	opts = append(opts, biasOptions(bias)...)
	return c.request(offset, "request_input", false, opts)
}

func (c *cdevChip) RequestOutput(offset int, initial bool, bias types.Bias) (Line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(boolToInt(initial))}
	opts = append(opts, biasOptions(bias)...)
	return c.request(offset, "request_output", true, opts)
}

func (c *cdevChip) request(offset int, op string, output bool, opts []gpiocdev.LineReqOption) (Line, error) {
	if err := claim(c.Name(), offset, op); err != nil {
		return nil, err
	}
	l, err := c.c.RequestLine(offset, opts...)
	if err != nil {
		release(c.Name(), offset)
		return nil, mapErr(op, err)
	}
	cl := &cdevLine{chip: c, l: l, offset: offset, output: output}
	c.mu.Lock()
	c.lines[offset] = cl
	c.mu.Unlock()
	return cl, nil
}

// handle runs on gpiocdev's watcher goroutine.
func (c *cdevChip) handle(evt gpiocdev.LineEvent) {
	edge := types.EdgeFalling
	if evt.Type == gpiocdev.LineEventRisingEdge {
		edge = types.EdgeRising
	}
	c.q.push(types.Event{Pin: evt.Offset, Edge: edge, Timestamp: evt.Timestamp})
}

func (c *cdevChip) WaitEdgeEvents(ctx context.Context, lines []Line, timeout time.Duration) ([]types.Event, error) {
	return c.q.wait(ctx, lines, timeout)
}

func (c *cdevChip) Close() error {
	c.mu.Lock()
	lines := make([]*cdevLine, 0, len(c.lines))
	for _, l := range c.lines {
		lines = append(lines, l)
	}
	c.mu.Unlock()

	var err error
	for _, l := range lines {
		err = multierr.Append(err, l.Close())
	}
	return multierr.Append(err, c.c.Close())
}

type cdevLine struct {
	chip   *cdevChip
	l      *gpiocdev.Line
	offset int
	output bool

	mu     sync.Mutex
	closed bool
}

func (l *cdevLine) Offset() int { return l.offset }

func (l *cdevLine) Value() (bool, error) {
	v, err := l.l.Value()
	if err != nil {
		return false, mapErr("value", err)
	}
	return v != 0, nil
}

func (l *cdevLine) SetValue(level bool) error {
	if !l.output {
		return &errcode.E{C: errcode.WrongMode, Op: "set_value", Msg: "line is an input"}
	}
	return mapErr("set_value", l.l.SetValue(boolToInt(level)))
}

func (l *cdevLine) SetEdges(edges types.Edge) error {
	if l.output {
		return &errcode.E{C: errcode.WrongMode, Op: "set_edges", Msg: "line is an output"}
	}
	return mapErr("set_edges", l.l.Reconfigure(edgeOption(edges)))
}

func (l *cdevLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return &errcode.E{C: errcode.Closed, Op: "close"}
	}
	l.closed = true
	l.mu.Unlock()

	l.chip.mu.Lock()
	delete(l.chip.lines, l.offset)
	l.chip.mu.Unlock()

	err := l.l.Close()
	l.chip.q.drop(l.offset)
	release(l.chip.Name(), l.offset)
	return mapErr("close", err)
}

func edgeOption(e types.Edge) gpiocdev.LineEdge {
	switch e {
	case types.EdgeRising:
		return gpiocdev.WithRisingEdge
	case types.EdgeFalling:
		return gpiocdev.WithFallingEdge
	case types.EdgeBoth:
		return gpiocdev.WithBothEdges
	default:
		return gpiocdev.WithoutEdges
	}
}

func biasOptions(b types.Bias) []gpiocdev.LineReqOption {
	var opts []gpiocdev.LineReqOption
	if b&types.BiasPullUp != 0 {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if b&types.BiasPullDown != 0 {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if b&types.BiasOpenDrain != 0 {
		opts = append(opts, gpiocdev.AsOpenDrain)
	}
	if b&types.BiasOpenSource != 0 {
		opts = append(opts, gpiocdev.AsOpenSource)
	}
	if b&types.BiasActiveLow != 0 {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	return opts
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EBUSY):
		return errcode.Wrap(errcode.PinInUse, op, err)
	case errors.Is(err, gpiocdev.ErrInvalidOffset):
		return errcode.Wrap(errcode.UnknownPin, op, err)
	case errors.Is(err, gpiocdev.ErrClosed):
		return errcode.Wrap(errcode.Closed, op, err)
	default:
		return errcode.Wrap(errcode.Rejected, op, err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
