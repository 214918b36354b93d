// Package gpio captures edge events from a GPIO chip and dispatches them to
// registered handlers in capture order.
//
// A Pipeline owns two goroutines: the capture loop, run by an embedded
// worker.Runner, blocks in a bulk wait across every interrupt line; the
// dispatch goroutine drains the capture FIFO and calls handlers one event
// at a time. Handlers therefore never run on the registering goroutine and
// a slow handler delays every pin.
package gpio

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"sensornode-go/errcode"
	"sensornode-go/pipeline"
	"sensornode-go/services/gpio/chip"
	"sensornode-go/types"
	"sensornode-go/worker"
	"sensornode-go/x/stats"
)

const DefaultWaitSlice = time.Second

// Handler is called on the dispatch goroutine for each matching event.
type Handler func(ev types.Event)

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics wires collectors built by NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithPacing(pc Pacing) Option {
	return func(p *Pipeline) { p.pacing = pc }
}

// WithWaitSlice bounds each hardware wait, and so how long Stop takes to
// be noticed by the capture loop.
func WithWaitSlice(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.slice = d
		}
	}
}

// WithRateWindow sizes the dispatch rate estimator.
func WithRateWindow(samples int, span time.Duration) Option {
	return func(p *Pipeline) { p.meter = stats.NewRateMeter(samples, span) }
}

// WithEventSink forwards every dispatched event to sink after its handlers.
func WithEventSink(sink pipeline.Sink[types.Event]) Option {
	return func(p *Pipeline) { p.events.SetSink(sink) }
}

// WithContext ties the pipeline to parent; cancelling it stops capture.
func WithContext(ctx context.Context) Option {
	return func(p *Pipeline) { p.parent = ctx }
}

type lineUse uint8

const (
	useInterrupt lineUse = iota
	useInput
	useOutput
)

func (u lineUse) String() string {
	switch u {
	case useInterrupt:
		return "interrupt"
	case useInput:
		return "input"
	default:
		return "output"
	}
}

type lineEntry struct {
	line  chip.Line
	use   lineUse
	edges types.Edge
	bias  types.Bias
}

type handlerKey struct {
	pin  int
	edge types.Edge
}

// queued is an event in the capture FIFO. inhibited records the gate as it
// was when the event was captured.
type queued struct {
	ev        types.Event
	inhibited bool
}

// Pipeline is the GPIO interrupt pipeline. The embedded Runner provides
// Start, Stop, Wait, State and the rest of the worker lifecycle.
type Pipeline struct {
	*worker.Runner

	chip    chip.Chip
	log     *zap.Logger
	metrics *Metrics
	pacing  Pacing
	slice   time.Duration
	parent  context.Context
	events  pipeline.Source[types.Event]

	// registration state, shared with the capture loop
	mu       sync.Mutex
	lines    map[int]*lineEntry
	order    []int
	handlers map[handlerKey][]Handler
	bulk     []chip.Line
	dirty    bool
	closed   bool // lines released; no further registration

	// capture FIFO
	qmu   sync.Mutex
	qcond *sync.Cond
	queue []queued
	quit  bool

	dispatch conc.WaitGroup
	meter    *stats.RateMeter // dispatch goroutine only

	inhibit atomic.Bool
	timeout atomic.Int64
	rate    atomic.Uint64
}

// New builds a pipeline over c. Nothing is captured until Start.
func New(c chip.Chip, opts ...Option) *Pipeline {
	p := &Pipeline{
		chip:     c,
		log:      zap.NewNop(),
		pacing:   DefaultPacing(),
		slice:    DefaultWaitSlice,
		parent:   context.Background(),
		lines:    map[int]*lineEntry{},
		handlers: map[handlerKey][]Handler{},
		meter:    stats.NewRateMeter(stats.DefaultWindowSamples, stats.DefaultWindowSpan),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil, c.Name())
	}
	p.qcond = sync.NewCond(&p.qmu)
	p.timeout.Store(int64(p.pacing.MaxTimeout))
	p.metrics.PacingTimeout.Set(p.pacing.MaxTimeout.Seconds())

	p.Runner = worker.New("gpio:"+c.Name(), (*captureTask)(p),
		worker.WithLogger(p.log),
		worker.WithContext(p.parent),
	)
	p.log = p.log.With(zap.String("chip", c.Name()))
	return p
}

// Chip returns the chip the pipeline captures from.
func (p *Pipeline) Chip() chip.Chip { return p.chip }

// StartInhibit closes the admission gate: events captured from now until
// EndInhibit are discarded without calling handlers. Capture continues.
func (p *Pipeline) StartInhibit() {
	if !p.inhibit.Swap(true) {
		p.log.Debug("inhibit started")
	}
}

func (p *Pipeline) EndInhibit() {
	if p.inhibit.Swap(false) {
		p.log.Debug("inhibit ended")
	}
}

func (p *Pipeline) Inhibited() bool { return p.inhibit.Load() }

// PacingTimeout is the pacing interval derived from the last completed
// rate window. The pipeline publishes it but does not sleep on it.
func (p *Pipeline) PacingTimeout() time.Duration {
	return time.Duration(p.timeout.Load())
}

// Rate is the dispatch rate, in events per second, of the last completed
// window.
func (p *Pipeline) Rate() float64 {
	return math.Float64frombits(p.rate.Load())
}

// Pending is the number of captured events not yet dispatched.
func (p *Pipeline) Pending() int {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return len(p.queue)
}

// Pins lists registered pins in registration order.
func (p *Pipeline) Pins() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.order...)
}

// captureTask is the worker.Looper face of a Pipeline.
type captureTask Pipeline

func (t *captureTask) Setup(context.Context) error {
	p := (*Pipeline)(t)
	p.dispatch.Go(p.runDispatch)
	p.log.Info("gpio pipeline started", zap.Int("pins", len(p.Pins())))
	return nil
}

func (t *captureTask) Loop(ctx context.Context) int {
	return (*Pipeline)(t).capture(ctx)
}

func (t *captureTask) OnStop() {
	(*Pipeline)(t).wakeDispatch()
}

func (t *captureTask) Teardown() {
	p := (*Pipeline)(t)
	p.wakeDispatch()
	p.dispatch.Wait()
	if err := p.releaseLines(); err != nil {
		p.log.Warn("releasing lines", zap.Error(err))
	}
	p.log.Info("gpio pipeline stopped", zap.Int("undelivered", p.Pending()))
}

// wakeDispatch sets the dispatch quit flag and wakes the goroutine.
func (p *Pipeline) wakeDispatch() {
	p.qmu.Lock()
	p.quit = true
	p.qmu.Unlock()
	p.qcond.Broadcast()
}

var errPipelineDone = errors.New("pipeline is stopped")

func (p *Pipeline) checkOpen(op string) error {
	if p.State() >= worker.Finalising || p.Quitting() {
		return errcode.Wrap(errcode.Closed, op, errPipelineDone)
	}
	return nil
}

// checkOpenLocked repeats the check against teardown. Callers hold p.mu.
func (p *Pipeline) checkOpenLocked(op string) error {
	if p.closed {
		return errcode.Wrap(errcode.Closed, op, errPipelineDone)
	}
	return nil
}
