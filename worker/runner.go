// Package worker runs long-lived background tasks with an explicit
// lifecycle: start, cooperative stop, join and exit-code reporting.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Task is the strategy a Runner drives. A Task must also implement exactly
// one execution mode: Stepper or Looper.
type Task interface {
	// Setup runs before the main routine. An error puts the runner in Error.
	Setup(ctx context.Context) error
	// Teardown runs after the main routine has returned.
	Teardown()
}

// Stepper is called repeatedly until it returns nonzero or the runner quits.
// The nonzero value becomes the exit code unless Stop recorded one first.
type Stepper interface {
	Task
	Step(ctx context.Context) int
}

// Looper owns its own event loop and returns when ctx is cancelled.
type Looper interface {
	Task
	Loop(ctx context.Context) int
}

// StopHook is invoked by Stop so a task can unblock internal waits.
type StopHook interface {
	OnStop()
}

type Option func(*Runner)

// WithLogger injects the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithContext derives the run context from parent, so cancelling parent
// sets the quit flag.
func WithContext(parent context.Context) Option {
	return func(r *Runner) { r.parent = parent }
}

// Runner executes one Task on its own goroutine.
type Runner struct {
	name   string
	id     string
	task   Task
	log    *zap.Logger
	parent context.Context

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	entered uint8         // bit per State ever entered
	changed chan struct{} // closed and replaced on every transition
	started bool
	code    int
	codeSet bool
}

// New binds task to a Runner. It panics if task implements neither
// Stepper nor Looper.
func New(name string, task Task, opts ...Option) *Runner {
	switch task.(type) {
	case Looper, Stepper:
	default:
		panic("worker: task " + name + " implements neither Stepper nor Looper")
	}
	r := &Runner{
		name:    name,
		id:      uuid.NewString(),
		task:    task,
		log:     zap.NewNop(),
		parent:  context.Background(),
		done:    make(chan struct{}),
		entered: 1 << Initial,
		changed: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.ctx, r.cancel = context.WithCancel(r.parent)
	r.log = r.log.With(zap.String("worker", name), zap.String("worker_id", r.id))
	return r
}

func (r *Runner) Name() string { return r.name }
func (r *Runner) ID() string   { return r.id }

// Done is closed when the run routine has returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Quitting reports whether the quit flag is set.
func (r *Runner) Quitting() bool { return r.ctx.Err() != nil }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ExitCode returns the recorded exit code, 0 if none was recorded yet.
func (r *Runner) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// Start spawns the run routine. Calling it again is a no-op.
func (r *Runner) Start() {
	if !r.claim() {
		return
	}
	go func() {
		defer close(r.done)
		r.run()
	}()
}

// StartSync runs the routine on the calling goroutine and returns the exit code.
func (r *Runner) StartSync() int {
	if !r.claim() {
		return r.ExitCode()
	}
	defer close(r.done)
	r.run()
	return r.ExitCode()
}

func (r *Runner) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.log.Info("worker already started", zap.Stringer("state", r.state))
		return false
	}
	r.started = true
	return true
}

// Stop sets the quit flag and records code. Only the first recorded code
// is kept. Stop does not wait; use Join or Wait.
func (r *Runner) Stop(code int) {
	r.mu.Lock()
	if !r.codeSet {
		r.code = code
		r.codeSet = true
	}
	r.mu.Unlock()

	r.cancel()
	if h, ok := r.task.(StopHook); ok {
		h.OnStop()
	}
}

// Join blocks until the run routine has returned. It returns at once if
// the runner was never started.
func (r *Runner) Join() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}
}

// Wait joins and returns the exit code, or -1 if never started.
func (r *Runner) Wait() int {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return -1
	}
	<-r.done
	return r.ExitCode()
}

// WaitFor blocks until the runner has entered want, or until timeout or a
// terminal state that makes want unreachable. It reports whether want was
// entered at some point; a runner whose Setup failed never entered Running.
func (r *Runner) WaitFor(want State, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		s, ch, entered := r.state, r.changed, r.entered
		r.mu.Unlock()

		if entered&(1<<want) != 0 {
			return true
		}
		if s.Terminal() {
			return false
		}
		select {
		case <-ch:
		case <-deadline.C:
			return false
		}
	}
}

func (r *Runner) run() {
	defer r.cancel()

	r.setState(Initialising)
	if err := r.guard("setup", func() error { return r.task.Setup(r.ctx) }); err != nil {
		r.log.Error("worker setup failed", zap.Error(err))
		r.forceCode(-1)
		r.setState(Error)
		return
	}

	r.setState(Running)
	var code int
	if err := r.guard("run", func() error { code = r.loop(); return nil }); err != nil {
		r.forceCode(-1)
	} else {
		r.recordCode(code)
	}

	r.setState(Finalising)
	if err := r.guard("teardown", func() error { r.task.Teardown(); return nil }); err != nil {
		r.forceCode(-1)
	}

	if r.ExitCode() == 0 {
		r.setState(Stopped)
	} else {
		r.setState(Error)
	}
}

func (r *Runner) loop() int {
	if l, ok := r.task.(Looper); ok {
		return l.Loop(r.ctx)
	}
	s := r.task.(Stepper)
	for !r.Quitting() {
		if c := s.Step(r.ctx); c != 0 {
			return c
		}
	}
	return 0
}

var errPanicked = errors.New("worker panicked")

// guard runs fn, converting a panic into an error after logging it with
// the stack.
func (r *Runner) guard(phase string, fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if rec := pc.Recovered(); rec != nil {
		r.log.Error("worker panicked",
			zap.String("phase", phase),
			zap.Any("panic", rec.Value),
			zap.ByteString("stack", rec.Stack))
		return errors.Join(errPanicked, rec.AsError())
	}
	return err
}

func (r *Runner) recordCode(code int) {
	r.mu.Lock()
	if !r.codeSet {
		r.code = code
		r.codeSet = true
	}
	r.mu.Unlock()
}

func (r *Runner) forceCode(code int) {
	r.mu.Lock()
	r.code = code
	r.codeSet = true
	r.mu.Unlock()
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	if s <= r.state {
		r.mu.Unlock()
		return
	}
	prev := r.state
	r.state = s
	r.entered |= 1 << s
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	r.log.Debug("worker state", zap.Stringer("from", prev), zap.Stringer("to", s))
}
