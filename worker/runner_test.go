package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingStepper returns exitAt from Step once it has been called n times.
type countingStepper struct {
	steps     atomic.Int32
	setups    atomic.Int32
	teardowns atomic.Int32
	n         int32
	exitAt    int
	setupErr  error
}

func (s *countingStepper) Setup(context.Context) error { s.setups.Add(1); return s.setupErr }
func (s *countingStepper) Teardown()                   { s.teardowns.Add(1) }
func (s *countingStepper) Step(ctx context.Context) int {
	if s.steps.Add(1) >= s.n && s.n > 0 {
		return s.exitAt
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Millisecond):
	}
	return 0
}

// blockingLooper parks in Loop until its stop hook fires.
type blockingLooper struct {
	release  chan struct{}
	stopped  atomic.Bool
	panicMsg string
	tore     atomic.Bool
}

func newBlockingLooper() *blockingLooper { return &blockingLooper{release: make(chan struct{})} }

func (l *blockingLooper) Setup(context.Context) error { return nil }
func (l *blockingLooper) Teardown()                   { l.tore.Store(true) }
func (l *blockingLooper) OnStop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.release)
	}
}
func (l *blockingLooper) Loop(context.Context) int {
	if l.panicMsg != "" {
		panic(l.panicMsg)
	}
	<-l.release
	return 0
}

func TestStepperExitCodeFromStep(t *testing.T) {
	task := &countingStepper{n: 5, exitAt: 7}
	r := New("stepper", task, WithLogger(zaptest.NewLogger(t)))
	r.Start()

	assert.Equal(t, 7, r.Wait())
	assert.Equal(t, Error, r.State())
	assert.EqualValues(t, 5, task.steps.Load())
	assert.EqualValues(t, 1, task.teardowns.Load())
}

func TestStopLeadsToStopped(t *testing.T) {
	task := &countingStepper{}
	r := New("stepper", task)
	r.Start()
	require.True(t, r.WaitFor(Running, time.Second))

	r.Stop(0)
	assert.Equal(t, 0, r.Wait())
	assert.Equal(t, Stopped, r.State())
	assert.EqualValues(t, 1, task.teardowns.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	r := New("looper", newBlockingLooper())
	r.Start()
	require.True(t, r.WaitFor(Running, time.Second))

	r.Stop(0)
	r.Join()
	require.Equal(t, Stopped, r.State())

	r.Stop(5)
	assert.Equal(t, 0, r.Wait())
	assert.Equal(t, Stopped, r.State())
}

func TestStopCodeWinsOverLoopResult(t *testing.T) {
	r := New("looper", newBlockingLooper())
	r.Start()
	require.True(t, r.WaitFor(Running, time.Second))

	r.Stop(3)
	assert.Equal(t, 3, r.Wait())
	assert.Equal(t, Error, r.State())
}

func TestDoubleStartIsNoop(t *testing.T) {
	task := &countingStepper{}
	r := New("stepper", task)
	r.Start()
	require.True(t, r.WaitFor(Running, time.Second))

	before := r.State()
	r.Start()
	assert.Equal(t, before, r.State())

	r.Stop(0)
	r.Join()
	assert.EqualValues(t, 1, task.setups.Load())

	// A terminated runner cannot be restarted in place.
	r.Start()
	assert.Equal(t, Stopped, r.State())
	assert.EqualValues(t, 1, task.setups.Load())
}

func TestPanicBecomesError(t *testing.T) {
	task := newBlockingLooper()
	task.panicMsg = "line vanished"
	r := New("looper", task, WithLogger(zaptest.NewLogger(t)))
	r.Start()

	assert.Equal(t, -1, r.Wait())
	assert.Equal(t, Error, r.State())
	assert.True(t, task.tore.Load(), "teardown still runs after a panicking loop")
}

func TestSetupFailureSkipsLoop(t *testing.T) {
	task := &countingStepper{setupErr: errors.New("no chip")}
	r := New("stepper", task)

	assert.Equal(t, -1, r.StartSync())
	assert.Equal(t, Error, r.State())
	assert.Zero(t, task.steps.Load())
	assert.Zero(t, task.teardowns.Load())
}

func TestWaitForRunningAfterSetupFailure(t *testing.T) {
	r := New("stepper", &countingStepper{setupErr: errors.New("no chip")})
	r.Start()

	assert.False(t, r.WaitFor(Running, time.Second))
	assert.True(t, r.WaitFor(Initialising, 0))
	assert.True(t, r.WaitFor(Error, time.Second))
	assert.False(t, r.WaitFor(Finalising, 0))
	assert.Equal(t, -1, r.Wait())
}

func TestWaitNeverStarted(t *testing.T) {
	r := New("idle", &countingStepper{})
	assert.Equal(t, -1, r.Wait())
	r.Join() // must not block
	assert.Equal(t, Initial, r.State())
}

func TestWaitForTimesOut(t *testing.T) {
	r := New("idle", &countingStepper{})
	start := time.Now()
	assert.False(t, r.WaitFor(Running, 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitForPastState(t *testing.T) {
	r := New("stepper", &countingStepper{n: 1, exitAt: 2})
	r.StartSync()

	assert.True(t, r.WaitFor(Running, 0), "running was passed on the way to a terminal state")
	assert.True(t, r.WaitFor(Error, 0))
	assert.False(t, r.WaitFor(Stopped, 10*time.Millisecond))
}

func TestStartSyncRunsOnCaller(t *testing.T) {
	task := &countingStepper{n: 3, exitAt: 1}
	r := New("sync", task)
	assert.Equal(t, 1, r.StartSync())
	select {
	case <-r.Done():
	default:
		t.Fatal("done channel not closed after StartSync")
	}
}

func TestParentContextCancelQuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New("stepper", &countingStepper{}, WithContext(ctx))
	r.Start()
	require.True(t, r.WaitFor(Running, time.Second))

	cancel()
	assert.Equal(t, 0, r.Wait())
	assert.Equal(t, Stopped, r.State())
}

func TestNewRejectsTaskWithoutMode(t *testing.T) {
	assert.Panics(t, func() { New("bad", bareTask{}) })
}

type bareTask struct{}

func (bareTask) Setup(context.Context) error { return nil }
func (bareTask) Teardown()                   {}
