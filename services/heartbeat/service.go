// Package heartbeat periodically logs that the node is alive, along with
// the interrupt pipeline's load figures.
package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sensornode-go/worker"
)

const DefaultInterval = 2 * time.Second

// Stats is the view of the pipeline reported on each beat.
type Stats interface {
	Rate() float64
	PacingTimeout() time.Duration
	Inhibited() bool
	Pending() int
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithContext(ctx context.Context) Option {
	return func(s *Service) { s.parent = ctx }
}

// Service is a step-mode worker: each step waits for one tick.
type Service struct {
	*worker.Runner

	log      *zap.Logger
	parent   context.Context
	stats    Stats
	interval time.Duration
	reset    chan time.Duration
	tick     *time.Ticker
	beats    atomic.Uint64
}

// New builds a heartbeat reporting stats (may be nil) every interval.
func New(interval time.Duration, stats Stats, opts ...Option) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Service{
		log:      zap.NewNop(),
		parent:   context.Background(),
		stats:    stats,
		interval: interval,
		reset:    make(chan time.Duration, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.Runner = worker.New("heartbeat", (*task)(s), worker.WithLogger(s.log), worker.WithContext(s.parent))
	return s
}

// SetInterval changes the tick interval of a running heartbeat. Only the
// latest pending change is kept.
func (s *Service) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case s.reset <- d:
			return
		default:
		}
		select {
		case <-s.reset:
		default:
		}
	}
}

// Beats counts ticks logged so far.
func (s *Service) Beats() uint64 { return s.beats.Load() }

func (s *Service) beat(at time.Time) {
	n := s.beats.Add(1)
	fields := []zap.Field{zap.Uint64("beat", n), zap.String("at", at.Format("15:04:05"))}
	if s.stats != nil {
		fields = append(fields,
			zap.Float64("rate_hz", s.stats.Rate()),
			zap.Duration("pacing", s.stats.PacingTimeout()),
			zap.Bool("inhibited", s.stats.Inhibited()),
			zap.Int("pending", s.stats.Pending()),
		)
	}
	s.log.Info("heartbeat", fields...)
}

type task Service

func (t *task) Setup(context.Context) error {
	t.tick = time.NewTicker(t.interval)
	return nil
}

func (t *task) Step(ctx context.Context) int {
	select {
	case <-ctx.Done():
	case at := <-t.tick.C:
		(*Service)(t).beat(at)
	case d := <-t.reset:
		t.interval = d
		t.tick.Reset(d)
		t.log.Info("heartbeat interval set", zap.Duration("interval", d))
	}
	return 0
}

func (t *task) Teardown() {
	t.tick.Stop()
	t.log.Info("heartbeat service stopping", zap.Uint64("beats", t.beats.Load()))
}
