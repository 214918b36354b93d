// Package stats holds small estimators used on hot paths.
package stats

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultWindowSamples = 100
	DefaultWindowSpan    = 6 * time.Second
)

// RateMeter estimates events per second over tumbling windows. A window
// closes after size samples or once span has elapsed since it opened,
// whichever comes first. It is not safe for concurrent use.
type RateMeter struct {
	size int
	span time.Duration

	counts []float64
	opened time.Time

	rate    float64
	mean    float64
	windows uint64
}

func NewRateMeter(size int, span time.Duration) *RateMeter {
	if size <= 0 {
		size = DefaultWindowSamples
	}
	if span <= 0 {
		span = DefaultWindowSpan
	}
	return &RateMeter{size: size, span: span, counts: make([]float64, 0, size)}
}

// Record adds one sample of n events observed at time at. It reports
// whether the sample completed a window, in which case Rate and Mean
// have been refreshed.
func (m *RateMeter) Record(n int, at time.Time) bool {
	if m.opened.IsZero() {
		m.opened = at
	}
	m.counts = append(m.counts, float64(n))
	if len(m.counts) < m.size && at.Sub(m.opened) < m.span {
		return false
	}

	elapsed := at.Sub(m.opened)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	m.rate = floats.Sum(m.counts) / elapsed.Seconds()
	m.mean = stat.Mean(m.counts, nil)
	m.windows++

	m.counts = m.counts[:0]
	m.opened = at
	return true
}

// Rate is the events/second of the last completed window.
func (m *RateMeter) Rate() float64 { return m.rate }

// Mean is the average events per sample of the last completed window.
func (m *RateMeter) Mean() float64 { return m.mean }

// Windows counts completed windows.
func (m *RateMeter) Windows() uint64 { return m.windows }

// Pending is the number of samples in the open window.
func (m *RateMeter) Pending() int { return len(m.counts) }
