// Package chip is the hardware boundary of the GPIO pipeline: it opens a
// GPIO chip, hands out exclusive line handles, and waits for edge events
// across a set of lines.
package chip

import (
	"context"
	"time"

	"sensornode-go/types"
)

// LineInfo is the kernel's view of one line.
type LineInfo struct {
	Offset   int
	Name     string
	Consumer string
	Used     bool
}

// Line is an exclusively held handle on one pin.
type Line interface {
	Offset() int
	Value() (bool, error)
	SetValue(level bool) error
	// SetEdges changes the edge detection of an input line.
	SetEdges(edges types.Edge) error
	// Close releases the line. Further calls fail with errcode.Closed.
	Close() error
}

// Chip is one GPIO controller.
type Chip interface {
	Name() string
	Lines() int
	LineInfo(offset int) (LineInfo, error)
	RequestInput(offset int, edges types.Edge, bias types.Bias) (Line, error)
	RequestOutput(offset int, initial bool, bias types.Bias) (Line, error)
	// WaitEdgeEvents blocks until at least one edge event is pending on
	// lines, timeout elapses, or ctx is done. Events come back in capture
	// order; events for lines outside the set stay queued.
	WaitEdgeEvents(ctx context.Context, lines []Line, timeout time.Duration) ([]types.Event, error)
	Close() error
}
