package chip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"sensornode-go/errcode"
	"sensornode-go/types"
)

// Sim is an in-process chip for host builds and tests. Levels are logical
// (active-low is not applied) and timestamps are strictly increasing.
type Sim struct {
	name  string
	size  int
	q     *eventQueue
	epoch time.Time

	mu     sync.Mutex
	names  map[int]string
	lines  map[int]*simLine
	lastTS time.Duration
	closed bool
}

// NewSim creates a simulated chip with n lines.
func NewSim(name string, n int) *Sim {
	return &Sim{
		name:  name,
		size:  n,
		q:     newEventQueue(),
		epoch: time.Now(),
		names: map[int]string{},
		lines: map[int]*simLine{},
	}
}

func (s *Sim) Name() string { return s.name }
func (s *Sim) Lines() int   { return s.size }

// SetLineName labels a line, as a device tree would.
func (s *Sim) SetLineName(offset int, name string) {
	s.mu.Lock()
	s.names[offset] = name
	s.mu.Unlock()
}

func (s *Sim) LineInfo(offset int) (LineInfo, error) {
	if err := s.check(offset, "line_info"); err != nil {
		return LineInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := LineInfo{Offset: offset, Name: s.names[offset]}
	if l, ok := s.lines[offset]; ok {
		info.Used = true
		info.Consumer = l.use
	}
	return info, nil
}

func (s *Sim) RequestInput(offset int, edges types.Edge, bias types.Bias) (Line, error) {
	return s.request(offset, false, edges, false, bias)
}

func (s *Sim) RequestOutput(offset int, initial bool, bias types.Bias) (Line, error) {
	return s.request(offset, true, types.EdgeNone, initial, bias)
}

func (s *Sim) request(offset int, output bool, edges types.Edge, level bool, bias types.Bias) (Line, error) {
	op := "request_input"
	if output {
		op = "request_output"
	}
	if err := s.check(offset, op); err != nil {
		return nil, err
	}
	if err := bias.Validate(); err != nil {
		return nil, errcode.Wrap(errcode.Rejected, op, err)
	}
	if err := claim(s.name, offset, op); err != nil {
		return nil, err
	}
	l := &simLine{sim: s, offset: offset, output: output, edges: edges, bias: bias, level: level, use: op}
	s.mu.Lock()
	s.lines[offset] = l
	s.mu.Unlock()
	return l, nil
}

func (s *Sim) check(offset int, op string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &errcode.E{C: errcode.Closed, Op: op, Msg: s.name}
	}
	if offset < 0 || offset >= s.size {
		return &errcode.E{C: errcode.UnknownPin, Op: op, Msg: fmt.Sprintf("%s has no line %d", s.name, offset)}
	}
	return nil
}

// Inject simulates one edge on an input line. Edges the line is not
// watching only update its level. It returns false when no event was
// queued.
func (s *Sim) Inject(offset int, edge types.Edge) bool {
	s.mu.Lock()
	l, ok := s.lines[offset]
	if !ok || l.output || l.closed {
		s.mu.Unlock()
		return false
	}
	l.level = edge == types.EdgeRising
	if !l.edges.Has(edge) {
		s.mu.Unlock()
		return false
	}
	ts := time.Since(s.epoch)
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.mu.Unlock()

	s.q.push(types.Event{Pin: offset, Edge: edge, Timestamp: ts})
	return true
}

// Drive sets an input line's level, producing an edge event when the
// level changes.
func (s *Sim) Drive(offset int, level bool) bool {
	s.mu.Lock()
	l, ok := s.lines[offset]
	if !ok || l.level == level {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	edge := types.EdgeFalling
	if level {
		edge = types.EdgeRising
	}
	return s.Inject(offset, edge)
}

// Level reads back a line's current level, e.g. what an output was set to.
func (s *Sim) Level(offset int) (level, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[offset]
	if !ok {
		return false, false
	}
	return l.level, true
}

func (s *Sim) WaitEdgeEvents(ctx context.Context, lines []Line, timeout time.Duration) ([]types.Event, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, &errcode.E{C: errcode.Closed, Op: "wait_edge_events", Msg: s.name}
	}
	return s.q.wait(ctx, lines, timeout)
}

// Close releases every line still held.
func (s *Sim) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lines := make([]*simLine, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l)
	}
	s.mu.Unlock()

	var err error
	for _, l := range lines {
		err = multierr.Append(err, l.Close())
	}
	return err
}

type simLine struct {
	sim    *Sim
	offset int
	output bool
	edges  types.Edge
	bias   types.Bias
	level  bool
	use    string
	closed bool
}

func (l *simLine) Offset() int { return l.offset }

func (l *simLine) Value() (bool, error) {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	if l.closed {
		return false, &errcode.E{C: errcode.Closed, Op: "value"}
	}
	return l.level, nil
}

func (l *simLine) SetValue(level bool) error {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	if l.closed {
		return &errcode.E{C: errcode.Closed, Op: "set_value"}
	}
	if !l.output {
		return &errcode.E{C: errcode.WrongMode, Op: "set_value", Msg: "line is an input"}
	}
	l.level = level
	return nil
}

func (l *simLine) SetEdges(edges types.Edge) error {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	if l.closed {
		return &errcode.E{C: errcode.Closed, Op: "set_edges"}
	}
	if l.output {
		return &errcode.E{C: errcode.WrongMode, Op: "set_edges", Msg: "line is an output"}
	}
	l.edges = edges
	return nil
}

func (l *simLine) Close() error {
	l.sim.mu.Lock()
	if l.closed {
		l.sim.mu.Unlock()
		return &errcode.E{C: errcode.Closed, Op: "close"}
	}
	l.closed = true
	if l.sim.lines[l.offset] == l {
		delete(l.sim.lines, l.offset)
	}
	l.sim.mu.Unlock()

	l.sim.q.drop(l.offset)
	release(l.sim.name, l.offset)
	return nil
}
