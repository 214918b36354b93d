package mathx

// Line is y = M·x + B.
type Line struct {
	M, B float64
}

// Through returns the line passing through (x0, y0) and (x1, y1).
// Equal abscissae yield the horizontal line y = y0.
func Through(x0, y0, x1, y1 float64) Line {
	if x1 == x0 {
		return Line{B: y0}
	}
	m := (y1 - y0) / (x1 - x0)
	return Line{M: m, B: y0 - m*x0}
}

func (l Line) At(x float64) float64 { return l.M*x + l.B }

// ClampedAt evaluates the line and limits the result to [lo, hi].
func (l Line) ClampedAt(x, lo, hi float64) float64 { return Clamp(l.At(x), lo, hi) }
