package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, 3, Clamp(3, 5, 0)) // swapped bounds
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
}

func TestLineThrough(t *testing.T) {
	l := Through(10, 100, 100, 0)
	assert.InDelta(t, 100, l.At(10), 1e-9)
	assert.InDelta(t, 0, l.At(100), 1e-9)
	assert.InDelta(t, 50, l.At(55), 1e-9)
	assert.InDelta(t, 100, l.ClampedAt(1, 0, 100), 1e-9)
	assert.InDelta(t, 0, l.ClampedAt(500, 0, 100), 1e-9)

	flat := Through(3, 7, 3, 9)
	assert.Equal(t, 7.0, flat.At(42))
}
