package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourcePutForwardsToSink(t *testing.T) {
	var got []string
	var src Source[string]

	src.Put("dropped")
	assert.False(t, src.Connected())

	src.SetSink(SinkFunc[string](func(s string) { got = append(got, s) }))
	src.Put("a")
	src.Put("b")
	assert.True(t, src.Connected())
	assert.Equal(t, []string{"a", "b"}, got)

	src.SetSink(nil)
	src.Put("c")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCollectionSinkFansOutInOrder(t *testing.T) {
	const k = 4
	var order []int
	c := NewCollectionSink[string]()
	for i := 0; i < k; i++ {
		c.Add(SinkFunc[string](func(s string) {
			assert.Equal(t, "X", s)
			order = append(order, i)
		}))
	}
	assert.Equal(t, k, c.Len())

	c.Get("X")
	assert.Equal(t, []int{0, 1, 2, 3}, order, "every child receives the item before Get returns")
}

func TestCollectionSinkPanickingChildAbortsRest(t *testing.T) {
	var reached []string
	c := NewCollectionSink[int](
		SinkFunc[int](func(int) { reached = append(reached, "first") }),
		SinkFunc[int](func(int) { panic("child failed") }),
		SinkFunc[int](func(int) { reached = append(reached, "third") }),
	)

	assert.Panics(t, func() { c.Get(1) })
	assert.Equal(t, []string{"first"}, reached)
}

func TestThrottledSinkDropsOverBurst(t *testing.T) {
	var delivered int
	ts := NewThrottledSink[int](SinkFunc[int](func(int) { delivered++ }), 0.001, 3)
	for i := 0; i < 10; i++ {
		ts.Get(i)
	}
	assert.Equal(t, 3, delivered)
	assert.EqualValues(t, 7, ts.Dropped())
}
