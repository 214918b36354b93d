package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEdge(t *testing.T) {
	tests := []struct {
		in      string
		want    Edge
		wantErr bool
	}{
		{in: "rising", want: EdgeRising},
		{in: " Falling ", want: EdgeFalling},
		{in: "both", want: EdgeBoth},
		{in: "", want: EdgeNone},
		{in: "sideways", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEdge(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEdgeSplit(t *testing.T) {
	assert.Equal(t, []Edge{EdgeRising, EdgeFalling}, EdgeBoth.Split())
	assert.Equal(t, []Edge{EdgeFalling}, EdgeFalling.Split())
	assert.Empty(t, EdgeNone.Split())
	assert.True(t, EdgeBoth.Has(EdgeRising))
	assert.False(t, EdgeRising.Has(EdgeNone))
}

func TestParseBias(t *testing.T) {
	b, err := ParseBias([]string{"pull_up", "active-low"})
	require.NoError(t, err)
	assert.Equal(t, BiasPullUp|BiasActiveLow, b)
	assert.Equal(t, "pull-up|active-low", b.String())

	_, err = ParseBias([]string{"pull-up", "pull-down"})
	assert.Error(t, err)

	_, err = ParseBias([]string{"floating"})
	assert.Error(t, err)

	b, err = ParseBias(nil)
	require.NoError(t, err)
	assert.Equal(t, "none", b.String())
}
