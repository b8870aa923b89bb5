package actions

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDecode(t *testing.T) {
	p := Probabilities{
		{0, 0, 1},
		{1, 0, 0},
		{0.25, 0.5, 0.25},
	}
	a := p.Decode()
	assert.InDelta(t, 0.003, a[0], 1e-7)
	assert.InDelta(t, -0.003, a[1], 1e-7)
	assert.InDelta(t, 0, a[2], 1e-7)
	assert.Equal(t, [NumChannels]Class{Positive, Negative, Neutral}, p.ArgMax())
}

func TestDisplacements(t *testing.T) {
	demo := []Action{{0, 0, 0}, {0, 0, 0}, {1, 1, 1}}
	predicted := []Action{{3, 4, 0}, {0, 0, 0}, {1, 1, 2}}
	d, err := Displacements(predicted, demo)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.ADE, 1e-6)
	assert.InDelta(t, 1.0, d.FDE, 1e-6)
	assert.InDelta(t, 5.0, d.MaxDiff, 1e-6)

	_, err = Displacements(predicted[:2], demo)
	require.Error(t, err)
	_, err = Displacements(nil, nil)
	require.Error(t, err)
}
