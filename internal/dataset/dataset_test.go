package dataset

import (
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/robotlearning/internal/actions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func TestSynthetic(t *testing.T) {
	d, err := Synthetic(300, []int{4, 4, 3}, 42)
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	assert.Equal(t, 300, d.Len())
	assert.Equal(t, 48, d.ImageSize())

	// All classes are represented in every channel.
	var counts [actions.NumChannels][actions.NumClasses]int
	for _, a := range d.Actions {
		for ch, class := range a.Discretize() {
			counts[ch][class]++
		}
	}
	for ch := range counts {
		for class, count := range counts[ch] {
			assert.Greater(t, count, 10, "channel %d, class %s", ch, actions.Class(class))
		}
	}

	// Deterministic.
	again, err := Synthetic(300, []int{4, 4, 3}, 42)
	require.NoError(t, err)
	assert.Equal(t, d.Actions, again.Actions)

	_, err = Synthetic(10, []int{4, 0}, 42)
	require.Error(t, err)
}

func TestInMemory(t *testing.T) {
	d, err := Synthetic(10, []int{2, 3}, 1)
	require.NoError(t, err)
	ds, err := NewInMemory("test", d, 4)
	require.NoError(t, err)
	assert.Equal(t, "test", ds.Name())
	assert.Equal(t, 3, ds.NumBatches())

	var batchSizes []int
	var gotActions []float32
	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, ds, spec)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		batchSize := inputs[0].Shape().Dim(0)
		batchSizes = append(batchSizes, batchSize)
		assert.Equal(t, []int{batchSize, 2, 3}, inputs[0].Shape().Dimensions)
		assert.Equal(t, []int{batchSize, actions.NumChannels}, labels[0].Shape().Dimensions)
		gotActions = append(gotActions, tensors.CopyFlatData[float32](labels[0])...)
	}
	assert.Equal(t, []int{4, 4, 2}, batchSizes)
	for ii, a := range d.Actions {
		assert.Equal(t, a[:], gotActions[ii*actions.NumChannels:(ii+1)*actions.NumChannels])
	}

	// Exhausted until Reset.
	_, _, _, err = ds.Yield()
	require.ErrorIs(t, err, io.EOF)
	ds.Reset()
	_, inputs, _, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, 4, inputs[0].Shape().Dim(0))
}

func TestInMemory_DropIncompleteAndShuffle(t *testing.T) {
	d, err := Synthetic(10, []int{3}, 2)
	require.NoError(t, err)
	ds, err := NewInMemory("shuffled", d, 4)
	require.NoError(t, err)
	ds.DropIncompleteBatch(true).Shuffle(7)
	assert.Equal(t, 2, ds.NumBatches())

	count := 0
	seen := make(map[float32]bool)
	for {
		_, _, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 4, labels[0].Shape().Dim(0))
		for _, v := range tensors.CopyFlatData[float32](labels[0]) {
			seen[v] = true
		}
		count++
	}
	assert.Equal(t, 2, count)
	assert.Len(t, seen, 8*actions.NumChannels)
}

func TestDemonstrations_Split(t *testing.T) {
	d, err := Synthetic(10, []int{2}, 3)
	require.NoError(t, err)
	train, val := d.Split(7)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, val.Len())
	require.NoError(t, train.Validate())
	require.NoError(t, val.Validate())
	assert.Equal(t, d.Actions[7], val.Actions[0])

	_, err = NewDemonstrations([]int{2}, make([]float32, 3), make([]actions.Action, 2))
	require.Error(t, err)
	_, err = NewInMemory("bad", d, 0)
	require.Error(t, err)
}
