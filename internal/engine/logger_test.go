package engine

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestMemoryLogger(t *testing.T) {
	l := NewMemoryLogger()
	_, found := l.Mean("train/loss")
	assert.False(t, found)

	l.LogDict(map[string]float32{"train/loss": 2, "train/acc": 0.5})
	l.LogDict(map[string]float32{"train/loss": 4})
	assert.Equal(t, []string{"train/acc", "train/loss"}, l.Keys())
	assert.Equal(t, []float32{2, 4}, l.Values("train/loss"))

	mean, found := l.Mean("train/loss")
	require.True(t, found)
	assert.Equal(t, float32(3), mean)
	last, found := l.Last("train/loss")
	require.True(t, found)
	assert.Equal(t, float32(4), last)

	l.Reset()
	assert.Empty(t, l.Keys())
}

func TestMultiLogger(t *testing.T) {
	l0, l1 := NewMemoryLogger(), NewMemoryLogger()
	m := MultiLogger{l0, l1, KlogLogger{Verbosity: 3}}
	m.LogDict(map[string]float32{"val/acc": 1})
	assert.Equal(t, []float32{1}, l0.Values("val/acc"))
	assert.Equal(t, []float32{1}, l1.Values("val/acc"))
}
