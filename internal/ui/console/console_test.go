package console

import (
	"bytes"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/janpfeifer/robotlearning/internal/loop"
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
)

func TestConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	c := New(buf)
	hooks := c.Hooks()
	hooks.OnStep(engine.PhaseTrain, 0, 0, engine.StepResult{Loss: 1, Accuracy: 0.25}, 1.5)
	assert.Contains(t, buf.String(), "~loss=1.500")
	assert.Contains(t, buf.String(), "acc=0.250")

	// Validation steps are not printed.
	buf.Reset()
	hooks.OnStep(engine.PhaseValidation, 0, 0, engine.StepResult{}, 1.5)
	assert.Empty(t, buf.String())

	hooks.OnEpoch(loop.EpochSummary{Epoch: 3})
	assert.Contains(t, buf.String(), "Epoch #3")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestReport(t *testing.T) {
	summary := loop.EpochSummary{Epoch: 1}
	summary.Train.NumExamples = 128
	summary.Train.Mean.Loss = 0.75
	summary.Val.Mean.Accuracy = 0.5
	report := Report("Robot Learning", []loop.EpochSummary{{}, summary})
	assert.Contains(t, report, "Robot Learning")
	assert.Contains(t, report, "2 epochs, 128 training examples")
	assert.Contains(t, report, "0.7500")
	assert.Contains(t, report, "0.5000")
	assert.Contains(t, Report("Empty", nil), "No epoch completed")

	// Not a terminal: no indentation.
	buf := &bytes.Buffer{}
	New(buf).PrintCentered("a\n\nb")
	assert.Equal(t, "a\n\nb\n", buf.String())
}

func TestDisplayWidth(t *testing.T) {
	assert.Equal(t, 5, displayWidth("\x1b[1;31mhello\x1b[0m"))
}
