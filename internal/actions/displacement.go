package actions

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Probabilities of each class, per channel, as output by the policy.
type Probabilities [NumChannels][NumClasses]float32

// Decode the expected displacement of the given class probabilities: for each channel it is
// (p(Positive) - p(Negative)) * scale.
//
// The training graphs compute the same in engine.DisplacementGraph: this host version is their reference.
func (p Probabilities) Decode() (a Action) {
	for ch := range NumChannels {
		a[ch] = (p[ch][Positive] - p[ch][Negative]) * Scales[ch]
	}
	return
}

// ArgMax returns the most likely class of each channel. Ties go to the lowest class.
// It is the host reference of engine.AccuracyGraph's predicted classes.
func (p Probabilities) ArgMax() (classes [NumChannels]Class) {
	for ch := range NumChannels {
		best := Negative
		for c := Neutral; c <= Positive; c++ {
			if p[ch][c] > p[ch][best] {
				best = c
			}
		}
		classes[ch] = best
	}
	return
}

// Distance is the euclidean distance between two displacements.
func Distance(a, b Action) float32 {
	var sum float32
	for ch := range NumChannels {
		d := a[ch] - b[ch]
		sum += d * d
	}
	return math32.Sqrt(sum)
}

// Displacement errors of a batch of predicted actions against the demonstrated ones.
type Displacement struct {
	// ADE is the average displacement error over the batch.
	ADE float32

	// FDE is the final displacement error: the error of the last element. It only makes sense
	// for batches that are sequential in time.
	FDE float32

	// MaxDiff is the largest displacement error over the batch.
	MaxDiff float32
}

// Displacements calculates the displacement errors between predicted and demonstrated actions.
// It is the host reference of engine.DisplacementGraph.
func Displacements(predicted, demo []Action) (d Displacement, err error) {
	if len(predicted) != len(demo) {
		return d, errors.Errorf("displacements: %d predictions for %d demonstrated actions", len(predicted), len(demo))
	}
	if len(demo) == 0 {
		return d, errors.New("displacements: empty batch")
	}
	var sum float32
	for ii := range demo {
		dist := Distance(predicted[ii], demo[ii])
		sum += dist
		d.MaxDiff = math32.Max(d.MaxDiff, dist)
		d.FDE = dist
	}
	d.ADE = sum / float32(len(demo))
	return d, nil
}
