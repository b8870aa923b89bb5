// Package actions converts the continuous end-effector displacements recorded in human
// demonstrations into the discrete per-axis classes the policy is trained on.
//
// Each action has 3 channels (x, y, z displacement). A channel is normalized by its scale
// (see Scales) and then thresholded at ±Threshold into one of 3 classes: Negative, Neutral
// or Positive.
package actions

import (
	"fmt"
	"github.com/pkg/errors"
)

const (
	// NumChannels is the number of displacement channels of an action: x, y and z.
	NumChannels = 3

	// NumClasses per channel: Negative, Neutral and Positive.
	NumClasses = 3

	// Threshold applied to the normalized displacement. Values exactly at ±Threshold are Neutral.
	Threshold = float32(0.5)
)

// Scales used to normalize each channel before thresholding: x and y move in steps of 3mm,
// z in steps of 1.5mm.
var Scales = [NumChannels]float32{0.003, 0.003, 0.0015}

// Class of movement of one channel.
type Class int8

const (
	Negative Class = iota
	Neutral
	Positive
)

var classNames = [NumClasses]string{"negative", "neutral", "positive"}

// String implements fmt.Stringer.
func (c Class) String() string {
	if c < Negative || c > Positive {
		return fmt.Sprintf("Class(%d)", int8(c))
	}
	return classNames[c]
}

// Value of the class as a normalized displacement: -1, 0 or +1.
func (c Class) Value() float32 {
	return float32(c) - 1
}

// Action is a continuous displacement (x, y, z), in meters.
type Action [NumChannels]float32

// Normalize divides each channel by its scale.
func (a Action) Normalize() (normalized Action) {
	for ch, v := range a {
		normalized[ch] = v / Scales[ch]
	}
	return
}

// ClassOf a normalized channel value.
// NaN values fail every comparison and end up Neutral.
func ClassOf(normalized float32) Class {
	switch {
	case normalized < -Threshold:
		return Negative
	case normalized > Threshold:
		return Positive
	default:
		return Neutral
	}
}

// Discretize returns the class of each channel of the action.
func (a Action) Discretize() (classes [NumChannels]Class) {
	for ch, v := range a.Normalize() {
		classes[ch] = ClassOf(v)
	}
	return
}

// FromFlat splits a flat slice of values (shaped [N, 3] row-major) into actions.
func FromFlat(flat []float32) ([]Action, error) {
	if len(flat)%NumChannels != 0 {
		return nil, errors.Errorf("actions must have %d channels, got %d values which is not a multiple",
			NumChannels, len(flat))
	}
	acts := make([]Action, len(flat)/NumChannels)
	for ii := range acts {
		copy(acts[ii][:], flat[ii*NumChannels:])
	}
	return acts, nil
}

// OneHot encoding of the classes of an action, shaped [NumChannels][NumClasses].
// Exactly one element per channel is set to 1.
func (a Action) OneHot() (oneHot [NumChannels][NumClasses]float32) {
	for ch, c := range a.Discretize() {
		oneHot[ch][c] = 1
	}
	return
}

// OneHotLabels converts a flat slice of actions (shaped [N, 3]) to the flat one-hot labels
// shaped [N, 3, 3] used as training targets. The input is not modified.
func OneHotLabels(flat []float32) ([]float32, error) {
	acts, err := FromFlat(flat)
	if err != nil {
		return nil, err
	}
	const stride = NumChannels * NumClasses
	labels := make([]float32, len(acts)*stride)
	for ii, a := range acts {
		oneHot := a.OneHot()
		for ch := range NumChannels {
			copy(labels[ii*stride+ch*NumClasses:], oneHot[ch][:])
		}
	}
	return labels, nil
}

// Accuracy is the fraction of channels where the predicted class equals the target class.
// It returns 0 for empty inputs.
//
// It is the host reference of engine.AccuracyGraph, used to cross-check it.
func Accuracy(predicted, target [][NumChannels]Class) (float32, error) {
	if len(predicted) != len(target) {
		return 0, errors.Errorf("accuracy: %d predictions for %d targets", len(predicted), len(target))
	}
	if len(target) == 0 {
		return 0, nil
	}
	var matches int
	for ii := range target {
		for ch := range NumChannels {
			if predicted[ii][ch] == target[ii][ch] {
				matches++
			}
		}
	}
	return float32(matches) / float32(len(target)*NumChannels), nil
}
