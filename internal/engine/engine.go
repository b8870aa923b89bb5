// Package engine implements the training and validation steps of an imitation-learning robot-control
// policy, and RobotLearning, the adapter that wires an Actor, an optimizer, a Scheduler and the data
// loaders into the callbacks driven by a training loop (see Module).
//
// Each step takes a batch of camera images and the demonstrated actions (x, y, z displacements),
// discretizes the actions into 3 classes per channel (see package actions), and calculates the
// cross-entropy loss and the classification accuracy of the actor's predictions. The displacement
// errors (ADE, FDE and max-diff) of the decoded predictions are reported along.
package engine

import (
	"fmt"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/robotlearning/internal/actions"
	"github.com/pkg/errors"
)

// Module is the set of callbacks a training loop drives. It is implemented by RobotLearning.
type Module interface {
	// SetEpoch informs the module of the current epoch, before its first step.
	SetEpoch(epoch int)

	// TrainingStep runs one training step (forward, loss and optimizer update) on the batch.
	TrainingStep(batch Batch, batchIdx int) (StepResult, error)

	// ValidationStep evaluates the batch, without updating the model.
	ValidationStep(batch Batch, batchIdx int) (StepResult, error)

	// TrainDataloader returns the loader of training batches.
	TrainDataloader() train.Dataset

	// ValDataloader returns the loader of validation batches.
	ValDataloader() train.Dataset

	// ConfigureOptimizers returns the optimizer and learning rate scheduler used for training.
	ConfigureOptimizers() (optimizers.Interface, Scheduler)
}

// Phase of the training a step belongs to. Its value prefixes the logged metric keys.
type Phase string

const (
	PhaseTrain      Phase = "train"
	PhaseValidation Phase = "val"
)

// Names of the metrics reported by each step. They are logged as "<phase>/<name>".
const (
	MetricLoss     = "loss"
	MetricAccuracy = "acc"
	MetricADE      = "ade"
	MetricFDE      = "fde"
	MetricMaxDiff  = "max_diff"
)

// Key returns the logging key of the metric for the phase, e.g.: "train/loss".
func (p Phase) Key(metric string) string {
	return string(p) + "/" + metric
}

// StepResult holds the scalar metrics of one training or validation step.
type StepResult struct {
	// Loss is the cross-entropy of the 3 channels, summed over the channels and averaged over the batch.
	Loss float32

	// Accuracy is the fraction of channels where the predicted class matches the demonstrated one.
	Accuracy float32

	// Displacement errors of the expected displacement predicted against the demonstrated action.
	actions.Displacement
}

// Metrics returns the step metrics keyed as they are logged for the given phase.
func (r StepResult) Metrics(phase Phase) map[string]float32 {
	return map[string]float32{
		phase.Key(MetricLoss):     r.Loss,
		phase.Key(MetricAccuracy): r.Accuracy,
		phase.Key(MetricADE):      r.ADE,
		phase.Key(MetricFDE):      r.FDE,
		phase.Key(MetricMaxDiff):  r.MaxDiff,
	}
}

// String implements fmt.Stringer.
func (r StepResult) String() string {
	return fmt.Sprintf("loss=%.4f, acc=%.2f%%, ade=%.5f, fde=%.5f, max_diff=%.5f",
		r.Loss, 100*r.Accuracy, r.ADE, r.FDE, r.MaxDiff)
}

// Batch of demonstrations: camera images, shaped [batch_size, ...], and the demonstrated actions,
// shaped [batch_size, 3] (x, y and z displacements), float32.
type Batch struct {
	Images, Actions *tensors.Tensor
}

// NewBatch creates a Batch from the values yielded by a train.Dataset: the inputs must hold
// only the images, and the labels only the actions.
func NewBatch(inputs, labels []*tensors.Tensor) (Batch, error) {
	if len(inputs) != 1 || len(labels) != 1 {
		return Batch{}, errors.Errorf("a batch must have exactly one input (images) and one label (actions), "+
			"got %d inputs and %d labels", len(inputs), len(labels))
	}
	return Batch{Images: inputs[0], Actions: labels[0]}, nil
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return b.Actions.Shape().Dim(0)
}

// Validate checks the batch is well-formed: actions shaped [N, 3] float32, and images with the
// same leading dimension N >= 1.
func (b Batch) Validate() error {
	if b.Images == nil || b.Actions == nil {
		return errors.New("batch is missing images or actions")
	}
	actionsShape := b.Actions.Shape()
	if actionsShape.DType != dtypes.Float32 {
		return errors.Errorf("actions must be float32, got %s", actionsShape)
	}
	if actionsShape.Rank() != 2 || actionsShape.Dim(1) != actions.NumChannels {
		return errors.Errorf("actions must be shaped [batch_size, %d], got %s", actions.NumChannels, actionsShape)
	}
	imagesShape := b.Images.Shape()
	if imagesShape.Rank() < 1 || imagesShape.Dim(0) != actionsShape.Dim(0) {
		return errors.Errorf("images %s and actions %s must have the same batch size", imagesShape, actionsShape)
	}
	if actionsShape.Dim(0) < 1 {
		return errors.New("empty batch")
	}
	return nil
}
