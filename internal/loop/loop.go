// Package loop drives an engine.Module through its epochs: it sets the epoch, runs the training steps
// over the train loader, and then the validation steps over the validation loader.
package loop

import (
	"context"
	"fmt"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/pkg/errors"
	"io"
	"k8s.io/klog/v2"
)

// AverageLossDecay is the decay of the moving average of the training loss reported to Hooks.OnStep.
const AverageLossDecay = float32(0.95)

// PhaseSummary holds the mean metrics of one phase (training or validation) of an epoch,
// weighted by the number of examples of each batch. Mean.MaxDiff is the maximum over all batches instead.
type PhaseSummary struct {
	NumBatches, NumExamples int
	Mean                    engine.StepResult
}

// EpochSummary holds the results of one epoch.
type EpochSummary struct {
	Epoch      int
	Train, Val PhaseSummary
}

// String implements fmt.Stringer.
func (s EpochSummary) String() string {
	return fmt.Sprintf("epoch #%d: train{%s}, val{%s}", s.Epoch, s.Train.Mean, s.Val.Mean)
}

// Hooks are optional callbacks called by Fit. Any of them can be left nil.
type Hooks struct {
	// OnStep is called after every step, with the step results and the moving average of the training loss.
	OnStep func(phase engine.Phase, epoch, batchIdx int, result engine.StepResult, averageLoss float32)

	// OnEpoch is called at the end of every epoch.
	OnEpoch func(summary EpochSummary)
}

// Fit trains m for numEpochs. The validation phase is skipped if m has no validation loader.
//
// It stops at the first error returned by a step, or when ctx is cancelled, in which case it returns ctx.Err().
// The summaries of the epochs completed are returned in either case.
func Fit(ctx context.Context, m engine.Module, numEpochs int, hooks *Hooks) ([]EpochSummary, error) {
	if numEpochs <= 0 {
		return nil, errors.Errorf("invalid number of epochs %d", numEpochs)
	}
	if m.TrainDataloader() == nil {
		return nil, errors.New("Fit requires a train loader")
	}
	if hooks == nil {
		hooks = &Hooks{}
	}
	f := &fitter{ctx: ctx, m: m, hooks: hooks}
	summaries := make([]EpochSummary, 0, numEpochs)
	for epoch := range numEpochs {
		summary, err := f.epoch(epoch)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
		klog.V(1).Infof("Finished %s", summary)
		if hooks.OnEpoch != nil {
			hooks.OnEpoch(summary)
		}
	}
	return summaries, nil
}

type fitter struct {
	ctx   context.Context
	m     engine.Module
	hooks *Hooks

	// Number of training steps so far and the moving average of the training loss.
	trainSteps  int
	averageLoss float32
}

func (f *fitter) epoch(epoch int) (summary EpochSummary, err error) {
	summary.Epoch = epoch
	f.m.SetEpoch(epoch)
	summary.Train, err = f.phase(epoch, engine.PhaseTrain, f.m.TrainDataloader(), f.m.TrainingStep)
	if err != nil {
		return
	}
	if valLoader := f.m.ValDataloader(); valLoader != nil {
		summary.Val, err = f.phase(epoch, engine.PhaseValidation, valLoader, f.m.ValidationStep)
	}
	return
}

type stepFn func(batch engine.Batch, batchIdx int) (engine.StepResult, error)

// phase runs step over all batches of the loader, and resets it at the end.
func (f *fitter) phase(epoch int, phase engine.Phase, loader train.Dataset, step stepFn) (summary PhaseSummary, err error) {
	defer loader.Reset()
	var sums accumulator
	for batchIdx := 0; ; batchIdx++ {
		if err = f.ctx.Err(); err != nil {
			return
		}
		_, inputs, labels, yieldErr := loader.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			err = errors.Wrapf(yieldErr, "reading batch #%d from %q in epoch %d", batchIdx, loader.Name(), epoch)
			return
		}
		var batch engine.Batch
		batch, err = engine.NewBatch(inputs, labels)
		if err != nil {
			err = errors.WithMessagef(err, "batch #%d from %q", batchIdx, loader.Name())
			return
		}
		var result engine.StepResult
		result, err = step(batch, batchIdx)
		if err != nil {
			return
		}
		sums.add(result, batch.Size())
		if phase == engine.PhaseTrain {
			f.trainSteps++
			f.averageLoss = movingAverage(f.averageLoss, result.Loss, AverageLossDecay, f.trainSteps)
		}
		if f.hooks.OnStep != nil {
			f.hooks.OnStep(phase, epoch, batchIdx, result, f.averageLoss)
		}
	}
	if sums.numBatches == 0 {
		klog.Warningf("Epoch %d: loader %q yielded no batches for %s", epoch, loader.Name(), phase)
	}
	return sums.summary(), nil
}

func movingAverage(average, newValue, decay float32, count int) float32 {
	decay = min(1-1/float32(count), decay)
	return average*decay + (1-decay)*newValue
}

// accumulator of step results, weighted by the batch size.
type accumulator struct {
	numBatches, numExamples int
	sum                     engine.StepResult
}

func (a *accumulator) add(result engine.StepResult, batchSize int) {
	w := float32(batchSize)
	a.numBatches++
	a.numExamples += batchSize
	a.sum.Loss += w * result.Loss
	a.sum.Accuracy += w * result.Accuracy
	a.sum.ADE += w * result.ADE
	a.sum.FDE += w * result.FDE
	a.sum.MaxDiff = max(a.sum.MaxDiff, result.MaxDiff)
}

func (a *accumulator) summary() PhaseSummary {
	s := PhaseSummary{NumBatches: a.numBatches, NumExamples: a.numExamples}
	if a.numExamples == 0 {
		return s
	}
	w := float32(a.numExamples)
	s.Mean.Loss = a.sum.Loss / w
	s.Mean.Accuracy = a.sum.Accuracy / w
	s.Mean.ADE = a.sum.ADE / w
	s.Mean.FDE = a.sum.FDE / w
	s.Mean.MaxDiff = a.sum.MaxDiff
	return s
}
