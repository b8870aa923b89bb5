package engine

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/janpfeifer/robotlearning/internal/actions"
)

// NumLogits the actor must output per example: one per class of each channel.
const NumLogits = actions.NumChannels * actions.NumClasses

// Actor is the policy being trained: it maps camera images to the logits of the action classes.
type Actor interface {
	// Context used by the actor: with both its weights and hyperparameters.
	Context() *context.Context

	// ForwardGraph returns the logits, shaped [batch_size, NumLogits], for the given images.
	// If freeze is true, the vision encoder is not to be trained.
	//
	// The logits are interpreted as [batch_size, 3 channels, 3 classes], with the classes ordered as
	// actions.Negative, actions.Neutral and actions.Positive.
	ForwardGraph(ctx *context.Context, images *Node, freeze bool) (logits *Node)
}

// ReshapeLogits reshapes the actor's logits, shaped [batch_size, NumLogits], to
// [batch_size, 3 channels, 3 classes].
func ReshapeLogits(logits *Node) *Node {
	if logits.Rank() != 2 || logits.Shape().Dim(1) != NumLogits {
		exceptions.Panicf("actor logits must be shaped [batch_size, %d], got %s", NumLogits, logits.Shape())
	}
	return Reshape(logits, logits.Shape().Dim(0), actions.NumChannels, actions.NumClasses)
}

// ProbabilitiesGraph returns the per-channel class probabilities, shaped [batch_size, 3, 3].
func ProbabilitiesGraph(logits *Node) *Node {
	return Softmax(ReshapeLogits(logits), -1)
}

// checkLabels panics if the one-hot labels don't match the shape of the (reshaped) logits.
func checkLabels(logits, labels *Node) {
	if !labels.Shape().Equal(logits.Shape()) {
		exceptions.Panicf("one-hot labels shaped %s don't match the predictions shaped %s", labels.Shape(), logits.Shape())
	}
}

// LossGraph returns the categorical cross-entropy between the actor's predictions (the softmax of the
// logits) and the one-hot labels, summed over the 3 channels and averaged over the batch.
//
// logits are shaped [batch_size, NumLogits] and labels are shaped [batch_size, 3, 3].
func LossGraph(logits, labels *Node) *Node {
	logits = ReshapeLogits(logits)
	checkLabels(logits, labels)
	// The mean over the batch and the channels: scaled back to the sum over the channels.
	meanCE := losses.CategoricalCrossEntropyLogits([]*Node{labels}, []*Node{logits})
	return MulScalar(meanCE, float64(actions.NumChannels))
}

// AccuracyGraph returns the fraction of channels where the most likely predicted class is the
// labeled one. It is a scalar in [0, 1]. Ties go to the lowest class, as in actions.Probabilities.ArgMax.
func AccuracyGraph(logits, labels *Node) *Node {
	logits = ReshapeLogits(logits)
	checkLabels(logits, labels)
	// Softmax is monotonic, so the most likely class of the logits is the one of the probabilities.
	predicted := PredictedOneHot(logits)
	hits := ReduceSum(Mul(predicted, ConvertDType(labels, predicted.DType())), -1)
	return ReduceAllMean(hits)
}

// PredictedOneHot returns the one-hot encoding of the most likely class of each channel, shaped
// like logits, [batch_size, 3, 3]. Ties go to the lowest class.
//
// It only uses element-wise comparisons, so it works on backends without ArgMax support.
func PredictedOneHot(logits *Node) *Node {
	dtype := logits.DType()
	classLogit := func(class int) *Node {
		return Slice(logits, AxisRange(), AxisRange(), AxisRange(class, class+1))
	}
	chosen := make([]*Node, actions.NumClasses)
	for class := range actions.NumClasses {
		lk := classLogit(class)
		for other := range actions.NumClasses {
			if other == class {
				continue
			}
			// Ties go to the lower class.
			var better *Node
			if other < class {
				better = GreaterThan(lk, classLogit(other))
			} else {
				better = GreaterOrEqual(lk, classLogit(other))
			}
			if chosen[class] == nil {
				chosen[class] = ConvertDType(better, dtype)
			} else {
				chosen[class] = Mul(chosen[class], ConvertDType(better, dtype))
			}
		}
	}
	return Concatenate(chosen, -1)
}

// DisplacementGraph returns the displacement errors of the actor's expected displacement against
// the demonstrated actions, shaped [batch_size, 3]. See actions.Probabilities.Decode.
//
// It returns the average (ADE), the final (FDE) and the maximum displacement errors, all scalars.
func DisplacementGraph(logits, demo *Node) (ade, fde, maxDiff *Node) {
	probs := ProbabilitiesGraph(logits)
	g := probs.Graph()
	batchSize := probs.Shape().Dim(0)
	demo.AssertDims(batchSize, actions.NumChannels)

	positive := Slice(probs, AxisRange(), AxisRange(), AxisRange(int(actions.Positive), int(actions.Positive)+1))
	negative := Slice(probs, AxisRange(), AxisRange(), AxisRange(int(actions.Negative), int(actions.Negative)+1))
	expected := Reshape(Sub(positive, negative), batchSize, actions.NumChannels)
	scales := ConvertDType(Const(g, [][]float32{actions.Scales[:]}), expected.DType())
	predicted := Mul(expected, BroadcastToDims(scales, batchSize, actions.NumChannels))

	diff := Sub(predicted, ConvertDType(demo, predicted.DType()))
	distances := Sqrt(ReduceSum(Square(diff), -1))
	ade = ReduceAllMean(distances)
	maxDiff = ReduceAllMax(distances)
	fde = Reshape(Slice(distances, AxisRange(batchSize-1, batchSize)))
	return
}

// Indices of the outputs of StepGraph.
const (
	outputLoss = iota
	outputAccuracy
	outputADE
	outputFDE
	outputMaxDiff
	numOutputs
)

// StepGraph runs the actor on the images and returns the step metrics: loss, accuracy, ADE, FDE
// and max-diff, in this order. The loss is the first one, the value to be minimized.
//
// inputs are images, the demonstrated actions and their one-hot labels.
func StepGraph(ctx *context.Context, actor Actor, freeze bool, inputs []*Node) []*Node {
	if len(inputs) != 3 {
		exceptions.Panicf("StepGraph expects images, actions and labels as inputs, got %d inputs", len(inputs))
	}
	images, demo, labels := inputs[0], inputs[1], inputs[2]
	logits := actor.ForwardGraph(ctx, images, freeze)
	outputs := make([]*Node, numOutputs)
	outputs[outputLoss] = LossGraph(logits, labels)
	outputs[outputAccuracy] = AccuracyGraph(logits, labels)
	outputs[outputADE], outputs[outputFDE], outputs[outputMaxDiff] = DisplacementGraph(logits, demo)
	return outputs
}
