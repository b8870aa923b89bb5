// Package actor implements a reference Actor for engine.RobotLearning: a feed-forward network that
// maps camera images to the logits of the action classes.
//
// It is the simplest model that exercises the full training loop, including freezing the vision
// encoder for the first epochs.
package actor

import (
	"bytes"
	"fmt"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	fnnLayer "github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/robotlearning/internal/config"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/pkg/errors"
)

// ParamEmbeddingDim is the hyperparameter with the dimension of the vision encoder output.
const ParamEmbeddingDim = "embedding_dim"

// FNN is a feed-forward actor: an "encoder" FNN turns the flattened image into an embedding, and a
// "head" FNN turns the embedding into the action logits.
type FNN struct {
	ctx *context.Context
}

// Compile-time assert that FNN implements engine.Actor.
var _ engine.Actor = (*FNN)(nil)

// NewFNN creates an FNN actor with a fresh context, initialized with hyperparameters set to their defaults.
func NewFNN() *FNN {
	fnn := &FNN{ctx: context.New()}
	fnn.ctx.RngStateReset()
	fnn.ctx.SetParams(map[string]any{
		optimizers.ParamOptimizer:       "adam",
		optimizers.ParamLearningRate:    0.001,
		optimizers.ParamAdamEpsilon:     1e-7,
		optimizers.ParamAdamDType:       "",
		cosineschedule.ParamPeriodSteps: 0,
		activations.ParamActivation:     "relu",
		layers.ParamDropoutRate:         0.0,
		"image_scale":                   1.0,

		// Encoder and head network parameters:
		ParamEmbeddingDim:             32,
		fnnLayer.ParamNumHiddenLayers: 1,
		fnnLayer.ParamNumHiddenNodes:  64,
		fnnLayer.ParamResidual:        true,
		fnnLayer.ParamNormalization:   "layer",
	})
	fnn.ctx = fnn.ctx.Checked(false)
	return fnn
}

// Context implements engine.Actor.
func (fnn *FNN) Context() *context.Context {
	return fnn.ctx
}

// ForwardGraph implements engine.Actor.
// images can have any shape, as long as the batch is the leading axis: they are flattened.
func (fnn *FNN) ForwardGraph(ctx *context.Context, images *Node, freeze bool) *Node {
	batchSize := images.Shape().Dim(0)
	x := Reshape(ConvertDType(images, fnn.dtype()), batchSize, images.Shape().Size()/batchSize)
	if scale := context.GetParamOr(ctx, "image_scale", 1.0); scale != 1.0 {
		x = MulScalar(x, scale)
	}

	embeddingDim := context.GetParamOr(ctx, ParamEmbeddingDim, 32)
	embedding := fnnLayer.New(ctx.In("encoder"), x, embeddingDim).Done()
	if freeze {
		// No gradients flow back to the encoder's weights.
		embedding = StopGradient(embedding)
	}
	embedding = activations.ApplyFromContext(ctx, embedding)
	logits := fnnLayer.New(ctx.In("head"), embedding, engine.NumLogits).Done()
	logits.AssertDims(batchSize, engine.NumLogits)
	return logits
}

// dtype used by the model.
func (fnn *FNN) dtype() dtypes.DType {
	return dtypes.Float32
}

// HyperparametersHelp lists the hyperparameters of the actor, with their current values.
func (fnn *FNN) HyperparametersHelp() string {
	buf := &bytes.Buffer{}
	_, _ = fmt.Fprintf(buf, "Actor FNN parameters:\n")
	fnn.ctx.EnumerateParams(func(scope, key string, value any) {
		if scope != context.RootScope {
			return
		}
		_, _ = fmt.Fprintf(buf, "\t%q: %v\n", key, value)
	})
	return buf.String()
}

// ExtractParams writes params as the context hyperparameters of the actor, parsed to the type of their
// defaults. The keys are removed from params: it is an error if any key is left unused (e.g. it's
// misspelled), so that no configuration is silently ignored.
func (fnn *FNN) ExtractParams(params config.Params) error {
	var err error
	fnn.ctx.EnumerateParams(func(scope, key string, valueAny any) {
		if err != nil || scope != context.RootScope {
			return
		}
		if _, found := params[key]; !found {
			return
		}
		switch defaultValue := valueAny.(type) {
		case string:
			err = setParam(fnn.ctx, params, key, defaultValue)
		case int:
			err = setParam(fnn.ctx, params, key, defaultValue)
		case float64:
			err = setParam(fnn.ctx, params, key, defaultValue)
		case float32:
			err = setParam(fnn.ctx, params, key, defaultValue)
		case bool:
			err = setParam(fnn.ctx, params, key, defaultValue)
		default:
			err = errors.Errorf("actor parameter %q is of unknown type %T", key, defaultValue)
		}
	})
	if err != nil {
		return err
	}
	if len(params) > 0 {
		return errors.Errorf("unknown actor parameters %q", params.Keys())
	}
	return nil
}

func setParam[T config.ParamType](ctx *context.Context, params config.Params, key string, defaultValue T) error {
	value, err := config.PopParamOr(params, key, defaultValue)
	if err != nil {
		return errors.WithMessagef(err, "parsing %q (%T) for the actor", key, defaultValue)
	}
	ctx.SetParam(key, value)
	return nil
}
