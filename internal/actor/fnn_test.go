package actor

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	fnnLayer "github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/robotlearning/internal/config"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

func TestFNN_ForwardGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	fnn := NewFNN()
	images := tensors.FromFlatDataAndDimensions(make([]float32, 5*4*4*3), 5, 4, 4, 3)
	for _, freeze := range []bool{true, false} {
		logits := context.ExecOnce(backend, fnn.Context(), func(ctx *context.Context, inputs []*Node) *Node {
			return fnn.ForwardGraph(ctx, inputs[0], freeze)
		}, images)
		assert.Equal(t, []int{5, engine.NumLogits}, logits.Shape().Dimensions)
	}
}

func TestFNN_ExtractParams(t *testing.T) {
	fnn := NewFNN()
	params := config.ParseParams("learning_rate=0.01,embedding_dim=8,optimizer=sgd")
	require.NoError(t, fnn.ExtractParams(params))
	assert.Empty(t, params)
	ctx := fnn.Context()
	assert.Equal(t, 0.01, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0))
	assert.Equal(t, 8, context.GetParamOr(ctx, ParamEmbeddingDim, 0))
	assert.Equal(t, "sgd", context.GetParamOr(ctx, optimizers.ParamOptimizer, ""))
	assert.Equal(t, 1, context.GetParamOr(ctx, fnnLayer.ParamNumHiddenLayers, 0))

	// Wrong type.
	require.Error(t, NewFNN().ExtractParams(config.ParseParams("embedding_dim=x")))

	// Unknown parameter.
	err := NewFNN().ExtractParams(config.ParseParams("embeding_dim=8"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embeding_dim")
}

func TestFNN_HyperparametersHelp(t *testing.T) {
	help := NewFNN().HyperparametersHelp()
	assert.Contains(t, help, `"embedding_dim": 32`)
	assert.Contains(t, help, `"optimizer": adam`)

	// Regularization losses are not part of the training loss, so they are not offered.
	assert.NotContains(t, help, `"l2"`)
	assert.NotContains(t, help, `"l1"`)
	err := NewFNN().ExtractParams(config.ParseParams("l2=0.1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "l2")
}
