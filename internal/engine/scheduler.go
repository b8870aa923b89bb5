package engine

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gopjrt/dtypes"
)

// Scheduler of the learning rate. It is applied to the training step graph, before the optimizer.
type Scheduler interface {
	// UpdateGraph sets the learning rate to be used by the optimizer in the training step graph g.
	UpdateGraph(ctx *context.Context, g *graph.Graph)
}

// NoScheduler keeps the learning rate constant, as configured for the optimizer.
type NoScheduler struct{}

// UpdateGraph implements Scheduler.
func (NoScheduler) UpdateGraph(*context.Context, *graph.Graph) {}

// CosineScheduler anneals the learning rate with a cosine schedule, configured by the context
// hyperparameters (see cosineschedule.ParamPeriodSteps and optimizers.ParamLearningRate).
//
// If the period is not set (<= 0), it behaves as NoScheduler.
type CosineScheduler struct{}

// UpdateGraph implements Scheduler.
func (CosineScheduler) UpdateGraph(ctx *context.Context, g *graph.Graph) {
	if context.GetParamOr(ctx, cosineschedule.ParamPeriodSteps, 0) <= 0 {
		return
	}
	cosineschedule.New(ctx, g, dtypes.Float32).FromContext().Done()
}

var (
	_ Scheduler = NoScheduler{}
	_ Scheduler = CosineScheduler{}
)
