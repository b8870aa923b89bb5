package loop

import (
	"context"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/janpfeifer/robotlearning/internal/actor"
	"github.com/janpfeifer/robotlearning/internal/config"
	"github.com/janpfeifer/robotlearning/internal/dataset"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

// fakeModule records the calls made by Fit, and returns the batch size as the loss.
type fakeModule struct {
	trainLoader, valLoader train.Dataset
	calls                  []string
	failAt                 int
}

func (m *fakeModule) SetEpoch(epoch int) { m.calls = append(m.calls, "epoch") }

func (m *fakeModule) TrainingStep(batch engine.Batch, batchIdx int) (engine.StepResult, error) {
	m.calls = append(m.calls, "train")
	if len(m.calls) == m.failAt {
		return engine.StepResult{}, errors.New("step failed")
	}
	return engine.StepResult{Loss: float32(batch.Size()), Accuracy: 1}, nil
}

func (m *fakeModule) ValidationStep(batch engine.Batch, batchIdx int) (engine.StepResult, error) {
	m.calls = append(m.calls, "val")
	return engine.StepResult{Loss: 2, Accuracy: 0.5}, nil
}

func (m *fakeModule) TrainDataloader() train.Dataset { return m.trainLoader }
func (m *fakeModule) ValDataloader() train.Dataset   { return m.valLoader }

func (m *fakeModule) ConfigureOptimizers() (optimizers.Interface, engine.Scheduler) {
	return nil, engine.NoScheduler{}
}

func newLoader(t *testing.T, name string, numExamples, batchSize int) *dataset.InMemory {
	demos, err := dataset.Synthetic(numExamples, []int{3}, 1)
	require.NoError(t, err)
	ds, err := dataset.NewInMemory(name, demos, batchSize)
	require.NoError(t, err)
	return ds
}

func TestFit_Calls(t *testing.T) {
	m := &fakeModule{
		trainLoader: newLoader(t, "train", 5, 2),
		valLoader:   newLoader(t, "val", 2, 2),
	}
	var epochs []int
	var steps int
	summaries, err := Fit(context.Background(), m, 2, &Hooks{
		OnStep: func(phase engine.Phase, epoch, batchIdx int, result engine.StepResult, averageLoss float32) {
			steps++
		},
		OnEpoch: func(summary EpochSummary) { epochs = append(epochs, summary.Epoch) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"epoch", "train", "train", "train", "val",
		"epoch", "train", "train", "train", "val",
	}, m.calls)
	assert.Equal(t, []int{0, 1}, epochs)
	assert.Equal(t, 8, steps)
	require.Len(t, summaries, 2)

	// Batches of 2, 2 and 1: loss weighted by the batch size is (2*2+2*2+1*1)/5.
	trainSummary := summaries[1].Train
	assert.Equal(t, 3, trainSummary.NumBatches)
	assert.Equal(t, 5, trainSummary.NumExamples)
	assert.InDelta(t, 9.0/5.0, trainSummary.Mean.Loss, 1e-6)
	assert.Equal(t, float32(1), trainSummary.Mean.Accuracy)
	assert.Equal(t, float32(0.5), summaries[1].Val.Mean.Accuracy)
}

func TestFit_Errors(t *testing.T) {
	m := &fakeModule{trainLoader: newLoader(t, "train", 4, 2), failAt: 3}
	summaries, err := Fit(context.Background(), m, 3, nil)
	require.Error(t, err)
	assert.Empty(t, summaries)

	// Cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m = &fakeModule{trainLoader: newLoader(t, "train", 4, 2)}
	_, err = Fit(ctx, m, 3, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = Fit(context.Background(), m, 0, nil)
	require.Error(t, err)
	_, err = Fit(context.Background(), &fakeModule{}, 1, nil)
	require.Error(t, err)
}

func TestMovingAverage(t *testing.T) {
	// The first value is taken as is.
	assert.Equal(t, float32(3), movingAverage(0, 3, AverageLossDecay, 1))
	assert.InDelta(t, 2.0, movingAverage(3, 1, AverageLossDecay, 2), 1e-6)
	assert.InDelta(t, 0.95*2+0.05*1, movingAverage(2, 1, AverageLossDecay, 100), 1e-6)
}

// TestFit_RobotLearning trains the FNN actor on synthetic demonstrations.
func TestFit_RobotLearning(t *testing.T) {
	imageDims := []int{4, 4, 1}
	demos, err := dataset.Synthetic(256, imageDims, 42)
	require.NoError(t, err)
	valDemos, trainDemos := demos.Split(64)
	cfg, err := config.New(config.ParseParams("freeze_until=1,num_epochs=4,batch_size=32"))
	require.NoError(t, err)
	trainLoader, err := dataset.NewInMemory("train", trainDemos, cfg.BatchSize)
	require.NoError(t, err)
	valLoader, err := dataset.NewInMemory("val", valDemos, cfg.BatchSize)
	require.NoError(t, err)

	fnn := actor.NewFNN()
	require.NoError(t, fnn.ExtractParams(config.ParseParams("learning_rate=0.01")))
	r, err := engine.New(graphtest.BuildTestBackend(), fnn, optimizers.FromContext(fnn.Context()),
		trainLoader, valLoader, engine.CosineScheduler{}, cfg)
	require.NoError(t, err)
	defer r.Finalize()
	logger := engine.NewMemoryLogger()
	r.SetLogger(logger)

	summaries, err := Fit(context.Background(), r, cfg.NumEpochs, nil)
	require.NoError(t, err)
	require.Len(t, summaries, cfg.NumEpochs)
	for _, summary := range summaries {
		assert.Equal(t, 6, summary.Train.NumBatches)
		assert.Equal(t, 2, summary.Val.NumBatches)
	}
	assert.Less(t, summaries[len(summaries)-1].Train.Mean.Loss, summaries[0].Train.Mean.Loss)
	assert.Len(t, logger.Values(engine.PhaseTrain.Key(engine.MetricLoss)), 6*cfg.NumEpochs)
	assert.Len(t, logger.Values(engine.PhaseValidation.Key(engine.MetricAccuracy)), 2*cfg.NumEpochs)
	assert.Equal(t, cfg.NumEpochs-1, r.CurrentEpoch())
}
