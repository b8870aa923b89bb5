package engine

import (
	"fmt"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/robotlearning/internal/actions"
	"github.com/janpfeifer/robotlearning/internal/config"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"sync"
)

// maxExecCache is the number of different batch shapes each executor keeps compiled.
// Typically there are only 2: the full batch and the last partial one.
const maxExecCache = 16

// RobotLearning trains an Actor to imitate human demonstrations.
//
// It implements Module: every step discretizes the demonstrated actions, runs the actor,
// calculates loss, accuracy and displacement errors, and logs them under "train/..." or "val/..."
// keys to its Logger. Training steps also update the actor's weights with the optimizer.
type RobotLearning struct {
	backend   backends.Backend
	actor     Actor
	optimizer optimizers.Interface
	scheduler Scheduler
	config    *config.Config
	logger    Logger

	trainLoader, valLoader train.Dataset

	// epoch is the current epoch, set by the training loop.
	epoch int

	// Executors per phase, indexed by whether the actor's encoder is frozen.
	// They are created on first use.
	muExec               sync.Mutex
	trainExecs, valExecs [2]*context.Exec
}

// Compile-time assert that RobotLearning implements Module.
var _ Module = (*RobotLearning)(nil)

// New creates a RobotLearning for the given actor, run on backend.
//
// The optimizer is used to train the actor, after the scheduler has updated the learning rate.
// If scheduler is nil, NoScheduler is used. If cfg is nil, config.Default() is used.
// trainLoader and valLoader are only held, to be returned by TrainDataloader and ValDataloader.
//
// Metrics are logged with KlogLogger at verbosity 1, see SetLogger to change it.
func New(backend backends.Backend, actor Actor, optimizer optimizers.Interface,
	trainLoader, valLoader train.Dataset, scheduler Scheduler, cfg *config.Config) (*RobotLearning, error) {
	if backend == nil {
		return nil, errors.New("RobotLearning requires a backend")
	}
	if actor == nil {
		return nil, errors.New("RobotLearning requires an actor")
	}
	if scheduler == nil {
		scheduler = NoScheduler{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid RobotLearning configuration")
	}
	return &RobotLearning{
		backend:     backend,
		actor:       actor,
		optimizer:   optimizer,
		scheduler:   scheduler,
		config:      cfg,
		logger:      KlogLogger{Verbosity: 1},
		trainLoader: trainLoader,
		valLoader:   valLoader,
	}, nil
}

// SetLogger sets the sink of the step metrics. It returns r, so calls can be chained.
func (r *RobotLearning) SetLogger(logger Logger) *RobotLearning {
	r.logger = logger
	return r
}

// String implements fmt.Stringer.
func (r *RobotLearning) String() string {
	return fmt.Sprintf("RobotLearning[%s](%s)@epoch=%d", r.backend.Name(), r.config, r.epoch)
}

// Config returns the training configuration.
func (r *RobotLearning) Config() *config.Config {
	return r.config
}

// SetEpoch implements Module.
func (r *RobotLearning) SetEpoch(epoch int) {
	if r.config.Frozen(r.epoch) && !r.config.Frozen(epoch) {
		klog.V(1).Infof("Epoch %d: unfreezing the actor's encoder", epoch)
	}
	r.epoch = epoch
}

// CurrentEpoch returns the epoch last set with SetEpoch.
func (r *RobotLearning) CurrentEpoch() int {
	return r.epoch
}

// TrainDataloader implements Module.
func (r *RobotLearning) TrainDataloader() train.Dataset {
	return r.trainLoader
}

// ValDataloader implements Module.
func (r *RobotLearning) ValDataloader() train.Dataset {
	return r.valLoader
}

// ConfigureOptimizers implements Module: it returns the optimizer and scheduler given to New.
func (r *RobotLearning) ConfigureOptimizers() (optimizers.Interface, Scheduler) {
	return r.optimizer, r.scheduler
}

// TrainingStep implements Module.
func (r *RobotLearning) TrainingStep(batch Batch, batchIdx int) (StepResult, error) {
	if r.optimizer == nil {
		return StepResult{}, errors.New("RobotLearning.TrainingStep requires an optimizer")
	}
	return r.step(PhaseTrain, batch, batchIdx)
}

// ValidationStep implements Module.
func (r *RobotLearning) ValidationStep(batch Batch, batchIdx int) (StepResult, error) {
	return r.step(PhaseValidation, batch, batchIdx)
}

// step shared by training and validation.
func (r *RobotLearning) step(phase Phase, batch Batch, batchIdx int) (result StepResult, err error) {
	if err = batch.Validate(); err != nil {
		return result, errors.WithMessagef(err, "%s step, batch #%d", phase, batchIdx)
	}
	labels, err := createLabels(batch.Actions)
	if err != nil {
		return result, errors.WithMessagef(err, "%s step, batch #%d", phase, batchIdx)
	}
	freeze := r.config.Frozen(r.epoch)
	err = exceptions.TryCatch[error](func() {
		exec := r.executor(phase, freeze)
		// Images and actions are owned by the loader, only the labels can be donated.
		outputs := exec.Call(batch.Images, batch.Actions, graph.DonateTensorBuffer(labels, r.backend))
		result.Loss = tensors.ToScalar[float32](outputs[outputLoss])
		result.Accuracy = tensors.ToScalar[float32](outputs[outputAccuracy])
		result.ADE = tensors.ToScalar[float32](outputs[outputADE])
		result.FDE = tensors.ToScalar[float32](outputs[outputFDE])
		result.MaxDiff = tensors.ToScalar[float32](outputs[outputMaxDiff])
	})
	if err != nil {
		return result, errors.WithMessagef(err, "%s step, batch #%d, epoch %d", phase, batchIdx, r.epoch)
	}
	r.logger.LogDict(result.Metrics(phase))
	return result, nil
}

// createLabels returns the one-hot labels, shaped [batch_size, 3, 3], of the demonstrated actions.
// demo itself is not modified.
func createLabels(demo *tensors.Tensor) (*tensors.Tensor, error) {
	oneHot, err := actions.OneHotLabels(tensors.CopyFlatData[float32](demo))
	if err != nil {
		return nil, err
	}
	labels := tensors.FromShape(shapes.Make(dtypes.Float32, demo.Shape().Dim(0), actions.NumChannels, actions.NumClasses))
	tensors.MutableFlatData(labels, func(flat []float32) {
		copy(flat, oneHot)
	})
	return labels, nil
}

// executor returns the executor for the phase, creating it if needed.
func (r *RobotLearning) executor(phase Phase, freeze bool) *context.Exec {
	r.muExec.Lock()
	defer r.muExec.Unlock()
	idx := 0
	if freeze {
		idx = 1
	}
	execs := &r.valExecs
	if phase == PhaseTrain {
		execs = &r.trainExecs
	}
	if execs[idx] == nil {
		if phase == PhaseTrain {
			execs[idx] = r.newTrainExec(freeze)
		} else {
			execs[idx] = r.newValidationExec(freeze)
		}
		execs[idx].SetMaxCache(maxExecCache)
		klog.V(2).Infof("Created %s executor (freeze=%v) for %s", phase, freeze, r)
	}
	return execs[idx]
}

func (r *RobotLearning) newTrainExec(freeze bool) *context.Exec {
	return context.NewExec(r.backend, r.actor.Context().Checked(false),
		func(ctx *context.Context, inputs []*graph.Node) []*graph.Node {
			g := inputs[0].Graph()
			ctx.SetTraining(g, true)
			outputs := StepGraph(ctx, r.actor, freeze, inputs)
			r.scheduler.UpdateGraph(ctx, g)
			r.optimizer.UpdateGraph(ctx, g, outputs[outputLoss])
			train.ExecPerStepUpdateGraphFn(ctx, g)
			return outputs
		})
}

func (r *RobotLearning) newValidationExec(freeze bool) *context.Exec {
	return context.NewExec(r.backend, r.actor.Context().Checked(false),
		func(ctx *context.Context, inputs []*graph.Node) []*graph.Node {
			return StepGraph(ctx, r.actor, freeze, inputs)
		})
}

// Finalize frees the compiled executors immediately. RobotLearning can still be used afterward,
// the executors are re-created on demand.
func (r *RobotLearning) Finalize() {
	r.muExec.Lock()
	defer r.muExec.Unlock()
	for _, execs := range []*[2]*context.Exec{&r.trainExecs, &r.valExecs} {
		for ii, exec := range execs {
			if exec != nil {
				exec.Finalize()
				execs[ii] = nil
			}
		}
	}
}
