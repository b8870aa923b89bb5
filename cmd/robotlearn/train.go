package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/janpfeifer/robotlearning/internal/actor"
	"github.com/janpfeifer/robotlearning/internal/config"
	"github.com/janpfeifer/robotlearning/internal/dataset"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/janpfeifer/robotlearning/internal/loop"
	"github.com/janpfeifer/robotlearning/internal/ui/console"
	"github.com/pkg/errors"
	"strconv"
	"strings"
)

// Flags
var (
	flagConfig = flag.String("config", "", "Configuration string, e.g. "+
		"\"freeze_until=2,num_epochs=5,batch_size=16,learning_rate=0.001\". "+
		"Besides freeze_until, num_epochs and batch_size, any of the actor hyperparameters can be set, "+
		"see -hyperparams_help.")
	flagHyperparamsHelp = flag.Bool("hyperparams_help", false, "List the actor hyperparameters and their defaults.")
	flagNumExamples     = flag.Int("num_examples", 1024, "Number of training demonstrations.")
	flagValExamples     = flag.Int("val_examples", 256, "Number of validation demonstrations.")
	flagImageDims       = flag.String("image_dims", "16,16,1", "Dimensions of the camera images, comma separated.")
	flagSeed            = flag.Int64("seed", 42, "Seed used to generate and shuffle the demonstrations.")
)

// trainActor creates the demonstrations, the actor and the RobotLearning module and trains it until
// the configured number of epochs, or until ctx is cancelled.
func trainActor(ctx context.Context, ui *console.Console) ([]loop.EpochSummary, error) {
	params := config.ParseParams(*flagConfig)
	cfg, err := config.New(params)
	if err != nil {
		return nil, err
	}
	fnn := actor.NewFNN()
	if *flagHyperparamsHelp {
		fmt.Print(fnn.HyperparametersHelp())
		return nil, nil
	}
	if err = fnn.ExtractParams(params); err != nil {
		return nil, errors.WithMessagef(err, "in -config=%q", *flagConfig)
	}
	trainLoader, valLoader, err := createLoaders(cfg)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s\n%s\n", trainLoader, valLoader)

	backend := backends.New()
	r, err := engine.New(backend, fnn, optimizers.FromContext(fnn.Context()),
		trainLoader, valLoader, engine.CosineScheduler{}, cfg)
	if err != nil {
		return nil, err
	}
	defer r.Finalize()
	fmt.Printf("Training %s\n", r)

	return loop.Fit(ctx, r, cfg.NumEpochs, ui.Hooks())
}

// createLoaders with synthetic demonstrations.
func createLoaders(cfg *config.Config) (trainLoader, valLoader *dataset.InMemory, err error) {
	imageDims, err := parseDims(*flagImageDims)
	if err != nil {
		return nil, nil, err
	}
	demos, err := dataset.Synthetic(*flagNumExamples+*flagValExamples, imageDims, *flagSeed)
	if err != nil {
		return nil, nil, err
	}
	valDemos, trainDemos := demos.Split(*flagValExamples)
	trainLoader, err = dataset.NewInMemory("train", trainDemos, cfg.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	trainLoader.Shuffle(*flagSeed)
	valLoader, err = dataset.NewInMemory("val", valDemos, cfg.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	return trainLoader, valLoader, nil
}

// parseDims parses a comma separated list of positive dimensions.
func parseDims(s string) ([]int, error) {
	var dims []int
	for _, part := range strings.Split(s, ",") {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || dim <= 0 {
			return nil, errors.Errorf("invalid dimension %q in %q", part, s)
		}
		dims = append(dims, dim)
	}
	return dims, nil
}
