package config

import (
	"fmt"
	"github.com/pkg/errors"
)

// Config holds the values the training loop and the training/validation steps depend on.
// Model hyperparameters are not part of it: they live in the actor's context.
type Config struct {
	// FreezeUntil is the first epoch where the vision encoder of the actor is trained.
	// For epochs < FreezeUntil the actor is asked to keep its encoder frozen.
	FreezeUntil int

	// NumEpochs to train for.
	NumEpochs int

	// BatchSize used by the data loaders.
	BatchSize int
}

// Default values of Config.
const (
	DefaultFreezeUntil = 0
	DefaultNumEpochs   = 10
	DefaultBatchSize   = 32
)

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		FreezeUntil: DefaultFreezeUntil,
		NumEpochs:   DefaultNumEpochs,
		BatchSize:   DefaultBatchSize,
	}
}

// New creates a Config from params, popping the keys it uses ("freeze_until", "num_epochs"
// and "batch_size"). Other keys are left in params, to be consumed by the actor.
func New(params Params) (*Config, error) {
	c := Default()
	var err error
	if c.FreezeUntil, err = PopParamOr(params, "freeze_until", c.FreezeUntil); err != nil {
		return nil, err
	}
	if c.NumEpochs, err = PopParamOr(params, "num_epochs", c.NumEpochs); err != nil {
		return nil, err
	}
	if c.BatchSize, err = PopParamOr(params, "batch_size", c.BatchSize); err != nil {
		return nil, err
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values are in range.
func (c *Config) Validate() error {
	if c.FreezeUntil < 0 {
		return errors.Errorf("freeze_until must be >= 0, got %d", c.FreezeUntil)
	}
	if c.NumEpochs <= 0 {
		return errors.Errorf("num_epochs must be > 0, got %d", c.NumEpochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0, got %d", c.BatchSize)
	}
	return nil
}

// Frozen returns whether the actor's encoder should be frozen during the given epoch.
func (c *Config) Frozen(epoch int) bool {
	return epoch < c.FreezeUntil
}

// String implements fmt.Stringer.
func (c *Config) String() string {
	return fmt.Sprintf("freeze_until=%d,num_epochs=%d,batch_size=%d", c.FreezeUntil, c.NumEpochs, c.BatchSize)
}
