// Package dataset holds human demonstrations in memory and serves them in batches as a gomlx
// train.Dataset. It also generates synthetic demonstrations for testing and demos.
package dataset

import (
	"fmt"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/robotlearning/internal/actions"
	"github.com/pkg/errors"
	"io"
	"math/rand"
	"slices"
)

// Demonstrations is a set of examples of camera images and the action taken by the human operator.
type Demonstrations struct {
	// ImageDims are the dimensions of one image, e.g. [height, width, channels].
	ImageDims []int

	// Images holds the flat images of all examples, one after the other.
	Images []float32

	// Actions taken, one per image.
	Actions []actions.Action
}

// NewDemonstrations validates and returns the demonstrations.
func NewDemonstrations(imageDims []int, images []float32, demo []actions.Action) (*Demonstrations, error) {
	d := &Demonstrations{ImageDims: slices.Clone(imageDims), Images: images, Actions: demo}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ImageSize is the number of values of one image.
func (d *Demonstrations) ImageSize() int {
	size := 1
	for _, dim := range d.ImageDims {
		size *= dim
	}
	return size
}

// Len returns the number of examples.
func (d *Demonstrations) Len() int {
	return len(d.Actions)
}

// Validate checks the images and actions are consistent.
func (d *Demonstrations) Validate() error {
	if len(d.ImageDims) == 0 {
		return errors.New("demonstrations require the image dimensions")
	}
	for _, dim := range d.ImageDims {
		if dim <= 0 {
			return errors.Errorf("invalid image dimensions %v", d.ImageDims)
		}
	}
	if len(d.Images) != d.Len()*d.ImageSize() {
		return errors.Errorf("demonstrations have %d actions, so expected %d x %v = %d image values, got %d",
			d.Len(), d.Len(), d.ImageDims, d.Len()*d.ImageSize(), len(d.Images))
	}
	return nil
}

// Split the demonstrations in two: the first n examples and the rest.
// The data is shared, not copied.
func (d *Demonstrations) Split(n int) (first, rest *Demonstrations) {
	n = min(max(n, 0), d.Len())
	imageSize := d.ImageSize()
	first = &Demonstrations{ImageDims: d.ImageDims, Images: d.Images[:n*imageSize], Actions: d.Actions[:n]}
	rest = &Demonstrations{ImageDims: d.ImageDims, Images: d.Images[n*imageSize:], Actions: d.Actions[n:]}
	return
}

// InMemory implements train.Dataset over Demonstrations.
//
// Each Yield returns a batch with inputs=[images] shaped [batch_size, imageDims...] and labels=[actions]
// shaped [batch_size, 3]. At the end of an epoch it returns io.EOF, and it must be Reset to be used again.
type InMemory struct {
	name      string
	demos     *Demonstrations
	batchSize int

	dropIncompleteBatch bool
	rng                 *rand.Rand
	order               []int
	next                int
}

// Compile-time assert that InMemory implements train.Dataset.
var _ train.Dataset = (*InMemory)(nil)

// NewInMemory creates an InMemory dataset yielding batches of batchSize demonstrations.
// By default, the last batch of the epoch may be smaller, see DropIncompleteBatch.
func NewInMemory(name string, demos *Demonstrations, batchSize int) (*InMemory, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %q: invalid batch size %d", name, batchSize)
	}
	if err := demos.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	ds := &InMemory{
		name:      name,
		demos:     demos,
		batchSize: batchSize,
		order:     make([]int, demos.Len()),
	}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds, nil
}

// DropIncompleteBatch configures whether the last batch of the epoch is dropped, if it is smaller
// than the batch size. It returns ds, so calls can be chained.
func (ds *InMemory) DropIncompleteBatch(drop bool) *InMemory {
	ds.dropIncompleteBatch = drop
	return ds
}

// Shuffle the order of the examples at every Reset, using a random number generator seeded with seed.
// It also shuffles the current epoch. It returns ds, so calls can be chained.
func (ds *InMemory) Shuffle(seed int64) *InMemory {
	ds.rng = rand.New(rand.NewSource(seed))
	ds.shuffle()
	return ds
}

func (ds *InMemory) shuffle() {
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Name implements train.Dataset.
func (ds *InMemory) Name() string {
	return ds.name
}

// String implements fmt.Stringer.
func (ds *InMemory) String() string {
	return fmt.Sprintf("Dataset %q: %d examples, images %v, batch size %d", ds.name, ds.demos.Len(), ds.demos.ImageDims, ds.batchSize)
}

// Len returns the number of examples in the dataset.
func (ds *InMemory) Len() int {
	return ds.demos.Len()
}

// NumBatches returns the number of batches yielded per epoch.
func (ds *InMemory) NumBatches() int {
	if ds.dropIncompleteBatch {
		return ds.Len() / ds.batchSize
	}
	return (ds.Len() + ds.batchSize - 1) / ds.batchSize
}

// Yield implements train.Dataset.
func (ds *InMemory) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	remaining := len(ds.order) - ds.next
	if remaining <= 0 || (ds.dropIncompleteBatch && remaining < ds.batchSize) {
		err = io.EOF
		return
	}
	batchSize := min(remaining, ds.batchSize)
	imageSize := ds.demos.ImageSize()
	images := make([]float32, 0, batchSize*imageSize)
	demo := make([]float32, 0, batchSize*actions.NumChannels)
	for _, exampleIdx := range ds.order[ds.next : ds.next+batchSize] {
		images = append(images, ds.demos.Images[exampleIdx*imageSize:(exampleIdx+1)*imageSize]...)
		demo = append(demo, ds.demos.Actions[exampleIdx][:]...)
	}
	ds.next += batchSize

	imageDims := append([]int{batchSize}, ds.demos.ImageDims...)
	inputs = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(images, imageDims...)}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(demo, batchSize, actions.NumChannels)}
	spec = ds
	return
}

// Reset implements train.Dataset. It restarts the epoch, reshuffling if Shuffle was configured.
func (ds *InMemory) Reset() {
	ds.next = 0
	if ds.rng != nil {
		ds.shuffle()
	}
}
