package dataset

import (
	"github.com/chewxy/math32"
	"github.com/janpfeifer/robotlearning/internal/actions"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"math/rand"
	"runtime"
)

// syntheticChunkSize is the number of examples whose actions are calculated per goroutine.
const syntheticChunkSize = 256

// syntheticActionScale is the standard deviation of the synthetic normalized actions: large enough
// that all three classes are frequent.
const syntheticActionScale = 1.5

// Synthetic generates n demonstrations with random images of the given dimensions, whose actions are
// a fixed random linear projection of the image. So an actor can learn to imitate them.
//
// The same seed generates the same demonstrations.
func Synthetic(n int, imageDims []int, seed int64) (*Demonstrations, error) {
	if n < 0 {
		return nil, errors.Errorf("invalid number of synthetic demonstrations %d", n)
	}
	d := &Demonstrations{ImageDims: imageDims}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	imageSize := d.ImageSize()

	// Projection from image to each action channel.
	var projection [actions.NumChannels][]float32
	norm := syntheticActionScale / math32.Sqrt(float32(imageSize))
	for ch := range projection {
		projection[ch] = make([]float32, imageSize)
		for ii := range projection[ch] {
			projection[ch][ii] = float32(rng.NormFloat64()) * norm
		}
	}

	d.Images = make([]float32, n*imageSize)
	for ii := range d.Images {
		d.Images[ii] = float32(rng.NormFloat64())
	}

	// Actions only depend on their image: calculated in parallel.
	d.Actions = make([]actions.Action, n)
	var wg errgroup.Group
	wg.SetLimit(runtime.NumCPU())
	for start := 0; start < n; start += syntheticChunkSize {
		end := min(start+syntheticChunkSize, n)
		wg.Go(func() error {
			for exampleIdx := start; exampleIdx < end; exampleIdx++ {
				image := d.Images[exampleIdx*imageSize : (exampleIdx+1)*imageSize]
				for ch := range actions.NumChannels {
					var normalized float32
					for ii, v := range image {
						normalized += v * projection[ch][ii]
					}
					d.Actions[exampleIdx][ch] = normalized * actions.Scales[ch]
				}
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
