// Package driver evaluates NEAT genomes as car racing controllers.
//
// Each step the environment's frame is converted to grayscale, reduced to
// the genome's connected inputs by the scale package (or flattened when
// scaling is off), fed through the genome's feed-forward network, and the
// strongest output picks the next action. A genome's fitness is its mean
// episode reward.
package driver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"

	"github.com/baldhumanity/neat-racing/neat"
	"github.com/baldhumanity/neat-racing/neat/nn"
	"github.com/baldhumanity/neat-racing/racing"
	"github.com/baldhumanity/neat-racing/scale"
	"golang.org/x/sync/errgroup"
)

// ObservationSize is the number of network inputs a racing controller needs.
const ObservationSize = racing.FrameSize * racing.FrameSize

var ErrInputSize = errors.New("genome input layer does not match the observation size")

// Observation is handed to an Observer after every replay step.
type Observation struct {
	Step   int
	Action racing.Action
	Reward float64 // Accumulated over the episode so far, including this step
	// Image is the frame the action was chosen from.
	Image *image.RGBA
	// View is what the controller was shown of Image: region means painted
	// back at their positions, or the grayscale frame when scaling is off.
	View scale.Frame
}

// Observer receives replay steps. Returning an error stops the replay.
type Observer interface {
	Observe(obs Observation) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(obs Observation) error

func (f ObserverFunc) Observe(obs Observation) error { return f(obs) }

// Driver runs genomes through racing episodes.
type Driver struct {
	Config Config
	NEAT   *neat.Config
	Logger *log.Logger

	scaler scale.Scaler

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New creates a driver. rng supplies episode seeds when no deterministic
// seed is configured; nil seeds one from the clock.
func New(config Config, neatConfig *neat.Config, rng *rand.Rand, logger *log.Logger) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if neatConfig.Genome.NumInputs != ObservationSize {
		return nil, fmt.Errorf("%w: num_inputs is %d, frames have %d pixels",
			ErrInputSize, neatConfig.Genome.NumInputs, ObservationSize)
	}
	if neatConfig.Genome.NumOutputs != racing.NumActions {
		return nil, fmt.Errorf("num_outputs must be %d (one per action), got %d",
			racing.NumActions, neatConfig.Genome.NumOutputs)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	return &Driver{
		Config: config,
		NEAT:   neatConfig,
		Logger: logger,
		scaler: scale.Scaler{Quantize: config.Quantize},
		rng:    rng,
	}, nil
}

// EvalGenomes sets the fitness of every genome. It has the signature of a
// neat.FitnessFunc. Up to Config.Workers genomes are evaluated at once;
// episode seeds are drawn up front in genome key order so a seeded driver
// gives the same fitnesses for any number of workers.
func (d *Driver) EvalGenomes(ctx context.Context, genomes map[int]*neat.Genome) error {
	keys := make([]int, 0, len(genomes))
	for key := range genomes {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	seeds := make([][]int64, len(keys))
	for i := range keys {
		seeds[i] = d.drawSeeds()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.Config.Workers)
	for i, key := range keys {
		i, key := i, key
		genome := genomes[key]
		group.Go(func() error {
			fitness, err := d.evaluate(groupCtx, genome, seeds[i])
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				d.Logger.Printf("Genome %d failed evaluation, fitness set to %g: %v", key, d.Config.FailureFitness, err)
				fitness = d.Config.FailureFitness
			}
			genome.Fitness = fitness
			return nil
		})
	}
	return group.Wait()
}

// EvaluateGenome returns the mean reward of the genome over
// Config.RunsPerGenome episodes.
func (d *Driver) EvaluateGenome(ctx context.Context, genome *neat.Genome) (float64, error) {
	return d.evaluate(ctx, genome, d.drawSeeds())
}

// Replay drives one episode with the genome, handing every step to the
// observer. It returns the episode reward.
func (d *Driver) Replay(ctx context.Context, genome *neat.Genome, observer Observer) (float64, error) {
	c, err := d.newController(genome)
	if err != nil {
		return 0, err
	}
	return d.runEpisode(ctx, c, d.drawSeeds()[0], observer)
}

func (d *Driver) evaluate(ctx context.Context, genome *neat.Genome, seeds []int64) (float64, error) {
	c, err := d.newController(genome)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, seed := range seeds {
		reward, err := d.runEpisode(ctx, c, seed, nil)
		if err != nil {
			return 0, err
		}
		total += reward
	}
	return total / float64(len(seeds)), nil
}

func (d *Driver) drawSeeds() []int64 {
	seeds := make([]int64, d.Config.RunsPerGenome)
	if d.Config.DeterministicSeed != nil {
		for i := range seeds {
			seeds[i] = *d.Config.DeterministicSeed
		}
		return seeds
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range seeds {
		seeds[i] = d.rng.Int63()
	}
	return seeds
}

// controller is a genome's network plus the input identifiers it reads.
type controller struct {
	net      *nn.FeedForwardNetwork
	inputIDs []int
}

func (d *Driver) newController(genome *neat.Genome) (*controller, error) {
	net, err := nn.CreateFeedForwardNetwork(genome)
	if err != nil {
		return nil, fmt.Errorf("genome %d: %w", genome.Key, err)
	}
	c := &controller{net: net}
	if d.Config.Scaling {
		c.inputIDs = genome.ActiveInputKeys()
	}
	return c, nil
}

// inputs converts a frame to the network's input vector.
func (d *Driver) inputs(c *controller, frame scale.Frame) ([]float64, error) {
	if !d.Config.Scaling {
		return frame.Flatten(), nil
	}
	return d.scaler.Scale(frame, c.inputIDs)
}

func (d *Driver) runEpisode(ctx context.Context, c *controller, seed int64, observer Observer) (float64, error) {
	env := racing.New(racing.Options{
		LapCompletePercent: d.Config.LapCompletePercent,
		MaxSteps:           d.Config.MaxSteps,
	})
	defer env.Close()

	img, err := env.Reset(seed)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		frame := scale.Grayscale(img)
		in, err := d.inputs(c, frame)
		if err != nil {
			return 0, fmt.Errorf("scale observation: %w", err)
		}
		out, err := c.net.Activate(in)
		if err != nil {
			return 0, err
		}
		action := racing.Action(argmax(out))

		seen := img
		var reward float64
		var terminated, truncated bool
		img, reward, terminated, truncated, err = env.Step(action)
		if err != nil {
			return 0, err
		}
		total += reward

		if observer != nil {
			view, err := d.view(c, frame)
			if err != nil {
				return 0, err
			}
			if err := observer.Observe(Observation{Step: step, Action: action, Reward: total, Image: seen, View: view}); err != nil {
				return total, err
			}
		}
		if terminated || truncated {
			return total, nil
		}
	}
}

// view reconstructs the frame the controller saw.
func (d *Driver) view(c *controller, frame scale.Frame) (scale.Frame, error) {
	if !d.Config.Scaling {
		return frame, nil
	}
	return d.scaler.Mosaic(frame, len(c.inputIDs))
}

// argmax returns the index of the first largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
