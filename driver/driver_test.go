package driver

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/baldhumanity/neat-racing/neat"
	"github.com/baldhumanity/neat-racing/racing"
	"github.com/baldhumanity/neat-racing/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const racingConfigINI = `
[NEAT]
fitness_criterion     = max
fitness_threshold     = 900
pop_size              = 6
reset_on_extinction   = False

[DefaultGenome]
activation_default      = identity
activation_mutate_rate  = 0.0
activation_options      = identity
aggregation_default     = sum
aggregation_mutate_rate = 0.0
aggregation_options     = sum
bias_init_mean          = 0.0
bias_init_stdev         = 1.0
bias_max_value          = 30.0
bias_min_value          = -30.0
bias_mutate_power       = 0.5
bias_mutate_rate        = 0.7
bias_replace_rate       = 0.1
compatibility_disjoint_coefficient = 1.0
compatibility_weight_coefficient   = 0.5
conn_add_prob           = 0.5
conn_delete_prob        = 0.2
enabled_default         = True
enabled_mutate_rate     = 0.01
feed_forward            = True
initial_connection      = unconnected
node_add_prob           = 0.2
node_delete_prob        = 0.1
num_hidden              = 0
num_inputs              = 9216
num_outputs             = 5
response_init_mean      = 1.0
response_init_stdev     = 0.0
response_max_value      = 30.0
response_min_value      = -30.0
response_mutate_power   = 0.0
response_mutate_rate    = 0.0
response_replace_rate   = 0.0
weight_init_mean        = 0.0
weight_init_stdev       = 1.0
weight_max_value        = 30
weight_min_value        = -30
weight_mutate_power     = 0.5
weight_mutate_rate      = 0.8
weight_replace_rate     = 0.1

[DefaultSpeciesSet]
compatibility_threshold = 3.0

[DefaultStagnation]
species_fitness_func = max
max_stagnation       = 20
species_elitism      = 2

[DefaultReproduction]
elitism            = 2
survival_threshold = 0.2
`

func racingConfig(t *testing.T) *neat.Config {
	t.Helper()
	config, err := neat.ParseConfig([]byte(racingConfigINI))
	require.NoError(t, err)
	return config
}

func testRunConfig(maxSteps int) Config {
	config := DefaultConfig()
	config.MaxSteps = maxSteps
	config.RunsPerGenome = 2
	config.CheckpointInterval = 0
	return config
}

// controllerGenome builds a genome whose output nodes use the identity
// activation. Each connection feeds an input into an action output.
func controllerGenome(config *neat.Config, key int, weights map[neat.ConnectionKey]float64) *neat.Genome {
	g := neat.NewGenome(key, &config.Genome)
	for out := 0; out < racing.NumActions; out++ {
		g.Nodes[out] = &neat.NodeGene{Key: out, Response: 1, Activation: "identity", Aggregation: "sum"}
	}
	for ck, w := range weights {
		g.Connections[ck] = &neat.ConnectionGene{Key: ck, Weight: w, Enabled: true}
	}
	return g
}

// gasGenome reads the first input into the gas output, so a bright frame
// always accelerates.
func gasGenome(config *neat.Config, key int, weight float64) *neat.Genome {
	return controllerGenome(config, key, map[neat.ConnectionKey]float64{
		{InNodeID: -1, OutNodeID: int(racing.Gas)}: weight,
	})
}

// rollout plays a fixed action with the racing environment directly.
func rollout(t *testing.T, seed int64, maxSteps int, action racing.Action) float64 {
	t.Helper()
	env := racing.New(racing.Options{MaxSteps: maxSteps})
	_, err := env.Reset(seed)
	require.NoError(t, err)
	total := 0.0
	for {
		_, reward, terminated, truncated, err := env.Step(action)
		require.NoError(t, err)
		total += reward
		if terminated || truncated {
			return total
		}
	}
}

func seed(v int64) *int64 { return &v }

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scaling: false\nruns_per_genome: 2\ndeterministic_seed: 42\nprogress_addr: \":8080\"\n"), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, config.Scaling)
	assert.Equal(t, 2, config.RunsPerGenome)
	require.NotNil(t, config.DeterministicSeed)
	assert.Equal(t, int64(42), *config.DeterministicSeed)
	assert.Equal(t, ":8080", config.ProgressAddr)
	assert.Equal(t, 500, config.MaxSteps, "unset keys keep their defaults")

	t.Setenv("NEATRACING_WORKERS", "4")
	t.Setenv("NEATRACING_DETERMINISTIC_SEED", "7")
	config, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, int64(7), *config.DeterministicSeed)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *config)
	assert.Nil(t, config.DeterministicSeed)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no runs", func(c *Config) { c.RunsPerGenome = 0 }},
		{"negative generations", func(c *Config) { c.Generations = -1 }},
		{"no steps", func(c *Config) { c.MaxSteps = 0 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"lap percent", func(c *Config) { c.LapCompletePercent = 1.5 }},
		{"checkpoint without prefix", func(c *Config) { c.CheckpointPrefix = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			assert.Error(t, config.Validate())
		})
	}
	config := DefaultConfig()
	assert.NoError(t, config.Validate())
}

func TestConfigYAML(t *testing.T) {
	config := DefaultConfig()
	config.DeterministicSeed = seed(42)
	text, err := config.YAML()
	require.NoError(t, err)
	assert.Contains(t, text, "runs_per_genome: 3")
	assert.Contains(t, text, "deterministic_seed: 42")
}

func TestNewChecksNetworkShape(t *testing.T) {
	config := racingConfig(t)
	config.Genome.NumInputs = 10
	_, err := New(DefaultConfig(), config, nil, nil)
	assert.ErrorIs(t, err, ErrInputSize)

	config = racingConfig(t)
	config.Genome.NumOutputs = 3
	_, err = New(DefaultConfig(), config, nil, nil)
	assert.Error(t, err)
}

func TestEvaluateGenomeMatchesRollout(t *testing.T) {
	config := racingConfig(t)
	run := testRunConfig(40)
	run.DeterministicSeed = seed(42)
	d, err := New(run, config, nil, nil)
	require.NoError(t, err)

	t.Run("unconnected genome idles", func(t *testing.T) {
		fitness, err := d.EvaluateGenome(context.Background(), controllerGenome(config, 1, nil))
		require.NoError(t, err)
		assert.InDelta(t, rollout(t, 42, 40, racing.Noop), fitness, 1e-9)
	})

	t.Run("gas genome accelerates", func(t *testing.T) {
		fitness, err := d.EvaluateGenome(context.Background(), gasGenome(config, 2, 1))
		require.NoError(t, err)
		assert.InDelta(t, rollout(t, 42, 40, racing.Gas), fitness, 1e-9)
	})

	t.Run("without scaling", func(t *testing.T) {
		run.Scaling = false
		flat, err := New(run, config, nil, nil)
		require.NoError(t, err)
		fitness, err := flat.EvaluateGenome(context.Background(), gasGenome(config, 3, 1))
		require.NoError(t, err)
		assert.InDelta(t, rollout(t, 42, 40, racing.Gas), fitness, 1e-9)
	})
}

func TestEvalGenomesIsDeterministicAcrossWorkers(t *testing.T) {
	config := racingConfig(t)
	genomes := func() map[int]*neat.Genome {
		return map[int]*neat.Genome{
			1: controllerGenome(config, 1, nil),
			2: gasGenome(config, 2, 1),
			3: gasGenome(config, 3, 0.5),
			4: controllerGenome(config, 4, map[neat.ConnectionKey]float64{{InNodeID: -9000, OutNodeID: int(racing.SteerLeft)}: 1}),
			5: gasGenome(config, 5, 2),
		}
	}
	fitnesses := func(workers int) map[int]float64 {
		run := testRunConfig(25)
		run.Workers = workers
		d, err := New(run, config, rand.New(rand.NewSource(9)), nil)
		require.NoError(t, err)
		population := genomes()
		require.NoError(t, d.EvalGenomes(context.Background(), population))
		out := make(map[int]float64)
		for key, g := range population {
			out[key] = g.Fitness
		}
		return out
	}

	sequential := fitnesses(1)
	assert.Equal(t, sequential, fitnesses(4))
	assert.NotEqual(t, sequential[1], sequential[2], "idle and gas genomes differ")
}

func TestEvalGenomesAssignsFailureFitness(t *testing.T) {
	config := racingConfig(t)
	var logs bytes.Buffer
	run := testRunConfig(5)
	d, err := New(run, config, rand.New(rand.NewSource(1)), log.New(&logs, "", 0))
	require.NoError(t, err)

	broken := gasGenome(config, 1, 1)
	broken.Nodes[int(racing.Gas)].Activation = "bogus"
	genomes := map[int]*neat.Genome{1: broken, 2: gasGenome(config, 2, 1)}

	require.NoError(t, d.EvalGenomes(context.Background(), genomes))
	assert.Equal(t, run.FailureFitness, genomes[1].Fitness)
	assert.NotEqual(t, run.FailureFitness, genomes[2].Fitness)
	assert.Contains(t, logs.String(), "Genome 1 failed evaluation")
}

func TestEvalGenomesHonoursContext(t *testing.T) {
	config := racingConfig(t)
	d, err := New(testRunConfig(5), config, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.EvalGenomes(ctx, map[int]*neat.Genome{1: gasGenome(config, 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay(t *testing.T) {
	config := racingConfig(t)
	run := testRunConfig(30)
	run.RunsPerGenome = 1
	run.DeterministicSeed = seed(5)
	d, err := New(run, config, nil, nil)
	require.NoError(t, err)
	genome := gasGenome(config, 1, 1)

	var steps []Observation
	total, err := d.Replay(context.Background(), genome, ObserverFunc(func(obs Observation) error {
		steps = append(steps, obs)
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, steps, 30)
	assert.Equal(t, 1, steps[0].Step)
	assert.Equal(t, racing.Gas, steps[0].Action)
	assert.Equal(t, total, steps[len(steps)-1].Reward)

	fitness, err := d.EvaluateGenome(context.Background(), genome)
	require.NoError(t, err)
	assert.Equal(t, fitness, total)

	// One connected input: the controller sees a single region, the frame mean.
	view := steps[0].View
	assert.Equal(t, racing.FrameSize, view.Height())
	for _, v := range view.Flatten() {
		assert.Equal(t, view.At(0, 0), v)
	}

	// The first observation shows the frame returned by Reset.
	env := racing.New(racing.Options{LapCompletePercent: run.LapCompletePercent, MaxSteps: run.MaxSteps})
	first, err := env.Reset(5)
	require.NoError(t, err)
	env.Close()
	assert.Equal(t, first.Pix, steps[0].Image.Pix)

	errStop := errors.New("stop")
	count := 0
	_, err = d.Replay(context.Background(), genome, ObserverFunc(func(Observation) error {
		count++
		if count == 3 {
			return errStop
		}
		return nil
	}))
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 3, count)
}

func TestReplayViewIsWhatTheNetworkSaw(t *testing.T) {
	config := racingConfig(t)
	for _, tt := range []struct {
		name     string
		scaling  bool
		quantize bool
	}{
		{"means", true, false},
		{"quantized means", true, true},
		{"full frame", false, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			run := testRunConfig(10)
			run.RunsPerGenome = 1
			run.DeterministicSeed = seed(9)
			run.Scaling = tt.scaling
			run.Quantize = tt.quantize
			d, err := New(run, config, nil, nil)
			require.NoError(t, err)

			scaler := scale.Scaler{Quantize: tt.quantize}
			count := 0
			_, err = d.Replay(context.Background(), gasGenome(config, 1, 1), ObserverFunc(func(obs Observation) error {
				count++
				frame := scale.Grayscale(obs.Image)
				want := frame
				if tt.scaling {
					mosaic, err := scaler.Mosaic(frame, 1)
					require.NoError(t, err)
					want = mosaic
					in, err := scaler.Scale(frame, []int{-1})
					require.NoError(t, err)
					assert.Equal(t, in[0], obs.View.At(0, 0))
				}
				assert.Equal(t, want.Flatten(), obs.View.Flatten(), "step %d", obs.Step)
				if tt.quantize {
					v := obs.View.At(0, 0)
					assert.Equal(t, float64(int(v)), v)
				}
				return nil
			}))
			require.NoError(t, err)
			assert.Equal(t, 10, count)
		})
	}
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 0, argmax([]float64{0, 0, 0}))
	assert.Equal(t, 2, argmax([]float64{1, 0, 3, 3}))
	assert.Equal(t, 1, argmax([]float64{-2, -1}))
}
