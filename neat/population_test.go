package neat

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var xorInputs = [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
var xorOutputs = []float64{0, 1, 1, 0}

// evalXOR scores genomes on XOR without the nn package: genomes with a
// single output node and no hidden nodes are enough to compare runs.
func evalXOR(_ context.Context, genomes map[int]*Genome) error {
	for _, g := range genomes {
		fitness := 4.0
		for i, in := range xorInputs {
			sum := 0.0
			for key, c := range g.Connections {
				if c.Enabled && key.OutNodeID == 0 && key.InNodeID < 0 {
					sum += in[-key.InNodeID-1] * c.Weight
				}
			}
			out := Sigmoid(g.Nodes[0].Bias + g.Nodes[0].Response*sum)
			fitness -= (out - xorOutputs[i]) * (out - xorOutputs[i])
		}
		g.Fitness = fitness
	}
	return nil
}

func constantFitness(v float64) FitnessFunc {
	return func(_ context.Context, genomes map[int]*Genome) error {
		for _, g := range genomes {
			g.Fitness = v
		}
		return nil
	}
}

type recordingReporter struct {
	BaseReporter
	events []string
}

func (r *recordingReporter) StartGeneration(int) { r.events = append(r.events, "start") }
func (r *recordingReporter) PostEvaluate(*Config, map[int]*Genome, *SpeciesSet, *Genome) {
	r.events = append(r.events, "evaluate")
}
func (r *recordingReporter) PostReproduction(*Config, map[int]*Genome, *SpeciesSet) {
	r.events = append(r.events, "reproduce")
}
func (r *recordingReporter) EndGeneration(*Config, map[int]*Genome, *SpeciesSet) {
	r.events = append(r.events, "end")
}
func (r *recordingReporter) CompleteExtinction() { r.events = append(r.events, "extinction") }
func (r *recordingReporter) FoundSolution(*Config, int, *Genome) {
	r.events = append(r.events, "solution")
}

func TestNewPopulation(t *testing.T) {
	config := testConfig(t)
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Len(t, pop.Population, 50)
	assert.Zero(t, pop.Generation)
	assert.NotEmpty(t, pop.SpeciesSet.Species, "initial population is speciated")
	for gid := range pop.Population {
		_, ok := pop.SpeciesSet.GetSpeciesID(gid)
		assert.True(t, ok, "genome %d has a species", gid)
	}
}

func TestRunKeepsPopulationSizeAndBest(t *testing.T) {
	config := testConfig(t, "fitness_threshold     = 3.9", "fitness_threshold = 100")
	pop, err := NewPopulation(config, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	stats := NewStatisticsReporter()
	pop.AddReporter(stats)

	best := math.Inf(-1)
	for i := 0; i < 15; i++ {
		winner, err := pop.RunGeneration(context.Background(), evalXOR)
		require.NoError(t, err)
		require.Nil(t, winner)
		assert.Len(t, pop.Population, 50)
		assert.GreaterOrEqual(t, pop.BestGenome.Fitness, best, "best fitness never decreases")
		best = pop.BestGenome.Fitness
	}
	assert.Equal(t, 15, pop.Generation)
	assert.Len(t, stats.MostFitGenomes, 15)
	assert.Equal(t, best, stats.BestGenome().Fitness)
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	run := func() []float64 {
		config := testConfig(t, "fitness_threshold     = 3.9", "fitness_threshold = 100")
		pop, err := NewPopulation(config, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		stats := NewStatisticsReporter()
		pop.AddReporter(stats)
		_, err = pop.Run(context.Background(), evalXOR, 8)
		require.NoError(t, err)
		return append(stats.FitnessMean(), float64(pop.Reproduction.NextGenomeKey))
	}
	assert.Equal(t, run(), run())
}

func TestRunStopsAtFitnessThreshold(t *testing.T) {
	config := testConfig(t)
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	rec := &recordingReporter{}
	pop.AddReporter(rec)

	winner, err := pop.Run(context.Background(), constantFitness(10), 5)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, 10.0, winner.Fitness)
	assert.Equal(t, []string{"start", "evaluate", "solution"}, rec.events)
}

func TestReporterEventOrder(t *testing.T) {
	config := testConfig(t, "fitness_threshold     = 3.9", "fitness_threshold = 100")
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	rec := &recordingReporter{}
	pop.AddReporter(rec)

	_, err = pop.Run(context.Background(), evalXOR, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"start", "evaluate", "reproduce", "end",
		"start", "evaluate", "reproduce", "end",
	}, rec.events)

	pop.RemoveReporter(rec)
	_, err = pop.Run(context.Background(), evalXOR, 1)
	require.NoError(t, err)
	assert.Len(t, rec.events, 8)
}

func TestNoFitnessTermination(t *testing.T) {
	config := testConfig(t, "reset_on_extinction   = False", "reset_on_extinction = False\nno_fitness_termination = True")

	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = pop.Run(context.Background(), evalXOR, 0)
	require.Error(t, err)

	rec := &recordingReporter{}
	pop.AddReporter(rec)
	best, err := pop.Run(context.Background(), constantFitness(10), 2)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "solution", rec.events[len(rec.events)-1])
}

func TestCompleteExtinction(t *testing.T) {
	replace := []string{
		"max_stagnation       = 20", "max_stagnation = 1",
		"species_elitism      = 2", "species_elitism = 0",
		"compatibility_threshold = 3.0", "compatibility_threshold = 1000",
	}

	config := testConfig(t, replace...)
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	rec := &recordingReporter{}
	pop.AddReporter(rec)

	_, err = pop.Run(context.Background(), constantFitness(1), 5)
	require.ErrorIs(t, err, ErrCompleteExtinction)
	assert.Contains(t, rec.events, "extinction")

	config = testConfig(t, append(replace, "reset_on_extinction   = False", "reset_on_extinction = True")...)
	pop, err = NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = pop.Run(context.Background(), constantFitness(1), 5)
	require.NoError(t, err)
	assert.Len(t, pop.Population, 50)
}

func TestRunHonoursContext(t *testing.T) {
	config := testConfig(t)
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pop.Run(ctx, evalXOR, 3)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pop.Generation)
}

func TestCheckpointRoundTripContinuesIdentically(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "neat.ini")
	text := testConfigText(t, "fitness_threshold     = 3.9", "fitness_threshold = 100")
	require.NoError(t, os.WriteFile(configPath, []byte(text), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	original, err := NewPopulation(config, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	_, err = original.Run(context.Background(), evalXOR, 3)
	require.NoError(t, err)

	path := filepath.Join(dir, "checkpoint-3")
	require.NoError(t, original.SaveCheckpoint(path))

	restored, err := LoadCheckpoint(path, configPath)
	require.NoError(t, err)
	assert.Equal(t, original.Generation, restored.Generation)
	assert.Equal(t, original.Config.Genome.NodeKeyIndex, restored.Config.Genome.NodeKeyIndex)
	assert.Equal(t, sortedPopulationKeys(original.Population), sortedPopulationKeys(restored.Population))
	assert.Equal(t, original.SpeciesSet.SortedKeys(), restored.SpeciesSet.SortedKeys())
	for sid, s := range restored.SpeciesSet.Species {
		for gid, g := range s.Members {
			assert.Same(t, restored.Population[gid], g, "species %d member %d is linked", sid, gid)
		}
	}

	_, err = original.Run(context.Background(), evalXOR, 2)
	require.NoError(t, err)
	_, err = restored.Run(context.Background(), evalXOR, 2)
	require.NoError(t, err)

	assert.Equal(t, sortedPopulationKeys(original.Population), sortedPopulationKeys(restored.Population))
	for gid, g := range original.Population {
		assert.Equal(t, g.String(), restored.Population[gid].String())
	}
	assert.Equal(t, original.BestGenome.Fitness, restored.BestGenome.Fitness)
}

func TestCheckpointer(t *testing.T) {
	dir := t.TempDir()
	config := testConfig(t, "fitness_threshold     = 3.9", "fitness_threshold = 100")
	pop, err := NewPopulation(config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	var logs bytes.Buffer
	pop.AddReporter(NewCheckpointer(pop, 2, filepath.Join(dir, "neat-checkpoint-"), testLogger(&logs)))
	_, err = pop.Run(context.Background(), evalXOR, 5)
	require.NoError(t, err)

	for _, name := range []string{"neat-checkpoint-1", "neat-checkpoint-3"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "neat-checkpoint-0"))
	assert.Contains(t, logs.String(), "Saving checkpoint")
}

func TestComputeSpawnAmounts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name     string
		adjusted []float64
		previous []int
		popSize  int
		minSize  int
	}{
		{"even", []float64{0.5, 0.5}, []int{25, 25}, 50, 2},
		{"skewed", []float64{1, 0.1, 0}, []int{10, 30, 10}, 50, 2},
		{"all zero", []float64{0, 0, 0}, []int{20, 20, 10}, 50, 1},
		{"growing population", []float64{0.3, 0.7}, []int{5, 5}, 40, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawn := computeSpawnAmounts(tt.adjusted, tt.previous, tt.popSize, tt.minSize, rng)
			total := 0
			for _, s := range spawn {
				assert.GreaterOrEqual(t, s, tt.minSize)
				total += s
			}
			assert.Equal(t, tt.popSize, total)
		})
	}
}
