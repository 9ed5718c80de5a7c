package neat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrCompleteExtinction is returned when every species has gone extinct and
// reset_on_extinction is disabled.
var ErrCompleteExtinction = errors.New("complete extinction")

// FitnessFunc evaluates a generation of genomes and sets their Fitness field.
// The genomes map maps genome key to the Genome object.
type FitnessFunc func(ctx context.Context, genomes map[int]*Genome) error

// Population holds the state of the NEAT evolutionary process.
type Population struct {
	Config       *Config
	Population   map[int]*Genome // Current generation of genomes (maps genome key -> genome)
	SpeciesSet   *SpeciesSet
	Reproduction *Reproduction
	Stagnation   *Stagnation
	Reporters    *ReporterSet
	Generation   int     // Index of the next generation to evaluate
	BestGenome   *Genome // Best genome found so far

	// Rand drives every random decision of the run; a fixed seed reproduces it.
	Rand *rand.Rand
}

// NewPopulation creates the initial generation and speciates it. A nil rng
// is seeded from the clock.
func NewPopulation(config *Config, rng *rand.Rand) (*Population, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	stagnation, err := NewStagnation(&config.Stagnation)
	if err != nil {
		return nil, fmt.Errorf("failed to create stagnation manager: %w", err)
	}

	reporters := &ReporterSet{}
	reproduction := NewReproduction(&config.Reproduction, stagnation, reporters)
	p := &Population{
		Config:       config,
		Population:   reproduction.CreateNewPopulation(&config.Genome, config.Neat.PopSize, rng),
		SpeciesSet:   NewSpeciesSet(&config.SpeciesSet, reporters),
		Reproduction: reproduction,
		Stagnation:   stagnation,
		Reporters:    reporters,
		Rand:         rng,
	}
	if err := p.SpeciesSet.Speciate(config, p.Population, p.Generation); err != nil {
		return nil, fmt.Errorf("initial speciation failed: %w", err)
	}
	return p, nil
}

// AddReporter registers a reporter for progress events.
func (p *Population) AddReporter(r Reporter) {
	p.Reporters.Add(r)
}

// RemoveReporter unregisters a reporter.
func (p *Population) RemoveReporter(r Reporter) {
	p.Reporters.Remove(r)
}

// RunGeneration evaluates the current generation, then breeds and speciates
// the next one. It returns the best genome when the fitness criterion meets
// fitness_threshold, otherwise nil.
func (p *Population) RunGeneration(ctx context.Context, fitnessFunc FitnessFunc) (*Genome, error) {
	p.Reporters.StartGeneration(p.Generation)

	if err := fitnessFunc(ctx, p.Population); err != nil {
		return nil, fmt.Errorf("fitness evaluation failed in generation %d: %w", p.Generation, err)
	}

	best := p.findBestGenome()
	p.Reporters.PostEvaluate(p.Config, p.Population, p.SpeciesSet, best)
	if p.BestGenome == nil || best.Fitness > p.BestGenome.Fitness {
		// Elites are re-evaluated in later generations; keep a snapshot.
		p.BestGenome = best.Copy()
	}

	if !p.Config.Neat.NoFitnessTermination {
		fitnesses := make([]float64, 0, len(p.Population))
		for _, key := range sortedPopulationKeys(p.Population) {
			fitnesses = append(fitnesses, p.Population[key].Fitness)
		}
		if p.Config.FitnessCriterionFunc()(fitnesses) >= p.Config.Neat.FitnessThreshold {
			p.Reporters.FoundSolution(p.Config, p.Generation, best)
			return best, nil
		}
	}

	p.Population = p.Reproduction.Reproduce(p.Config, p.SpeciesSet, p.Config.Neat.PopSize, p.Generation, p.Rand)
	if len(p.SpeciesSet.Species) == 0 {
		p.Reporters.CompleteExtinction()
		if !p.Config.Neat.ResetOnExtinction {
			return nil, fmt.Errorf("generation %d: %w", p.Generation, ErrCompleteExtinction)
		}
		p.Population = p.Reproduction.CreateNewPopulation(&p.Config.Genome, p.Config.Neat.PopSize, p.Rand)
	}
	p.Reporters.PostReproduction(p.Config, p.Population, p.SpeciesSet)

	if err := p.SpeciesSet.Speciate(p.Config, p.Population, p.Generation); err != nil {
		return nil, fmt.Errorf("speciation failed in generation %d: %w", p.Generation, err)
	}

	p.Generation++
	p.Reporters.EndGeneration(p.Config, p.Population, p.SpeciesSet)
	return nil, nil
}

// Run runs up to n generations, or until the fitness threshold is met when
// n <= 0. It returns the best genome seen. With no_fitness_termination set,
// reaching n generations counts as the solution.
func (p *Population) Run(ctx context.Context, fitnessFunc FitnessFunc, n int) (*Genome, error) {
	if p.Config.Neat.NoFitnessTermination && n <= 0 {
		return nil, errors.New("cannot have no generational limit with no fitness termination")
	}

	for k := 0; n <= 0 || k < n; k++ {
		if err := ctx.Err(); err != nil {
			return p.BestGenome, err
		}
		winner, err := p.RunGeneration(ctx, fitnessFunc)
		if err != nil {
			return p.BestGenome, err
		}
		if winner != nil {
			return winner, nil
		}
	}

	if p.Config.Neat.NoFitnessTermination && p.BestGenome != nil {
		p.Reporters.FoundSolution(p.Config, p.Generation, p.BestGenome)
	}
	return p.BestGenome, nil
}

// findBestGenome returns the fittest genome, preferring the lower key on ties.
func (p *Population) findBestGenome() *Genome {
	var best *Genome
	for _, key := range sortedPopulationKeys(p.Population) {
		g := p.Population[key]
		if best == nil || g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

func sortedPopulationKeys(population map[int]*Genome) []int {
	keys := make([]int, 0, len(population))
	for k := range population {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
