package neat

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Reproduction handles the creation of new genomes, either from scratch or through crossover and mutation.
type Reproduction struct {
	Config        *ReproductionConfig
	NextGenomeKey int           // Next genome key to hand out
	Ancestors     map[int][]int // Map genome key -> parent keys (for tracking lineage)
	Stagnation    *Stagnation
	Reporters     *ReporterSet
}

// NewReproduction creates a new reproduction manager.
func NewReproduction(config *ReproductionConfig, stagnation *Stagnation, reporters *ReporterSet) *Reproduction {
	return &Reproduction{
		Config:        config,
		NextGenomeKey: 1,
		Ancestors:     make(map[int][]int),
		Stagnation:    stagnation,
		Reporters:     reporters,
	}
}

func (r *Reproduction) getNextKey() int {
	key := r.NextGenomeKey
	r.NextGenomeKey++
	return key
}

// CreateNewPopulation creates popSize genomes with fresh structure.
func (r *Reproduction) CreateNewPopulation(genomeConfig *GenomeConfig, popSize int, rng *rand.Rand) map[int]*Genome {
	newGenomes := make(map[int]*Genome, popSize)
	for i := 0; i < popSize; i++ {
		key := r.getNextKey()
		g := NewGenome(key, genomeConfig)
		g.ConfigureNew(rng)
		newGenomes[key] = g
		r.Ancestors[key] = []int{}
	}
	return newGenomes
}

// Reproduce creates the next generation from the current species. Stagnant
// species are dropped; the rest receive offspring in proportion to their
// adjusted fitness. Species that survive are left with their representative
// only, ready for the next speciation. An empty result means every species
// went extinct.
func (r *Reproduction) Reproduce(config *Config, speciesSet *SpeciesSet, popSize int, generation int, rng *rand.Rand) map[int]*Genome {
	var allFitnesses []float64
	var remaining []*Species
	for _, info := range r.Stagnation.Update(speciesSet, generation) {
		if info.IsStagnant {
			r.Reporters.SpeciesStagnant(info.SpeciesID, info.Species)
			continue
		}
		allFitnesses = append(allFitnesses, info.Species.GetFitnesses()...)
		remaining = append(remaining, info.Species)
	}

	if len(remaining) == 0 {
		speciesSet.Species = make(map[int]*Species)
		return make(map[int]*Genome)
	}

	// Fitness sharing: each species' mean member fitness, normalised into [0, 1].
	minFitness := MinFloat(allFitnesses)
	maxFitness := MaxFloat(allFitnesses)
	fitnessRange := math.Max(1.0, maxFitness-minFitness)

	adjustedFitnesses := make([]float64, len(remaining))
	previousSizes := make([]int, len(remaining))
	for i, sp := range remaining {
		sp.AdjustedFitness = (Mean(sp.GetFitnesses()) - minFitness) / fitnessRange
		adjustedFitnesses[i] = sp.AdjustedFitness
		previousSizes[i] = len(sp.Members)
	}
	r.Reporters.Info(fmt.Sprintf("Average adjusted fitness: %.3f", Mean(adjustedFitnesses)))

	minSpeciesSize := max(r.Config.MinSpeciesSize, r.Config.Elitism)
	spawnAmounts := computeSpawnAmounts(adjustedFitnesses, previousSizes, popSize, minSpeciesSize, rng)

	newPopulation := make(map[int]*Genome, popSize)
	speciesSet.Species = make(map[int]*Species, len(remaining))
	for i, sp := range remaining {
		spawn := max(spawnAmounts[i], r.Config.Elitism)

		oldMembers := make([]*Genome, 0, len(sp.Members))
		for _, key := range sp.memberKeys() {
			oldMembers = append(oldMembers, sp.Members[key])
		}
		sort.SliceStable(oldMembers, func(a, b int) bool {
			return oldMembers[a].Fitness > oldMembers[b].Fitness
		})
		sp.Members = make(map[int]*Genome)
		speciesSet.Species[sp.Key] = sp

		for j := 0; j < r.Config.Elitism && j < len(oldMembers); j++ {
			elite := oldMembers[j]
			newPopulation[elite.Key] = elite
			spawn--
		}
		if spawn <= 0 {
			continue
		}

		cutoff := int(math.Ceil(r.Config.SurvivalThreshold * float64(len(oldMembers))))
		cutoff = min(max(cutoff, 2), len(oldMembers))
		parents := oldMembers[:cutoff]

		for ; spawn > 0; spawn-- {
			parent1 := parents[rng.Intn(len(parents))]
			parent2 := parents[rng.Intn(len(parents))]

			childKey := r.getNextKey()
			child := NewGenome(childKey, &config.Genome)
			child.ConfigureCrossover(parent1, parent2, rng)
			child.Mutate(rng)

			newPopulation[childKey] = child
			r.Ancestors[childKey] = []int{parent1.Key, parent2.Key}
		}
	}
	return newPopulation
}

// computeSpawnAmounts moves each species halfway from its previous size
// toward its fitness-proportional share, then normalises the total to popSize.
func computeSpawnAmounts(adjustedFitnesses []float64, previousSizes []int, popSize, minSpeciesSize int, rng *rand.Rand) []int {
	afSum := Sum(adjustedFitnesses)
	spawnAmounts := make([]int, len(adjustedFitnesses))
	for i, af := range adjustedFitnesses {
		s := float64(minSpeciesSize)
		if afSum > 0 {
			s = math.Max(s, af/afSum*float64(popSize))
		}
		ps := previousSizes[i]
		d := (s - float64(ps)) * 0.5
		c := int(math.Round(d))
		spawn := ps
		switch {
		case c != 0:
			spawn += c
		case d > 0:
			spawn++
		case d < 0:
			spawn--
		}
		spawnAmounts[i] = spawn
	}

	total := 0
	for _, sa := range spawnAmounts {
		total += sa
	}
	if total <= 0 {
		for i := range spawnAmounts {
			spawnAmounts[i] = minSpeciesSize
		}
		return spawnAmounts
	}

	norm := float64(popSize) / float64(total)
	current := 0
	for i, sa := range spawnAmounts {
		spawnAmounts[i] = max(minSpeciesSize, int(math.Round(float64(sa)*norm)))
		current += spawnAmounts[i]
	}

	// Rounding can leave the total off by a few; nudge random species
	// without going below the minimum size.
	diff := popSize - current
	indices := rng.Perm(len(spawnAmounts))
	for pass := 0; diff != 0 && pass < popSize; pass++ {
		changed := false
		for _, idx := range indices {
			if diff == 0 {
				break
			}
			if diff > 0 {
				spawnAmounts[idx]++
				diff--
				changed = true
			} else if spawnAmounts[idx] > minSpeciesSize {
				spawnAmounts[idx]--
				diff++
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return spawnAmounts
}
