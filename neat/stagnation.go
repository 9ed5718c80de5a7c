package neat

import (
	"fmt"
	"math"
	"sort"
)

// Stagnation manages the detection of stagnant species.
type Stagnation struct {
	Config             *StagnationConfig
	SpeciesFitnessFunc func([]float64) float64
}

// NewStagnation creates a new stagnation manager.
func NewStagnation(config *StagnationConfig) (*Stagnation, error) {
	fn, ok := StatFunctions[config.SpeciesFitnessFunc]
	if !ok {
		return nil, fmt.Errorf("invalid species_fitness_func in config: %s", config.SpeciesFitnessFunc)
	}
	return &Stagnation{
		Config:             config,
		SpeciesFitnessFunc: fn,
	}, nil
}

// StagnationInfo holds the results of the stagnation update for a single species.
type StagnationInfo struct {
	SpeciesID  int
	Species    *Species
	IsStagnant bool
}

// Update refreshes each species' fitness history and reports which species
// are stagnant, ordered from least to most fit. A species is stagnant once it
// has gone max_stagnation generations without improving, unless it is one of
// the species_elitism fittest or marking it would leave no more than
// species_elitism species alive.
func (s *Stagnation) Update(speciesSet *SpeciesSet, generation int) []StagnationInfo {
	speciesData := make([]*Species, 0, len(speciesSet.Species))
	for _, sid := range speciesSet.SortedKeys() {
		sp := speciesSet.Species[sid]
		previous := math.Inf(-1)
		if len(sp.FitnessHistory) > 0 {
			previous = MaxFloat(sp.FitnessHistory)
		}

		if len(sp.Members) == 0 {
			sp.Fitness = math.Inf(-1)
		} else {
			sp.Fitness = s.SpeciesFitnessFunc(sp.GetFitnesses())
		}
		sp.FitnessHistory = append(sp.FitnessHistory, sp.Fitness)
		sp.AdjustedFitness = 0
		if sp.Fitness > previous {
			sp.LastImproved = generation
		}
		speciesData = append(speciesData, sp)
	}

	sort.SliceStable(speciesData, func(i, j int) bool {
		return speciesData[i].Fitness < speciesData[j].Fitness
	})

	result := make([]StagnationInfo, len(speciesData))
	numNonStagnant := len(speciesData)
	for i, sp := range speciesData {
		isStagnant := false
		if numNonStagnant > s.Config.SpeciesElitism {
			isStagnant = generation-sp.LastImproved >= s.Config.MaxStagnation
		}
		if len(speciesData)-i <= s.Config.SpeciesElitism {
			isStagnant = false
		}
		if isStagnant {
			numNonStagnant--
		}
		result[i] = StagnationInfo{SpeciesID: sp.Key, Species: sp, IsStagnant: isStagnant}
	}
	return result
}
