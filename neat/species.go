package neat

import (
	"fmt"
	"math"
	"sort"
)

// Species represents a group of genetically similar genomes.
type Species struct {
	Key             int             // Unique identifier for the species.
	Created         int             // Generation number when the species was created.
	LastImproved    int             // Last generation where fitness improved.
	Representative  *Genome         // The representative genome for this species.
	Members         map[int]*Genome // Genomes belonging to this species (maps genome key -> genome).
	Fitness         float64         // species_fitness_func over member fitnesses
	AdjustedFitness float64         // Fitness adjusted by sharing.
	FitnessHistory  []float64       // History of fitness values for stagnation detection.
}

// NewSpecies creates a new species.
func NewSpecies(key, generation int) *Species {
	return &Species{
		Key:            key,
		Created:        generation,
		LastImproved:   generation,
		Members:        make(map[int]*Genome),
		FitnessHistory: []float64{},
	}
}

// Update adjusts the species' representative and members.
func (s *Species) Update(representative *Genome, members map[int]*Genome) {
	s.Representative = representative
	s.Members = members
}

// GetFitnesses returns the fitness values of all members in member key order.
func (s *Species) GetFitnesses() []float64 {
	fitnesses := make([]float64, 0, len(s.Members))
	for _, key := range s.memberKeys() {
		fitnesses = append(fitnesses, s.Members[key].Fitness)
	}
	return fitnesses
}

func (s *Species) memberKeys() []int {
	keys := make([]int, 0, len(s.Members))
	for k := range s.Members {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// --------------------------- GenomeDistanceCache ---------------------------

type genomePair struct {
	a, b int
}

// GenomeDistanceCache stores calculated distances between genomes to avoid redundant computations.
type GenomeDistanceCache struct {
	Distances map[genomePair]float64
	Hits      int
	Misses    int
}

// NewGenomeDistanceCache creates a new distance cache.
func NewGenomeDistanceCache() *GenomeDistanceCache {
	return &GenomeDistanceCache{Distances: make(map[genomePair]float64)}
}

// Distance calculates or retrieves the distance between two genomes.
func (dc *GenomeDistanceCache) Distance(genome1, genome2 *Genome) float64 {
	key := genomePair{genome1.Key, genome2.Key}
	if key.a > key.b {
		key.a, key.b = key.b, key.a
	}
	if d, ok := dc.Distances[key]; ok {
		dc.Hits++
		return d
	}
	dc.Misses++
	d := genome1.Distance(genome2)
	dc.Distances[key] = d
	return d
}

// --------------------------- SpeciesSet ---------------------------

// SpeciesSet manages the collection of species within a population.
type SpeciesSet struct {
	Species         map[int]*Species // Map species key -> Species
	GenomeToSpecies map[int]int      // Map genome key -> species key
	Indexer         int              // Next species key (starts at 1)
	Config          *SpeciesSetConfig
	Reporters       *ReporterSet
}

// NewSpeciesSet creates a new species set manager.
func NewSpeciesSet(config *SpeciesSetConfig, reporters *ReporterSet) *SpeciesSet {
	return &SpeciesSet{
		Species:         make(map[int]*Species),
		GenomeToSpecies: make(map[int]int),
		Indexer:         1,
		Config:          config,
		Reporters:       reporters,
	}
}

// SortedKeys returns the species keys in ascending order.
func (ss *SpeciesSet) SortedKeys() []int {
	return sortedSpeciesKeys(ss.Species)
}

// Speciate partitions the population into species based on genetic distance.
// Each existing species first claims the unspeciated genome closest to its
// old representative; the remaining genomes, in key order, join the closest
// species within the compatibility threshold or found a new one.
func (ss *SpeciesSet) Speciate(config *Config, population map[int]*Genome, generation int) error {
	if len(population) == 0 {
		return fmt.Errorf("cannot speciate an empty population")
	}

	threshold := ss.Config.CompatibilityThreshold
	distances := NewGenomeDistanceCache()

	unspeciated := make(map[int]bool, len(population))
	for gid := range population {
		unspeciated[gid] = true
	}
	newRepresentatives := make(map[int]int) // species key -> genome key
	newMembers := make(map[int][]int)

	for _, sid := range ss.SortedKeys() {
		s := ss.Species[sid]
		if len(unspeciated) == 0 {
			break
		}
		if s.Representative == nil {
			return fmt.Errorf("species %d has no representative", sid)
		}
		bestGID, bestDist := -1, math.Inf(1)
		for _, gid := range sortedGenomeKeys(unspeciated) {
			d := distances.Distance(s.Representative, population[gid])
			if d < bestDist {
				bestGID, bestDist = gid, d
			}
		}
		newRepresentatives[sid] = bestGID
		newMembers[sid] = []int{bestGID}
		delete(unspeciated, bestGID)
	}

	for _, gid := range sortedGenomeKeys(unspeciated) {
		g := population[gid]
		bestSID, bestDist := -1, math.Inf(1)
		for _, sid := range sortedIntKeys(newRepresentatives) {
			d := distances.Distance(population[newRepresentatives[sid]], g)
			if d < threshold && d < bestDist {
				bestSID, bestDist = sid, d
			}
		}
		if bestSID != -1 {
			newMembers[bestSID] = append(newMembers[bestSID], gid)
			continue
		}
		sid := ss.Indexer
		ss.Indexer++
		newRepresentatives[sid] = gid
		newMembers[sid] = []int{gid}
	}

	ss.GenomeToSpecies = make(map[int]int, len(population))
	for sid, rid := range newRepresentatives {
		s, ok := ss.Species[sid]
		if !ok {
			s = NewSpecies(sid, generation)
			ss.Species[sid] = s
		}
		members := make(map[int]*Genome, len(newMembers[sid]))
		for _, gid := range newMembers[sid] {
			members[gid] = population[gid]
			ss.GenomeToSpecies[gid] = sid
		}
		s.Update(population[rid], members)
	}
	// Species that could not claim a representative have died out.
	for sid := range ss.Species {
		if _, ok := newRepresentatives[sid]; !ok {
			delete(ss.Species, sid)
		}
	}

	if len(distances.Distances) > 0 && ss.Reporters != nil {
		all := make([]float64, 0, len(distances.Distances))
		for _, d := range distances.Distances {
			all = append(all, d)
		}
		ss.Reporters.Info(fmt.Sprintf("Mean genetic distance %.3f, standard deviation %.3f", Mean(all), Stdev(all)))
	}
	return nil
}

// GetSpeciesID returns the species ID for a given genome ID.
func (ss *SpeciesSet) GetSpeciesID(genomeID int) (int, bool) {
	sid, exists := ss.GenomeToSpecies[genomeID]
	return sid, exists
}

// GetSpecies returns the Species object for a given genome ID.
func (ss *SpeciesSet) GetSpecies(genomeID int) (*Species, bool) {
	sid, exists := ss.GenomeToSpecies[genomeID]
	if !exists {
		return nil, false
	}
	s, exists := ss.Species[sid]
	return s, exists
}

func sortedGenomeKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedIntKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
