package neat

import (
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

// Reporter receives progress events from a Population. Embed BaseReporter
// to implement only the events of interest.
type Reporter interface {
	StartGeneration(generation int)
	PostEvaluate(config *Config, population map[int]*Genome, species *SpeciesSet, best *Genome)
	PostReproduction(config *Config, population map[int]*Genome, species *SpeciesSet)
	EndGeneration(config *Config, population map[int]*Genome, species *SpeciesSet)
	CompleteExtinction()
	FoundSolution(config *Config, generation int, best *Genome)
	SpeciesStagnant(speciesID int, species *Species)
	Info(msg string)
}

// BaseReporter implements every Reporter event as a no-op.
type BaseReporter struct{}

func (BaseReporter) StartGeneration(int) {}
func (BaseReporter) PostEvaluate(*Config, map[int]*Genome, *SpeciesSet, *Genome) {}
func (BaseReporter) PostReproduction(*Config, map[int]*Genome, *SpeciesSet) {}
func (BaseReporter) EndGeneration(*Config, map[int]*Genome, *SpeciesSet) {}
func (BaseReporter) CompleteExtinction() {}
func (BaseReporter) FoundSolution(*Config, int, *Genome) {}
func (BaseReporter) SpeciesStagnant(int, *Species) {}
func (BaseReporter) Info(string) {}

// ReporterSet fans events out to its reporters in registration order.
// The zero value is an empty set.
type ReporterSet struct {
	reporters []Reporter
}

// Add registers a reporter.
func (rs *ReporterSet) Add(r Reporter) {
	rs.reporters = append(rs.reporters, r)
}

// Remove unregisters a reporter previously added.
func (rs *ReporterSet) Remove(r Reporter) {
	for i, existing := range rs.reporters {
		if existing == r {
			rs.reporters = append(rs.reporters[:i], rs.reporters[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered reporters.
func (rs *ReporterSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.reporters)
}

func (rs *ReporterSet) StartGeneration(generation int) {
	for _, r := range rs.reporters {
		r.StartGeneration(generation)
	}
}

func (rs *ReporterSet) PostEvaluate(config *Config, population map[int]*Genome, species *SpeciesSet, best *Genome) {
	for _, r := range rs.reporters {
		r.PostEvaluate(config, population, species, best)
	}
}

func (rs *ReporterSet) PostReproduction(config *Config, population map[int]*Genome, species *SpeciesSet) {
	for _, r := range rs.reporters {
		r.PostReproduction(config, population, species)
	}
}

func (rs *ReporterSet) EndGeneration(config *Config, population map[int]*Genome, species *SpeciesSet) {
	for _, r := range rs.reporters {
		r.EndGeneration(config, population, species)
	}
}

func (rs *ReporterSet) CompleteExtinction() {
	for _, r := range rs.reporters {
		r.CompleteExtinction()
	}
}

func (rs *ReporterSet) FoundSolution(config *Config, generation int, best *Genome) {
	for _, r := range rs.reporters {
		r.FoundSolution(config, generation, best)
	}
}

func (rs *ReporterSet) SpeciesStagnant(speciesID int, species *Species) {
	for _, r := range rs.reporters {
		r.SpeciesStagnant(speciesID, species)
	}
}

func (rs *ReporterSet) Info(msg string) {
	for _, r := range rs.reporters {
		r.Info(msg)
	}
}

// --------------------------- StdOutReporter ---------------------------

// StdOutReporter logs a summary of each generation, optionally with a
// per-species table.
type StdOutReporter struct {
	Logger            *log.Logger
	ShowSpeciesDetail bool

	generation      int
	generationStart time.Time
	generationTimes []time.Duration
	numExtinctions  int
}

// NewStdOutReporter creates a reporter writing to logger, or to stdout when logger is nil.
func NewStdOutReporter(showSpeciesDetail bool, logger *log.Logger) *StdOutReporter {
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	return &StdOutReporter{Logger: logger, ShowSpeciesDetail: showSpeciesDetail}
}

func (r *StdOutReporter) StartGeneration(generation int) {
	r.generation = generation
	r.generationStart = time.Now()
	r.Logger.Printf("\n ****** Running generation %d ****** \n", generation)
}

func (r *StdOutReporter) EndGeneration(config *Config, population map[int]*Genome, species *SpeciesSet) {
	ns := len(species.Species)
	r.Logger.Printf("Population of %d members in %d species", len(population), ns)
	if r.ShowSpeciesDetail && ns > 0 {
		r.Logger.Printf("   ID   age  size   fitness   adj fit  stag")
		r.Logger.Printf("  ====  ===  ====  =========  =======  ====")
		for _, sid := range species.SortedKeys() {
			s := species.Species[sid]
			fitness, adjusted := "--", "--"
			if len(s.FitnessHistory) > 0 {
				fitness = fmt.Sprintf("%.3g", s.Fitness)
				adjusted = fmt.Sprintf("%.3f", s.AdjustedFitness)
			}
			r.Logger.Printf("  %4d  %3d  %4d  %9s  %7s  %4d",
				sid, r.generation-s.Created, len(s.Members), fitness, adjusted, r.generation-s.LastImproved)
		}
	}
	if r.numExtinctions > 0 {
		r.Logger.Printf("Total extinctions: %d", r.numExtinctions)
	}

	elapsed := time.Since(r.generationStart)
	r.generationTimes = append(r.generationTimes, elapsed)
	if len(r.generationTimes) > 10 {
		r.generationTimes = r.generationTimes[1:]
	}
	var total time.Duration
	for _, d := range r.generationTimes {
		total += d
	}
	if len(r.generationTimes) > 1 {
		avg := total / time.Duration(len(r.generationTimes))
		r.Logger.Printf("Generation time: %.3f sec (%.3f average)", elapsed.Seconds(), avg.Seconds())
	} else {
		r.Logger.Printf("Generation time: %.3f sec", elapsed.Seconds())
	}
}

func (r *StdOutReporter) PostEvaluate(config *Config, population map[int]*Genome, species *SpeciesSet, best *Genome) {
	fitnesses := make([]float64, 0, len(population))
	for _, g := range population {
		fitnesses = append(fitnesses, g.Fitness)
	}
	r.Logger.Printf("Population's average fitness: %.5f stdev: %.5f", Mean(fitnesses), Stdev(fitnesses))
	if best == nil {
		return
	}
	nodes, conns := best.Size()
	sid, _ := species.GetSpeciesID(best.Key)
	r.Logger.Printf("Best fitness: %.5f - size: (%d, %d) - species %d - id %d", best.Fitness, nodes, conns, sid, best.Key)
}

func (r *StdOutReporter) PostReproduction(*Config, map[int]*Genome, *SpeciesSet) {}

func (r *StdOutReporter) CompleteExtinction() {
	r.numExtinctions++
	r.Logger.Printf("All species extinct.")
}

func (r *StdOutReporter) FoundSolution(config *Config, generation int, best *Genome) {
	nodes, conns := best.Size()
	r.Logger.Printf("\nBest individual in generation %d meets fitness threshold - complexity: (%d, %d)", generation, nodes, conns)
}

func (r *StdOutReporter) SpeciesStagnant(speciesID int, species *Species) {
	if r.ShowSpeciesDetail {
		r.Logger.Printf("\nSpecies %d with %d members is stagnated: removing it", speciesID, len(species.Members))
	}
}

func (r *StdOutReporter) Info(msg string) {
	r.Logger.Print(msg)
}

// sortedSpeciesKeys is shared by reporters that print species in key order.
func sortedSpeciesKeys(species map[int]*Species) []int {
	keys := make([]int, 0, len(species))
	for k := range species {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
