package progress

import (
	"sort"
	"time"

	"github.com/baldhumanity/neat-racing/neat"
)

// Reporter is a neat.Reporter that publishes a Snapshot to its hub at the
// end of every generation, and once more when a solution is found.
type Reporter struct {
	neat.BaseReporter
	Hub *Hub

	start   time.Time
	current Snapshot
}

func NewReporter(hub *Hub) *Reporter {
	return &Reporter{Hub: hub}
}

func (r *Reporter) StartGeneration(generation int) {
	r.start = time.Now()
	r.current = Snapshot{Generation: generation}
}

func (r *Reporter) PostEvaluate(_ *neat.Config, population map[int]*neat.Genome, species *neat.SpeciesSet, best *neat.Genome) {
	fitnesses := make([]float64, 0, len(population))
	for _, g := range population {
		fitnesses = append(fitnesses, g.Fitness)
	}
	sort.Float64s(fitnesses)
	r.current.MeanFitness = neat.Mean(fitnesses)
	r.current.StdevFitness = neat.Stdev(fitnesses)
	r.current.PopulationSize = len(population)
	if species != nil {
		r.current.Species = len(species.Species)
	}
	if best != nil {
		r.current.BestFitness = best.Fitness
		r.current.BestGenome = best.Key
	}
}

func (r *Reporter) EndGeneration(_ *neat.Config, _ map[int]*neat.Genome, species *neat.SpeciesSet) {
	r.current.Species = len(species.Species)
	r.publish()
}

func (r *Reporter) FoundSolution(_ *neat.Config, _ int, best *neat.Genome) {
	r.current.Solved = true
	if best != nil {
		r.current.BestFitness = best.Fitness
		r.current.BestGenome = best.Key
	}
	r.publish()
}

func (r *Reporter) publish() {
	r.current.ElapsedMillis = time.Since(r.start).Milliseconds()
	r.Hub.Publish(r.current)
}
