package neat

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// StatisticsReporter keeps per-generation fitness statistics and a copy of
// each generation's best genome.
type StatisticsReporter struct {
	BaseReporter
	MostFitGenomes []*Genome
	// GenerationStatistics holds, per generation, species key -> member fitnesses.
	GenerationStatistics []map[int][]float64
}

// NewStatisticsReporter creates an empty statistics collector.
func NewStatisticsReporter() *StatisticsReporter {
	return &StatisticsReporter{}
}

func (sr *StatisticsReporter) PostEvaluate(config *Config, population map[int]*Genome, species *SpeciesSet, best *Genome) {
	if best != nil {
		sr.MostFitGenomes = append(sr.MostFitGenomes, best.Copy())
	}
	stats := make(map[int][]float64, len(species.Species))
	for sid, s := range species.Species {
		stats[sid] = s.GetFitnesses()
	}
	sr.GenerationStatistics = append(sr.GenerationStatistics, stats)
}

// fitnessStat applies f to each generation's fitness values.
func (sr *StatisticsReporter) fitnessStat(f func([]float64) float64) []float64 {
	out := make([]float64, 0, len(sr.GenerationStatistics))
	for _, stats := range sr.GenerationStatistics {
		var scores []float64
		for _, sid := range sortedFitnessKeys(stats) {
			scores = append(scores, stats[sid]...)
		}
		out = append(out, f(scores))
	}
	return out
}

// FitnessMean returns the mean population fitness of each generation.
func (sr *StatisticsReporter) FitnessMean() []float64 { return sr.fitnessStat(Mean) }

// FitnessStdev returns the fitness standard deviation of each generation.
func (sr *StatisticsReporter) FitnessStdev() []float64 { return sr.fitnessStat(Stdev) }

// FitnessMedian returns the median population fitness of each generation.
func (sr *StatisticsReporter) FitnessMedian() []float64 { return sr.fitnessStat(Median) }

// BestGenome returns the fittest genome recorded, or nil before the first evaluation.
func (sr *StatisticsReporter) BestGenome() *Genome {
	best := sr.BestGenomes(1)
	if len(best) == 0 {
		return nil
	}
	return best[0]
}

// BestGenomes returns up to n distinct recorded genomes, fittest first.
func (sr *StatisticsReporter) BestGenomes(n int) []*Genome {
	byKey := make(map[int]*Genome)
	for _, g := range sr.MostFitGenomes {
		if prev, ok := byKey[g.Key]; !ok || g.Fitness > prev.Fitness {
			byKey[g.Key] = g
		}
	}
	genomes := make([]*Genome, 0, len(byKey))
	for _, g := range byKey {
		genomes = append(genomes, g)
	}
	sort.Slice(genomes, func(i, j int) bool {
		if genomes[i].Fitness != genomes[j].Fitness {
			return genomes[i].Fitness > genomes[j].Fitness
		}
		return genomes[i].Key < genomes[j].Key
	})
	if n < len(genomes) {
		genomes = genomes[:n]
	}
	return genomes
}

// SpeciesSizes returns, per generation, the member count of every species
// that ever existed, indexed by species key - 1.
func (sr *StatisticsReporter) SpeciesSizes() [][]int {
	maxKey := sr.maxSpeciesKey()
	out := make([][]int, 0, len(sr.GenerationStatistics))
	for _, stats := range sr.GenerationStatistics {
		row := make([]int, maxKey)
		for sid, fitnesses := range stats {
			row[sid-1] = len(fitnesses)
		}
		out = append(out, row)
	}
	return out
}

func (sr *StatisticsReporter) maxSpeciesKey() int {
	maxKey := 0
	for _, stats := range sr.GenerationStatistics {
		for sid := range stats {
			maxKey = max(maxKey, sid)
		}
	}
	return maxKey
}

// SaveGenomeFitness writes one "best,mean" row per generation.
func (sr *StatisticsReporter) SaveGenomeFitness(w io.Writer) error {
	cw := csv.NewWriter(w)
	means := sr.FitnessMean()
	for i, best := range sr.MostFitGenomes {
		if i >= len(means) {
			break
		}
		row := []string{formatFloat(best.Fitness), formatFloat(means[i])}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write fitness row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveSpeciesCount writes the species size table, one row per generation.
func (sr *StatisticsReporter) SaveSpeciesCount(w io.Writer) error {
	cw := csv.NewWriter(w)
	for i, sizes := range sr.SpeciesSizes() {
		row := make([]string, len(sizes))
		for j, n := range sizes {
			row[j] = strconv.Itoa(n)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write species row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedFitnessKeys(m map[int][]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
