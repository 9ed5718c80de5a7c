// Package visualize plots the statistics a neat.StatisticsReporter collects.
package visualize

import (
	"errors"
	"fmt"

	"github.com/baldhumanity/neat-racing/neat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when no generation has been recorded yet.
var ErrNoData = errors.New("visualize: no generations recorded")

// Plot size used for saved figures.
const (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

// FitnessPlot draws best, mean and mean +/- one standard deviation fitness
// per generation.
func FitnessPlot(stats *neat.StatisticsReporter) (*plot.Plot, error) {
	mean := stats.FitnessMean()
	if len(mean) == 0 {
		return nil, ErrNoData
	}
	stdev := stats.FitnessStdev()

	best := make(plotter.XYs, len(stats.MostFitGenomes))
	for i, g := range stats.MostFitGenomes {
		best[i].X, best[i].Y = float64(i), g.Fitness
	}
	avg := make(plotter.XYs, len(mean))
	upper := make(plotter.XYs, len(mean))
	lower := make(plotter.XYs, len(mean))
	for i := range mean {
		x := float64(i)
		avg[i].X, avg[i].Y = x, mean[i]
		upper[i].X, upper[i].Y = x, mean[i]+stdev[i]
		lower[i].X, lower[i].Y = x, mean[i]-stdev[i]
	}

	p := plot.New()
	p.Title.Text = "Population's average and best fitness"
	p.X.Label.Text = "Generations"
	p.Y.Label.Text = "Fitness"
	if err := plotutil.AddLines(p,
		"best", best,
		"average", avg,
		"+1 sd", upper,
		"-1 sd", lower,
	); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// SpeciationPlot draws the size of every species per generation.
func SpeciationPlot(stats *neat.StatisticsReporter) (*plot.Plot, error) {
	sizes := stats.SpeciesSizes()
	if len(sizes) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Speciation"
	p.X.Label.Text = "Generations"
	p.Y.Label.Text = "Size per Species"
	for sid := range sizes[0] {
		pts := make(plotter.XYs, len(sizes))
		for gen, row := range sizes {
			pts[gen].X, pts[gen].Y = float64(gen), float64(row[sid])
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(sid)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("species %d", sid+1), line)
	}
	return p, nil
}

// SaveFitness writes FitnessPlot to path; the extension picks the format.
func SaveFitness(stats *neat.StatisticsReporter, path string) error {
	p, err := FitnessPlot(stats)
	if err != nil {
		return err
	}
	return p.Save(Width, Height, path)
}

// SaveSpeciation writes SpeciationPlot to path.
func SaveSpeciation(stats *neat.StatisticsReporter, path string) error {
	p, err := SpeciationPlot(stats)
	if err != nil {
		return err
	}
	return p.Save(Width, Height, path)
}
