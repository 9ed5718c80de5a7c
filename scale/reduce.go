package scale

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Reduce returns a region of identical shape and origin whose every element
// is the arithmetic mean of r. The input region is left untouched.
func Reduce(r Region) Region {
	return broadcast(r, mean(r))
}

// reduceQuantized behaves like Reduce but truncates the mean to an 8-bit
// intensity, as images stored with uint8 pixels would.
func reduceQuantized(r Region) Region {
	return broadcast(r, min(max(math.Trunc(mean(r)), 0), 255))
}

func mean(r Region) float64 {
	return mat.Sum(r.m) / float64(r.Len())
}

func broadcast(r Region, value float64) Region {
	m := mat.NewDense(r.Height(), r.Width(), nil)
	m.Apply(func(_, _ int, _ float64) float64 { return value }, m)
	return Region{Y: r.Y, X: r.X, m: m, owned: true}
}
