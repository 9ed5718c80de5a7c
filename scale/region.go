package scale

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Region is a rectangular block of a Frame. It either borrows the parent
// frame's data through a matrix slice (a view) or owns a constant-valued
// block produced by Reduce.
type Region struct {
	Y int // Row offset of the top-left corner in the source frame
	X int // Column offset of the top-left corner in the source frame

	m     *mat.Dense
	owned bool
}

// Dims returns the region's height and width.
func (r Region) Dims() (height, width int) {
	return r.m.Dims()
}

func (r Region) Height() int {
	h, _ := r.m.Dims()
	return h
}

func (r Region) Width() int {
	_, w := r.m.Dims()
	return w
}

// At returns the value at row y, column x relative to the region's origin.
func (r Region) At(y, x int) float64 {
	return r.m.At(y, x)
}

// Len returns the number of elements covered by the region.
func (r Region) Len() int {
	h, w := r.m.Dims()
	return h * w
}

// Owned reports whether the region holds its own data rather than viewing a frame.
func (r Region) Owned() bool {
	return r.owned
}

// Matrix exposes the region's data as a read-only matrix.
func (r Region) Matrix() mat.Matrix {
	return r.m
}

// Values returns the region's elements in row-major order.
func (r Region) Values() []float64 {
	return flatten(r.m)
}

func (r Region) String() string {
	h, w := r.Dims()
	return fmt.Sprintf("Region(%dx%d @ %d,%d)", h, w, r.Y, r.X)
}

// sub returns a view of a sub-rectangle; offsets are relative to r.
func (r Region) sub(y, x, height, width int) Region {
	return Region{
		Y:     r.Y + y,
		X:     r.X + x,
		m:     r.m.Slice(y, y+height, x, x+width).(*mat.Dense),
		owned: r.owned,
	}
}

// even crops the trailing row and/or column so both dimensions are even.
// The cropped pixels are discarded for this region and its descendants.
// A dimension of 1 cannot be cropped without leaving an empty region.
func (r Region) even() (Region, error) {
	height, width := r.Dims()
	h, w := height-height%2, width-width%2
	if h == 0 || w == 0 {
		return Region{}, fmt.Errorf("%w: cannot crop %v to even dimensions", ErrRegionTooSmall, r)
	}
	if h == height && w == width {
		return r, nil
	}
	return r.sub(0, 0, h, w), nil
}

// halve splits an even-shaped region into two equal halves along its longer
// axis, or along the height when both sides are equal.
func (r Region) halve() (Region, Region) {
	h, w := r.Dims()
	if h >= w {
		return r.sub(0, 0, h/2, w), r.sub(h/2, 0, h/2, w)
	}
	return r.sub(0, 0, h, w/2), r.sub(0, w/2, h, w/2)
}
