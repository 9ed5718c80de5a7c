package scale

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
)

// Luma weights applied to 8-bit RGB channels when building a grayscale Frame.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Frame is a single-channel intensity image backed by a dense matrix, one
// matrix row per image row. Functions in this package never modify a Frame
// they receive.
type Frame struct {
	m *mat.Dense
}

// NewFrame allocates a zero-valued Frame of the given shape.
func NewFrame(height, width int) Frame {
	if height < 1 || width < 1 {
		panic(fmt.Sprintf("scale: invalid frame shape %dx%d", height, width))
	}
	return Frame{m: mat.NewDense(height, width, nil)}
}

// FrameFrom wraps existing row-major data as a Frame without copying it.
func FrameFrom(height, width int, pix []float64) (Frame, error) {
	if height < 1 || width < 1 {
		return Frame{}, fmt.Errorf("invalid frame shape %dx%d", height, width)
	}
	if len(pix) != height*width {
		return Frame{}, fmt.Errorf("frame data has %d values, expected %d for %dx%d", len(pix), height*width, height, width)
	}
	return Frame{m: mat.NewDense(height, width, pix)}, nil
}

// Grayscale converts an image to a Frame using the standard luma weighting
// on 8-bit channel values.
func Grayscale(img image.Image) Frame {
	b := img.Bounds()
	f := NewFrame(b.Dy(), b.Dx())
	raw := f.m.RawMatrix()

	// Fast path for the renderer's output type.
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < raw.Rows; y++ {
			src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+raw.Cols*4]
			dst := raw.Data[y*raw.Stride : y*raw.Stride+raw.Cols]
			for x := range dst {
				p := src[x*4 : x*4+3]
				dst[x] = lumaR*float64(p[0]) + lumaG*float64(p[1]) + lumaB*float64(p[2])
			}
		}
		return f
	}

	for y := 0; y < raw.Rows; y++ {
		for x := 0; x < raw.Cols; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			f.m.Set(y, x, lumaR*float64(r>>8)+lumaG*float64(g>>8)+lumaB*float64(bl>>8))
		}
	}
	return f
}

// Dims returns the frame's height and width. The zero Frame is 0x0.
func (f Frame) Dims() (height, width int) {
	if f.m == nil {
		return 0, 0
	}
	return f.m.Dims()
}

func (f Frame) Height() int {
	h, _ := f.Dims()
	return h
}

func (f Frame) Width() int {
	_, w := f.Dims()
	return w
}

// At returns the intensity at row y, column x.
func (f Frame) At(y, x int) float64 {
	return f.m.At(y, x)
}

// Set writes the intensity at row y, column x.
func (f Frame) Set(y, x int, v float64) {
	f.m.Set(y, x, v)
}

// Len returns the number of scalar values in the frame.
func (f Frame) Len() int {
	h, w := f.Dims()
	return h * w
}

// Matrix exposes the frame's backing matrix. Writes through it change the frame.
func (f Frame) Matrix() *mat.Dense {
	return f.m
}

// Flatten returns a row-major copy of the frame's values.
func (f Frame) Flatten() []float64 {
	if f.m == nil {
		return []float64{}
	}
	return flatten(f.m)
}

// Region returns a view covering the whole frame.
func (f Frame) Region() Region {
	return Region{m: f.m}
}

// Assemble paints regions back into a zero Frame of the given shape, each at
// its origin offset. Pixels cropped away during partitioning stay zero.
func Assemble(height, width int, regions []Region) Frame {
	f := NewFrame(height, width)
	for _, r := range regions {
		if r.Y >= height || r.X >= width {
			continue
		}
		h, w := r.Dims()
		dst := f.m.Slice(r.Y, min(r.Y+h, height), r.X, min(r.X+w, width)).(*mat.Dense)
		dst.Copy(r.m)
	}
	return f
}

// flatten copies a matrix into a new row-major slice.
func flatten(m mat.Matrix) []float64 {
	h, w := m.Dims()
	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		mat.Row(out[y*w:(y+1)*w], y, m)
	}
	return out
}
