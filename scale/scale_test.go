package scale

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialFrame builds a frame whose values are 0, 1, 2, ... in row-major order.
func sequentialFrame(t *testing.T, height, width int) Frame {
	t.Helper()
	pix := make([]float64, height*width)
	for i := range pix {
		pix[i] = float64(i)
	}
	f, err := FrameFrom(height, width, pix)
	require.NoError(t, err)
	return f
}

func constantFrame(t *testing.T, height, width int, value float64) Frame {
	t.Helper()
	f := NewFrame(height, width)
	f.Matrix().Apply(func(_, _ int, _ float64) float64 { return value }, f.Matrix())
	return f
}

type shape struct{ y, x, h, w int }

func shapesOf(regions []Region) []shape {
	out := make([]shape, len(regions))
	for i, r := range regions {
		out[i] = shape{r.Y, r.X, r.Height(), r.Width()}
	}
	return out
}

func TestPartitionSingleRegionIsWholeFrame(t *testing.T) {
	f := sequentialFrame(t, 5, 3)

	regions, err := Partition(f, 1)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	assert.Equal(t, shape{0, 0, 5, 3}, shapesOf(regions)[0])
	assert.Equal(t, f.Flatten(), regions[0].Values())
	assert.False(t, regions[0].Owned())
}

func TestPartitionOrder(t *testing.T) {
	tests := []struct {
		name   string
		height int
		width  int
		count  int
		want   []shape
	}{
		{
			name: "square splits along height", height: 4, width: 4, count: 2,
			want: []shape{{0, 0, 2, 4}, {2, 0, 2, 4}},
		},
		{
			name: "odd height is cropped", height: 5, width: 4, count: 2,
			want: []shape{{0, 0, 2, 4}, {2, 0, 2, 4}},
		},
		{
			name: "wide frame splits along width", height: 2, width: 6, count: 2,
			want: []shape{{0, 0, 2, 3}, {0, 3, 2, 3}},
		},
		{
			name: "finer regions come before coarser leftovers", height: 4, width: 4, count: 3,
			want: []shape{{0, 0, 2, 2}, {0, 2, 2, 2}, {2, 0, 2, 4}},
		},
		{
			name: "second pass complete", height: 4, width: 4, count: 4,
			want: []shape{{0, 0, 2, 2}, {0, 2, 2, 2}, {2, 0, 2, 2}, {2, 2, 2, 2}},
		},
		{
			name: "third pass starts over the finest regions", height: 4, width: 4, count: 5,
			want: []shape{{0, 0, 1, 2}, {1, 0, 1, 2}, {0, 2, 2, 2}, {2, 0, 2, 2}, {2, 2, 2, 2}},
		},
		{
			name: "pending regions are cropped too", height: 7, width: 5, count: 3,
			want: []shape{{0, 0, 2, 2}, {0, 2, 2, 2}, {3, 0, 2, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions, err := Partition(sequentialFrame(t, tt.height, tt.width), tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.want, shapesOf(regions))
		})
	}
}

func TestPartitionRegionsViewFrameData(t *testing.T) {
	f := sequentialFrame(t, 4, 4)

	regions, err := Partition(f, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 4, 5}, regions[0].Values())
	assert.Equal(t, []float64{2, 3, 6, 7}, regions[1].Values())
	assert.Equal(t, []float64{8, 9, 10, 11, 12, 13, 14, 15}, regions[2].Values())
}

func TestPartitionRegionsShareFrameData(t *testing.T) {
	f := sequentialFrame(t, 4, 4)
	regions, err := Partition(f, 2)
	require.NoError(t, err)

	f.Set(3, 1, -1)
	assert.Equal(t, -1.0, regions[1].At(1, 1))
	assert.Equal(t, []float64{8, 9, 10, 11, 12, -1, 14, 15}, regions[1].Values())
}

func TestPartitionIsDisjointAndBounded(t *testing.T) {
	for _, dims := range [][2]int{{8, 8}, {16, 12}, {10, 14}, {7, 9}, {96, 96}} {
		f := sequentialFrame(t, dims[0], dims[1])
		for count := 1; count <= maxCount(dims); count++ {
			regions, err := Partition(f, count)
			require.NoError(t, err, "%dx%d count %d", dims[0], dims[1], count)
			require.Len(t, regions, count)

			covered := make([]int, f.Len())
			total := 0
			for _, r := range regions {
				require.GreaterOrEqual(t, r.Height(), 1)
				require.GreaterOrEqual(t, r.Width(), 1)
				total += r.Len()
				for y := 0; y < r.Height(); y++ {
					for x := 0; x < r.Width(); x++ {
						covered[(r.Y+y)*f.Width()+r.X+x]++
					}
				}
			}
			assert.LessOrEqual(t, total, f.Len())
			for i, c := range covered {
				require.LessOrEqual(t, c, 1, "pixel %d covered twice", i)
			}
		}
	}
}

func TestPartitionFullCoverageWhenEvenAtEverySplit(t *testing.T) {
	f := sequentialFrame(t, 16, 16)
	for _, count := range []int{2, 4, 8, 16, 32, 64} {
		regions, err := Partition(f, count)
		require.NoError(t, err)

		total := 0
		for _, r := range regions {
			total += r.Len()
		}
		assert.Equal(t, f.Len(), total, "count %d", count)
	}
}

func TestPartitionPreconditions(t *testing.T) {
	f := sequentialFrame(t, 2, 2)

	_, err := Partition(f, 0)
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = Partition(f, -3)
	assert.ErrorIs(t, err, ErrInvalidCount)

	// 2x2 halves into two 1x2 regions; a third region would need a 0x2 crop.
	_, err = Partition(f, 2)
	require.NoError(t, err)
	_, err = Partition(f, 3)
	assert.ErrorIs(t, err, ErrRegionTooSmall)

	_, err = Partition(sequentialFrame(t, 1, 1), 2)
	assert.ErrorIs(t, err, ErrRegionTooSmall)

	_, err = Partition(Frame{}, 1)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestReduce(t *testing.T) {
	f := sequentialFrame(t, 4, 4)
	regions, err := Partition(f, 3)
	require.NoError(t, err)

	reduced := Reduce(regions[1])
	assert.True(t, reduced.Owned())
	assert.Equal(t, shapesOf(regions[1:2]), shapesOf([]Region{reduced}))
	assert.Equal(t, []float64{4.5, 4.5, 4.5, 4.5}, reduced.Values())

	// The source region and frame are untouched.
	assert.Equal(t, []float64{2, 3, 6, 7}, regions[1].Values())
	assert.Equal(t, sequentialFrame(t, 4, 4).Flatten(), f.Flatten())
}

func TestReduceIsIdempotent(t *testing.T) {
	f := sequentialFrame(t, 6, 10)
	regions, err := Partition(f, 7)
	require.NoError(t, err)

	for _, r := range regions {
		once := Reduce(r)
		twice := Reduce(once)
		assert.Equal(t, once.Values(), twice.Values())
		assert.Equal(t, shapesOf([]Region{once}), shapesOf([]Region{twice}))
	}
}

func TestScaleWithoutInputsFlattensFrame(t *testing.T) {
	f := sequentialFrame(t, 3, 4)

	out, err := Scale(f, nil)
	require.NoError(t, err)
	assert.Equal(t, f.Flatten(), out)

	out[0] = 99
	assert.Equal(t, 0.0, f.At(0, 0), "output must be a copy")
}

func TestScaleConstantFrame(t *testing.T) {
	f := constantFrame(t, 4, 4, 8)

	out, err := Scale(f, []int{-1, -2})
	require.NoError(t, err)

	want := make([]float64, 16)
	want[0], want[1] = 8, 8
	assert.Equal(t, want, out)
}

func TestScalePlacesRegionMeansAtIdentifierPositions(t *testing.T) {
	f := sequentialFrame(t, 4, 4)

	out, err := Scale(f, []int{-1, -5, -16})
	require.NoError(t, err)
	require.Len(t, out, 16)

	want := make([]float64, 16)
	want[0] = 2.5   // mean of 0, 1, 4, 5
	want[4] = 4.5   // mean of 2, 3, 6, 7
	want[15] = 11.5 // mean of 8..15
	assert.Equal(t, want, out)
}

func TestScaleQuantize(t *testing.T) {
	f := sequentialFrame(t, 4, 4)

	out, err := Scaler{Quantize: true}.Scale(f, []int{-1, -5, -16})
	require.NoError(t, err)

	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 4.0, out[4])
	assert.Equal(t, 11.0, out[15])
}

func TestScalerReduceMatchesScale(t *testing.T) {
	f := sequentialFrame(t, 4, 4)
	regions, err := Partition(f, 3)
	require.NoError(t, err)

	quantized := Scaler{Quantize: true}.Reduce(regions[0])
	assert.Equal(t, []float64{2, 2, 2, 2}, quantized.Values())
	assert.Equal(t, Reduce(regions[0]).Values(), Scaler{}.Reduce(regions[0]).Values())
}

func TestMosaic(t *testing.T) {
	f := sequentialFrame(t, 4, 4)

	view, err := Scaler{}.Mosaic(f, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{
		2.5, 2.5, 4.5, 4.5,
		2.5, 2.5, 4.5, 4.5,
		11.5, 11.5, 11.5, 11.5,
		11.5, 11.5, 11.5, 11.5,
	}, view.Flatten())

	// The mosaic carries the values Scale emits, quantized or not.
	for _, s := range []Scaler{{}, {Quantize: true}} {
		view, err := s.Mosaic(f, 3)
		require.NoError(t, err)
		out, err := s.Scale(f, []int{-1, -5, -16})
		require.NoError(t, err)
		assert.Equal(t, out[0], view.At(0, 0))
		assert.Equal(t, out[4], view.At(0, 2))
		assert.Equal(t, out[15], view.At(2, 0))
	}

	same, err := Scaler{}.Mosaic(f, 0)
	require.NoError(t, err)
	assert.Equal(t, f.Flatten(), same.Flatten())

	_, err = Scaler{}.Mosaic(sequentialFrame(t, 2, 2), 3)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestScaleNonZeroPositions(t *testing.T) {
	f := constantFrame(t, 96, 96, 120)
	ids := []int{-3, -10, -11, -500, -4000, -9216}

	out, err := Scale(f, ids)
	require.NoError(t, err)
	require.Len(t, out, 96*96)

	expected := map[int]bool{}
	for _, id := range ids {
		expected[-id-1] = true
	}
	for i, v := range out {
		if expected[i] {
			assert.Equal(t, 120.0, v, "position %d", i)
		} else {
			assert.Zero(t, v, "position %d", i)
		}
	}
}

func TestScalePreconditions(t *testing.T) {
	f := sequentialFrame(t, 4, 4)

	tests := []struct {
		name string
		ids  []int
		want error
	}{
		{"ascending", []int{-2, -1}, ErrUnsortedInputs},
		{"duplicate", []int{-1, -1}, ErrUnsortedInputs},
		{"non-negative", []int{0}, ErrUnsortedInputs},
		{"positive", []int{3, -1}, ErrUnsortedInputs},
		{"past frame end", []int{-1, -17}, ErrInputOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Scale(f, tt.ids)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, out)
		})
	}

	_, err := Scale(sequentialFrame(t, 2, 2), []int{-1, -2, -3})
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestGrayscale(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgba.Set(0, 0, color.RGBA{R: 255, A: 255})
	rgba.Set(1, 0, color.RGBA{B: 255, A: 255})

	f := Grayscale(rgba)
	require.Equal(t, 1, f.Height())
	require.Equal(t, 2, f.Width())
	assert.InDelta(t, 0.299*255, f.At(0, 0), 1e-9)
	assert.InDelta(t, 0.114*255, f.At(0, 1), 1e-9)

	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range gray.Pix {
		gray.Pix[i] = 100
	}
	g := Grayscale(gray)
	require.Equal(t, 2, g.Height())
	require.Equal(t, 3, g.Width())
	for _, v := range g.Flatten() {
		assert.InDelta(t, 100, v, 1e-9)
	}
}

func TestAssembleRestoresCoveredPixels(t *testing.T) {
	f := sequentialFrame(t, 4, 4)
	regions, err := Partition(f, 3)
	require.NoError(t, err)

	assert.Equal(t, f.Flatten(), Assemble(4, 4, regions).Flatten())

	odd := sequentialFrame(t, 5, 5)
	regions, err = Partition(odd, 2)
	require.NoError(t, err)
	back := Assemble(5, 5, regions)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if y == 4 || x == 4 {
				assert.Zero(t, back.At(y, x), "cropped pixel %d,%d", y, x)
			} else {
				assert.Equal(t, odd.At(y, x), back.At(y, x))
			}
		}
	}
}

func TestFrameFromValidatesShape(t *testing.T) {
	_, err := FrameFrom(2, 2, make([]float64, 3))
	assert.Error(t, err)

	_, err = FrameFrom(0, 2, nil)
	assert.Error(t, err)
}

// maxCount keeps odd-sized frames below the count at which a 1-pixel
// dimension would need cropping.
func maxCount(dims [2]int) int {
	if dims[0]%2 != 0 || dims[1]%2 != 0 {
		return 16
	}
	return 24
}
