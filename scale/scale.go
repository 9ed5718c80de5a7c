// Package scale reduces grayscale frames to as many representative scalars as
// a controller has connected inputs.
//
// A frame is halved recursively into one region per input identifier, each
// region is collapsed to its mean, and the means are laid out on a vector the
// size of the flattened frame at the positions the identifiers name:
//
//	ids := genome.ActiveInputKeys() // e.g. [-1, -7, -40], sorted descending
//	obs, err := scale.Scale(scale.Grayscale(img), ids)
//	// len(obs) == H*W; obs[0], obs[6] and obs[39] hold region means, the rest are 0
package scale

import "fmt"

// Scaler reduces frames to input vectors.
type Scaler struct {
	// Quantize truncates region means to 8-bit intensities before they are
	// emitted, matching controllers trained on uint8 averaged images.
	Quantize bool
}

// Scale reduces frame with a zero-valued Scaler.
func Scale(frame Frame, inputIDs []int) ([]float64, error) {
	return Scaler{}.Scale(frame, inputIDs)
}

// Scale returns a vector of frame.Len() values. With no identifiers it is a
// flattened copy of the frame. Otherwise the frame is partitioned into
// len(inputIDs) regions and, walking flattened positions i = 1..H*W, the mean
// of the next region is written where the next identifier equals -i; every
// other position is 0.
//
// inputIDs must be negative, unique and sorted descending, and no identifier
// may address a position past the end of the frame.
func (s Scaler) Scale(frame Frame, inputIDs []int) ([]float64, error) {
	if len(inputIDs) == 0 {
		return frame.Flatten(), nil
	}
	if err := validateInputIDs(inputIDs, frame.Len()); err != nil {
		return nil, err
	}

	regions, err := Partition(frame, len(inputIDs))
	if err != nil {
		return nil, fmt.Errorf("partition frame into %d regions: %w", len(inputIDs), err)
	}
	for i, r := range regions {
		regions[i] = s.Reduce(r)
	}

	out := make([]float64, frame.Len())
	next := 0
	for i := 1; i <= len(out) && next < len(inputIDs); i++ {
		if inputIDs[next] != -i {
			continue
		}
		out[i-1] = regions[next].At(0, 0)
		next++
	}
	return out, nil
}

// Reduce collapses a region to its mean the way Scale does, truncated to an
// 8-bit intensity when Quantize is set.
func (s Scaler) Reduce(r Region) Region {
	if s.Quantize {
		return reduceQuantized(r)
	}
	return Reduce(r)
}

// Mosaic partitions frame into count regions, reduces each and paints the
// means back at their positions: the frame a controller with count inputs
// is shown. A count of 0 returns the frame itself.
func (s Scaler) Mosaic(frame Frame, count int) (Frame, error) {
	if count == 0 {
		return frame, nil
	}
	regions, err := Partition(frame, count)
	if err != nil {
		return Frame{}, err
	}
	for i, r := range regions {
		regions[i] = s.Reduce(r)
	}
	h, w := frame.Dims()
	return Assemble(h, w, regions), nil
}

func validateInputIDs(ids []int, size int) error {
	for i, id := range ids {
		if id >= 0 {
			return fmt.Errorf("%w: identifier %d at index %d is not negative", ErrUnsortedInputs, id, i)
		}
		if i > 0 && id >= ids[i-1] {
			return fmt.Errorf("%w: %d follows %d at index %d", ErrUnsortedInputs, id, ids[i-1], i)
		}
		if -id > size {
			return fmt.Errorf("%w: identifier %d exceeds %d frame positions", ErrInputOutOfRange, id, size)
		}
	}
	return nil
}
