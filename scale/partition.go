package scale

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCount is returned when fewer than one region is requested.
	ErrInvalidCount = errors.New("region count must be at least 1")
	// ErrRegionTooSmall is returned when the requested count would require
	// splitting a region with a dimension of 1.
	ErrRegionTooSmall = errors.New("region too small to split")
	// ErrUnsortedInputs is returned when input identifiers are not negative,
	// unique and sorted in descending order.
	ErrUnsortedInputs = errors.New("input identifiers must be negative, unique and sorted descending")
	// ErrInputOutOfRange is returned when an input identifier addresses a
	// position beyond the flattened frame.
	ErrInputOutOfRange = errors.New("input identifier out of frame range")
)

// Partition divides a frame into exactly count regions by repeated halving.
//
// Regions waiting to be split sit in a pending queue, halves produced in the
// current pass in a done queue. Each of the count-1 steps crops every pending
// region to even dimensions, halves the head along its longer axis (height on
// ties) and appends both halves to done. When pending runs dry the done queue
// becomes the next, finer pass. The result is done followed by whatever is
// still pending, so finer regions come first.
//
// Cropping drops the trailing row or column of odd-sized regions, so the
// regions cover the frame except for those discarded pixels.
func Partition(frame Frame, count int) ([]Region, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	if frame.Len() == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrRegionTooSmall)
	}

	pending := []Region{frame.Region()}
	done := make([]Region, 0, count)

	for split := 0; split < count-1; split++ {
		if len(pending) == 0 {
			pending, done = done, make([]Region, 0, count)
		}

		for i, r := range pending {
			cropped, err := r.even()
			if err != nil {
				return nil, fmt.Errorf("split %d of %d: %w", split+1, count-1, err)
			}
			pending[i] = cropped
		}

		first, second := pending[0].halve()
		done = append(done, first, second)
		pending = pending[1:]
	}

	return append(done, pending...), nil
}
