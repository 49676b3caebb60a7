package model

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Normalize swaps the endpoints when they arrive inverted.
func (r BlockRange) Normalize() BlockRange {
	if r.From > r.To {
		return BlockRange{From: r.To, To: r.From}
	}
	return r
}

// Span returns the number of blocks covered by the range.
func (r BlockRange) Span() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Halves splits the range at its midpoint into two non-overlapping halves.
// The range must cover at least two blocks.
func (r BlockRange) Halves() (BlockRange, BlockRange, error) {
	if r.To <= r.From {
		return BlockRange{}, BlockRange{}, fmt.Errorf("range [%d, %d] cannot be split", r.From, r.To)
	}
	mid := r.From + (r.To-r.From)/2
	return BlockRange{From: r.From, To: mid}, BlockRange{From: mid + 1, To: r.To}, nil
}

// BackwardRanges walks back from tip in chunks of chunkSize blocks,
// newest chunk first, producing at most maxChunks ranges. The final chunk
// is clamped at block zero.
func BackwardRanges(tip, chunkSize uint64, maxChunks int) ([]BlockRange, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if maxChunks <= 0 {
		return nil, fmt.Errorf("max chunks must be greater than zero")
	}

	ranges := make([]BlockRange, 0, maxChunks)
	end := tip
	for len(ranges) < maxChunks {
		var start uint64
		if end >= chunkSize {
			start = end - chunkSize + 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if start == 0 {
			break
		}
		end = start - 1
	}

	return ranges, nil
}
