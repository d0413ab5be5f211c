package batch

import "math"

// Sub-chunk sizing constants.
const (
	// MinSubChunkSize is the additive floor of the sizing formula.
	MinSubChunkSize = 50

	// delta is the over-subscription factor; work is sized for
	// parallelism*(1+delta) shares so early finishers can pick up more.
	delta = 0.5
)

// Splitter sizes sub-chunks. The zero value uses MinSubChunkSize.
type Splitter struct {
	// MinSubChunk overrides MinSubChunkSize when positive.
	MinSubChunk int
}

// NextSubChunkSize returns the size of the next sub-chunk using the default
// Splitter.
func NextSubChunkSize(remaining, parallelism, activeWorkers, bufferSize int) int {
	return Splitter{}.Next(remaining, parallelism, activeWorkers, bufferSize)
}

// MaxSubChunkSize returns floor(bufferSize / (2*parallelism)), at least 1.
func MaxSubChunkSize(bufferSize, parallelism int) int {
	if parallelism < 1 {
		parallelism = 1
	}
	m := bufferSize / (2 * parallelism)
	if m < 1 {
		return 1
	}
	return m
}

// Next computes floor(remaining/(parallelism*1.5) + min) + 1 clamped to
// [1, min(remaining, MaxSubChunkSize)]. activeWorkers does not influence the
// result. It returns 0 only when remaining is 0.
func (s Splitter) Next(remaining, parallelism, _ /* activeWorkers */, bufferSize int) int {
	if remaining <= 0 {
		return 0
	}
	if parallelism < 1 {
		parallelism = 1
	}
	minSize := s.MinSubChunk
	if minSize <= 0 {
		minSize = MinSubChunkSize
	}

	share := float64(remaining) / (float64(parallelism) * (1 + delta))
	size := int(math.Floor(share+float64(minSize))) + 1

	upper := min(remaining, MaxSubChunkSize(bufferSize, parallelism))
	return max(1, min(size, upper))
}

// Plan returns the sub-chunk sizes a dispatch of total records would use, in
// spawn order.
func (s Splitter) Plan(total, parallelism, bufferSize int) []int {
	var sizes []int
	for remaining := total; remaining > 0; {
		n := s.Next(remaining, parallelism, 0, bufferSize)
		sizes = append(sizes, n)
		remaining -= n
	}
	return sizes
}

// Plan is Splitter.Plan with the default Splitter.
func Plan(total, parallelism, bufferSize int) []int {
	return Splitter{}.Plan(total, parallelism, bufferSize)
}
