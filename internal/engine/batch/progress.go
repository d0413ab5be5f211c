package batch

import (
	"sync"
	"time"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks records and chunks pushed through a Processor.
// TotalRecords is zero when the source length is not known up front.
type Progress struct {
	// TotalRecords is the expected number of records, 0 if unknown.
	TotalRecords int

	// ProcessedRecords is the number of records written to the sink so far.
	ProcessedRecords int

	// ProcessedChunks is the number of chunks dispatched so far.
	ProcessedChunks int

	// BufferSize is the configured chunk size.
	BufferSize int

	// StartTime is when processing started.
	StartTime time.Time

	// LastUpdateTime is when progress was last updated.
	LastUpdateTime time.Time

	mu sync.RWMutex
}

// NewProgress creates a new progress tracker.
func NewProgress(totalRecords, bufferSize int) *Progress {
	now := time.Now()
	return &Progress{
		TotalRecords:   totalRecords,
		BufferSize:     bufferSize,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddChunk records one finished chunk of n records.
func (p *Progress) AddChunk(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ProcessedRecords += n
	p.ProcessedChunks++
	p.LastUpdateTime = time.Now()
}

// PercentComplete returns the completion percentage (0-100), or 0 when the
// total is unknown.
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.percentCompleteUnsafe()
}

// IsComplete returns true if a known total has been reached.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.TotalRecords > 0 && p.ProcessedRecords >= p.TotalRecords
}

// ElapsedTime returns the time elapsed since processing started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.StartTime)
}

// EstimatedTimeRemaining estimates the remaining time from the current rate.
// Returns 0 if nothing has been processed yet or the total is unknown.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.ProcessedRecords == 0 || p.TotalRecords == 0 {
		return 0
	}

	elapsed := time.Since(p.StartTime)
	perRecord := elapsed / time.Duration(p.ProcessedRecords)
	remaining := max(0, p.TotalRecords-p.ProcessedRecords)

	return perRecord * time.Duration(remaining)
}

// RecordsPerSecond returns the processing rate.
func (p *Progress) RecordsPerSecond() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.recordsPerSecondUnsafe()
}

// Snapshot returns a copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalRecords:     p.TotalRecords,
		ProcessedRecords: p.ProcessedRecords,
		ProcessedChunks:  p.ProcessedChunks,
		BufferSize:       p.BufferSize,
		StartTime:        p.StartTime,
		LastUpdateTime:   p.LastUpdateTime,
		PercentComplete:  p.percentCompleteUnsafe(),
		ElapsedTime:      time.Since(p.StartTime),
		RecordsPerSecond: p.recordsPerSecondUnsafe(),
	}
}

// ProgressSnapshot is an immutable view of Progress.
type ProgressSnapshot struct {
	TotalRecords     int
	ProcessedRecords int
	ProcessedChunks  int
	BufferSize       int
	StartTime        time.Time
	LastUpdateTime   time.Time
	PercentComplete  float64
	ElapsedTime      time.Duration
	RecordsPerSecond float64
}

func (p *Progress) percentCompleteUnsafe() float64 {
	if p.TotalRecords == 0 {
		return 0
	}
	return (float64(p.ProcessedRecords) / float64(p.TotalRecords)) * percentMultiplier
}

func (p *Progress) recordsPerSecondUnsafe() float64 {
	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.ProcessedRecords) / elapsed
}
