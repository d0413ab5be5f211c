// Package source provides Record Sources: producers of bounded chunks of
// input records. An empty chunk with a nil error signals exhaustion.
package source

import (
	"context"
	"errors"

	"github.com/rshade/varbatch/internal/record"
)

// ErrInvalidChunkSize is returned when NextChunk is asked for fewer than one record.
var ErrInvalidChunkSize = errors.New("chunk size must be at least 1")

// Source produces chunks of at most maxSize records in input order.
type Source interface {
	NextChunk(ctx context.Context, maxSize int) ([]record.Record, error)
}

// SliceSource serves records from memory. Records are handed out in order and
// each record is handed out exactly once.
type SliceSource struct {
	records []record.Record
	next    int
}

// NewSliceSource creates a SliceSource over records. The slice is not copied.
func NewSliceSource(records []record.Record) *SliceSource {
	return &SliceSource{records: records}
}

// NextChunk returns the next up to maxSize records.
func (s *SliceSource) NextChunk(ctx context.Context, maxSize int) ([]record.Record, error) {
	if maxSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.records) {
		return nil, nil
	}
	end := min(s.next+maxSize, len(s.records))
	chunk := s.records[s.next:end]
	s.next = end
	return chunk, nil
}

// Remaining reports how many records have not been handed out yet.
func (s *SliceSource) Remaining() int {
	return len(s.records) - s.next
}
