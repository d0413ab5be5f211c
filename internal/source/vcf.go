package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rshade/varbatch/internal/record"
)

// maxLineBytes bounds a single input line; long INFO columns are common.
const maxLineBytes = 16 * 1024 * 1024

// VCFReader reads VCF data lines from an io.Reader. Header lines ("#...")
// are collected and exposed through Header; blank lines are skipped.
type VCFReader struct {
	scanner *bufio.Scanner
	header  []string
	index   int64
	lineNo  int
	done    bool
}

// NewVCFReader wraps r.
func NewVCFReader(r io.Reader) *VCFReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &VCFReader{scanner: sc}
}

// Header returns the header lines seen so far. All header lines precede the
// first data line, so after the first non-empty NextChunk it is complete.
func (v *VCFReader) Header() []string {
	return v.header
}

// NextChunk reads up to maxSize data records.
func (v *VCFReader) NextChunk(ctx context.Context, maxSize int) ([]record.Record, error) {
	if maxSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if v.done {
		return nil, nil
	}

	chunk := make([]record.Record, 0, min(maxSize, 1024))
	for len(chunk) < maxSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !v.scanner.Scan() {
			v.done = true
			if err := v.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading input: %w", err)
			}
			break
		}
		v.lineNo++
		line := v.scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			v.header = append(v.header, strings.TrimRight(line, "\r"))
			continue
		}

		rec, err := record.ParseVCFLine(line, v.index)
		if err != nil {
			return nil, fmt.Errorf("input line %d: %w", v.lineNo, err)
		}
		v.index++
		chunk = append(chunk, rec)
	}

	if len(chunk) == 0 {
		return nil, nil
	}
	return chunk, nil
}
