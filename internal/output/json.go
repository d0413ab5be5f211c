package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rshade/varbatch/internal/record"
)

// Metadata describes a JSON document.
type Metadata struct {
	Annotator   string    `json:"annotator,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summary closes a JSON document.
type Summary struct {
	Records int64 `json:"records"`
}

// jsonWriter streams {"metadata":...,"records":[...],"summary":...} without
// holding the records in memory.
type jsonWriter struct {
	baseWriter
	opened bool
}

func (j *jsonWriter) WriteRecords(ctx context.Context, records []record.Record) error {
	if err := j.check(ctx); err != nil {
		return err
	}
	if err := j.open(); err != nil {
		return err
	}
	for i := range records {
		data, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", records[i].Index, err)
		}
		sep := ","
		if j.count == 0 {
			sep = ""
		}
		if _, err := fmt.Fprintf(j.w, "%s\n    %s", sep, data); err != nil {
			return fmt.Errorf("writing JSON record: %w", err)
		}
		j.count++
	}
	return nil
}

func (j *jsonWriter) Close() error {
	if j.closed {
		return nil
	}
	if err := j.open(); err != nil {
		return err
	}
	summary, err := json.Marshal(Summary{Records: j.count})
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	tail := "\n  ],\n"
	if j.count == 0 {
		tail = "],\n"
	}
	if _, err := fmt.Fprintf(j.w, "%s  \"summary\": %s\n}\n", tail, summary); err != nil {
		return fmt.Errorf("writing JSON summary: %w", err)
	}
	j.closed = true
	return j.flush()
}

func (j *jsonWriter) open() error {
	if j.opened {
		return nil
	}
	j.opened = true
	meta, err := json.Marshal(Metadata{
		Annotator:   j.opts.Annotator,
		GeneratedAt: j.opts.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if _, err := fmt.Fprintf(j.w, "{\n  \"metadata\": %s,\n  \"records\": [", meta); err != nil {
		return fmt.Errorf("writing JSON metadata: %w", err)
	}
	return nil
}

type ndjsonWriter struct {
	baseWriter
}

func (n *ndjsonWriter) WriteRecords(ctx context.Context, records []record.Record) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	for i := range records {
		data, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", records[i].Index, err)
		}
		if _, err := fmt.Fprintf(n.w, "%s\n", data); err != nil {
			return fmt.Errorf("writing NDJSON line: %w", err)
		}
		n.count++
	}
	return nil
}

func (n *ndjsonWriter) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return n.flush()
}
