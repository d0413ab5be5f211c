package output

import (
	"context"
	"fmt"
	"strings"

	"github.com/rshade/varbatch/internal/record"
)

const (
	fileFormatLine = "##fileformat=VCFv4.2"
	columnsLine    = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
)

type vcfWriter struct {
	baseWriter
	wroteHeader bool
}

func (v *vcfWriter) WriteRecords(ctx context.Context, records []record.Record) error {
	if err := v.check(ctx); err != nil {
		return err
	}
	if err := v.writeHeader(); err != nil {
		return err
	}
	for i := range records {
		if _, err := v.w.WriteString(record.FormatVCFLine(records[i]) + "\n"); err != nil {
			return fmt.Errorf("writing VCF line: %w", err)
		}
		v.count++
	}
	return nil
}

func (v *vcfWriter) Close() error {
	if v.closed {
		return nil
	}
	if err := v.writeHeader(); err != nil {
		return err
	}
	v.closed = true
	return v.flush()
}

func (v *vcfWriter) writeHeader() error {
	if v.wroteHeader {
		return nil
	}
	v.wroteHeader = true
	if v.opts.OmitHeader {
		return nil
	}
	for _, line := range VCFHeader(v.header(), v.opts.Annotator) {
		if _, err := v.w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("writing VCF header: %w", err)
		}
	}
	return nil
}

// VCFHeader returns the header to emit for input header lines. A missing
// fileformat or column line is supplied, and a ##varbatch line naming the
// annotator is inserted before the column line.
func VCFHeader(input []string, annotator string) []string {
	var meta []string
	columns := columnsLine
	for _, line := range input {
		if strings.HasPrefix(line, "#CHROM") {
			columns = line
			continue
		}
		meta = append(meta, line)
	}
	if len(meta) == 0 || !strings.HasPrefix(meta[0], "##fileformat=") {
		meta = append([]string{fileFormatLine}, meta...)
	}
	if annotator != "" {
		meta = append(meta, "##varbatch=<Annotator="+annotator+">")
	}
	return append(meta, columns)
}
