package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// vcfMinColumns is CHROM POS ID REF ALT QUAL FILTER INFO.
const vcfMinColumns = 8

// vcfFixedColumns is the number of leading columns a record always carries,
// the minimal "CHROM POS ID REF ALT" form accepted from hand-written input.
const vcfFixedColumns = 5

// ErrMalformedLine is returned when a data line cannot be parsed.
var ErrMalformedLine = errors.New("malformed VCF data line")

// ParseVCFLine parses one tab-separated VCF data line. Lines with only the
// first five columns are accepted; missing QUAL/FILTER/INFO default to ".".
func ParseVCFLine(line string, index int64) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	cols := strings.Split(line, "\t")
	if len(cols) < vcfFixedColumns {
		// Allow whitespace-separated input as well.
		cols = strings.Fields(line)
	}
	if len(cols) < vcfFixedColumns {
		return Record{}, fmt.Errorf("%w: line %d has %d columns, need at least %d",
			ErrMalformedLine, index+1, len(cols), vcfFixedColumns)
	}

	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil || pos < 1 {
		return Record{}, fmt.Errorf("%w: line %d has invalid POS %q", ErrMalformedLine, index+1, cols[1])
	}

	rec := Record{
		Index:  index,
		Chrom:  cols[0],
		Pos:    pos,
		ID:     cols[2],
		Ref:    strings.ToUpper(cols[3]),
		Alt:    strings.ToUpper(cols[4]),
		Qual:   ".",
		Filter: ".",
		Info:   ".",
		Raw:    line,
	}
	if len(cols) > 5 {
		rec.Qual = cols[5]
	}
	if len(cols) > 6 {
		rec.Filter = cols[6]
	}
	if len(cols) > 7 {
		rec.Info = cols[7]
	}
	if len(cols) > vcfMinColumns {
		rec.Rest = append([]string(nil), cols[vcfMinColumns:]...)
	}
	return rec, nil
}

// FormatVCFLine renders r as a VCF data line. Annotations are appended to the
// INFO column as KEY=VALUE pairs, replacing a bare "." INFO.
func FormatVCFLine(r Record) string {
	info := r.Info
	if len(r.Annotations) > 0 {
		parts := make([]string, 0, len(r.Annotations)+1)
		if info != "" && info != "." {
			parts = append(parts, info)
		}
		for _, a := range r.Annotations {
			parts = append(parts, a.Key+"="+escapeInfoValue(a.Value))
		}
		info = strings.Join(parts, ";")
	}
	if info == "" {
		info = "."
	}

	cols := []string{
		r.Chrom,
		strconv.FormatInt(r.Pos, 10),
		orDot(r.ID),
		r.Ref,
		orDot(r.Alt),
		orDot(r.Qual),
		orDot(r.Filter),
		info,
	}
	cols = append(cols, r.Rest...)
	return strings.Join(cols, "\t")
}

// escapeInfoValue replaces characters that are reserved inside an INFO field.
func escapeInfoValue(v string) string {
	r := strings.NewReplacer(";", "%3B", "=", "%3D", " ", "_", "\t", "_")
	return r.Replace(v)
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}
