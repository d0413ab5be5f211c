// Package record defines the unit of work that flows through the dispatch
// engine: one variant line from the input, plus the annotations attached to it.
//
// The engine never inspects a Record's fields. It counts records, slices them
// into sub-chunks and ships them across process boundaries, so every field
// must survive a msgpack round trip unchanged.
package record

import (
	"strconv"
	"strings"
)

// Annotation is a single key/value pair attached to a record by an annotator.
// Annotations are kept as an ordered slice so rendering is deterministic.
type Annotation struct {
	Key   string `msgpack:"k" json:"key"`
	Value string `msgpack:"v" json:"value"`
}

// Record is one variant from the input stream.
type Record struct {
	// Index is the zero-based position of the record in the input stream.
	Index int64 `msgpack:"index" json:"index"`

	Chrom  string `msgpack:"chrom"  json:"chrom"`
	Pos    int64  `msgpack:"pos"    json:"pos"`
	ID     string `msgpack:"id"     json:"id"`
	Ref    string `msgpack:"ref"    json:"ref"`
	Alt    string `msgpack:"alt"    json:"alt"`
	Qual   string `msgpack:"qual"   json:"qual,omitempty"`
	Filter string `msgpack:"filter" json:"filter,omitempty"`
	Info   string `msgpack:"info"   json:"info,omitempty"`

	// Rest holds any columns after INFO (FORMAT and samples) verbatim.
	Rest []string `msgpack:"rest,omitempty" json:"rest,omitempty"`

	// Raw is the original input line.
	Raw string `msgpack:"raw" json:"-"`

	Annotations []Annotation `msgpack:"ann,omitempty" json:"annotations,omitempty"`
}

// Set adds or replaces the annotation stored under key.
func (r *Record) Set(key, value string) {
	for i := range r.Annotations {
		if r.Annotations[i].Key == key {
			r.Annotations[i].Value = value
			return
		}
	}
	r.Annotations = append(r.Annotations, Annotation{Key: key, Value: value})
}

// Get returns the annotation stored under key.
func (r *Record) Get(key string) (string, bool) {
	for _, a := range r.Annotations {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// AltAlleles splits the ALT column into individual alleles.
func (r *Record) AltAlleles() []string {
	if r.Alt == "" || r.Alt == "." {
		return nil
	}
	return strings.Split(r.Alt, ",")
}

// Identity returns a string that identifies the record independent of its
// annotations. It is used to check that records were neither dropped nor
// duplicated on their way through the engine.
func (r *Record) Identity() string {
	return strconv.FormatInt(r.Index, 10) + ":" + r.Chrom + ":" +
		strconv.FormatInt(r.Pos, 10) + ":" + r.Ref + ">" + r.Alt
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Rest != nil {
		out.Rest = append([]string(nil), r.Rest...)
	}
	if r.Annotations != nil {
		out.Annotations = append([]Annotation(nil), r.Annotations...)
	}
	return out
}

// CloneAll deep-copies a chunk.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}
