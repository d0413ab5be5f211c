package annotate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rshade/varbatch/internal/record"
)

// Built-in annotator names.
const (
	IdentityName     = "identity"
	VariantClassName = "variant_class"
	AlleleStatsName  = "allele_stats"
)

// Ensembl variant class terms.
const (
	ClassSNV          = "SNV"
	ClassInsertion    = "insertion"
	ClassDeletion     = "deletion"
	ClassIndel        = "indel"
	ClassSubstitution = "substitution"
	ClassAlteration   = "sequence_alteration"
)

func registerBuiltins(r *Registry) {
	r.MustRegister(IdentityName, "leaves records unchanged", func(map[string]string) (Annotator, error) {
		return identity{}, nil
	})
	r.MustRegister(VariantClassName,
		"adds VARIANT_CLASS (SNV, insertion, deletion, indel, substitution); labels=<yaml> renames classes",
		func(opts map[string]string) (Annotator, error) {
			return newVariantClass(opts), nil
		})
	r.MustRegister(AlleleStatsName, "adds REF_LEN, ALT_LEN and ALT_GC allele statistics",
		func(opts map[string]string) (Annotator, error) {
			return newAlleleStats(opts)
		})
}

type identity struct{}

func (identity) Name() string { return IdentityName }

func (identity) Annotate(context.Context, []record.Record, io.Writer) error { return nil }

// VariantClass classifies each ALT allele against REF. With the labels
// option it renames classes through a YAML map read from disk, e.g. to
// Sequence Ontology terms.
type VariantClass struct {
	key        string
	labelsPath string
	labels     map[string]string
}

func newVariantClass(opts map[string]string) *VariantClass {
	key := opts["key"]
	if key == "" {
		key = "VARIANT_CLASS"
	}
	return &VariantClass{key: key, labelsPath: opts["labels"]}
}

// Name implements Annotator.
func (v *VariantClass) Name() string { return VariantClassName }

// Reopen implements Reopener: it (re)loads the label table.
func (v *VariantClass) Reopen() error {
	v.labels = nil
	if v.labelsPath == "" {
		return nil
	}
	data, err := os.ReadFile(v.labelsPath)
	if err != nil {
		return fmt.Errorf("reading class labels: %w", err)
	}
	labels := map[string]string{}
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return fmt.Errorf("parsing class labels %s: %w", v.labelsPath, err)
	}
	v.labels = labels
	return nil
}

func (v *VariantClass) label(class string) string {
	if l, ok := v.labels[class]; ok {
		return l
	}
	return class
}

// Annotate implements Annotator.
func (v *VariantClass) Annotate(ctx context.Context, records []record.Record, diag io.Writer) error {
	if v.labelsPath != "" && v.labels == nil {
		if err := v.Reopen(); err != nil {
			return err
		}
	}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		alts := records[i].AltAlleles()
		if len(alts) == 0 {
			_, _ = fmt.Fprintf(diag, "WARNING: record %d (%s:%d) has no ALT allele\n",
				records[i].Index, records[i].Chrom, records[i].Pos)
			continue
		}
		classes := make([]string, len(alts))
		for j, alt := range alts {
			classes[j] = v.label(ClassifyAllele(records[i].Ref, alt))
		}
		records[i].Set(v.key, strings.Join(classes, ","))
	}
	return nil
}

// ClassifyAllele returns the Ensembl variant class of ref→alt.
func ClassifyAllele(ref, alt string) string {
	if strings.HasPrefix(alt, "<") || alt == "*" || strings.ContainsAny(alt, "[]") {
		return ClassAlteration
	}
	switch {
	case len(ref) == 1 && len(alt) == 1:
		if ref == alt {
			return ClassAlteration
		}
		return ClassSNV
	case len(ref) == len(alt):
		return ClassSubstitution
	case len(ref) < len(alt) && strings.HasPrefix(alt, ref):
		return ClassInsertion
	case len(ref) > len(alt) && strings.HasPrefix(ref, alt):
		return ClassDeletion
	default:
		return ClassIndel
	}
}

// AlleleStats records allele lengths and the GC fraction of the first ALT.
type AlleleStats struct {
	precision int
}

func newAlleleStats(opts map[string]string) (*AlleleStats, error) {
	precision := 3
	if p, ok := opts["precision"]; ok {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 10 {
			return nil, fmt.Errorf("precision must be an integer in [0,10], got %q", p)
		}
		precision = n
	}
	return &AlleleStats{precision: precision}, nil
}

// Name implements Annotator.
func (a *AlleleStats) Name() string { return AlleleStatsName }

// Annotate implements Annotator.
func (a *AlleleStats) Annotate(ctx context.Context, records []record.Record, _ io.Writer) error {
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := &records[i]
		r.Set("REF_LEN", strconv.Itoa(len(r.Ref)))
		alts := r.AltAlleles()
		lens := make([]string, len(alts))
		for j, alt := range alts {
			lens[j] = strconv.Itoa(len(alt))
		}
		r.Set("ALT_LEN", strings.Join(lens, ","))
		if len(alts) > 0 {
			r.Set("ALT_GC", strconv.FormatFloat(gcFraction(alts[0]), 'f', a.precision, 64))
		}
	}
	return nil
}

func gcFraction(seq string) float64 {
	if seq == "" {
		return 0
	}
	gc := 0
	for _, c := range seq {
		if c == 'G' || c == 'C' || c == 'g' || c == 'c' {
			gc++
		}
	}
	return float64(gc) / float64(len(seq))
}
