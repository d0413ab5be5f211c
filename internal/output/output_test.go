package output_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/output"
	"github.com/rshade/varbatch/internal/record"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() []record.Record {
	a := record.Record{Index: 0, Chrom: "1", Pos: 100, ID: "rs1", Ref: "A", Alt: "G", Info: "DP=10"}
	a.Set("VARIANT_CLASS", "SNV")
	b := record.Record{Index: 1, Chrom: "1", Pos: 200, ID: "rs2", Ref: "AT", Alt: "A"}
	b.Set("VARIANT_CLASS", "deletion")
	return []record.Record{a, b}
}

func newWriter(t *testing.T, format string, buf *bytes.Buffer, opts output.Options) output.Writer {
	t.Helper()
	opts.Now = func() time.Time { return fixedNow }
	w, err := output.New(format, buf, opts)
	require.NoError(t, err)
	return w
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := output.New("csv", &bytes.Buffer{}, output.Options{})
	require.ErrorIs(t, err, output.ErrUnknownFormat)
}

func TestVCFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatVCF, &buf, output.Options{
		Annotator: "variant_class",
		Header: func() []string {
			return []string{"##fileformat=VCFv4.3", "##source=test", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"}
		},
	})

	recs := sampleRecords()
	require.NoError(t, w.WriteRecords(context.Background(), recs[:1]))
	require.NoError(t, w.WriteRecords(context.Background(), recs[1:]))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"##fileformat=VCFv4.3",
		"##source=test",
		"##varbatch=<Annotator=variant_class>",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO",
		"1\t100\trs1\tA\tG\t.\t.\tDP=10;VARIANT_CLASS=SNV",
		"1\t200\trs2\tAT\tA\t.\t.\tVARIANT_CLASS=deletion",
	}, lines)
	assert.Equal(t, int64(2), w.Count())
}

func TestVCFWriterOmitHeader(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatVCF, &buf, output.Options{OmitHeader: true})

	require.NoError(t, w.WriteRecords(context.Background(), sampleRecords()))
	require.NoError(t, w.Close())

	assert.False(t, strings.HasPrefix(buf.String(), "#"))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestVCFWriterEmptyInputStillWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatVCF, &buf, output.Options{})

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	assert.Equal(t, "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n", buf.String())
}

func TestVCFHeader(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		annotator string
		want      []string
	}{
		{
			name: "no input header",
			want: []string{"##fileformat=VCFv4.2", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"},
		},
		{
			name:      "samples columns preserved",
			input:     []string{"##fileformat=VCFv4.1", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1"},
			annotator: "identity",
			want: []string{
				"##fileformat=VCFv4.1",
				"##varbatch=<Annotator=identity>",
				"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1",
			},
		},
		{
			name:  "fileformat supplied when missing",
			input: []string{"##contig=<ID=1>"},
			want:  []string{"##fileformat=VCFv4.2", "##contig=<ID=1>", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, output.VCFHeader(tt.input, tt.annotator))
		})
	}
}

type jsonDoc struct {
	Metadata output.Metadata `json:"metadata"`
	Records  []record.Record `json:"records"`
	Summary  output.Summary  `json:"summary"`
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatJSON, &buf, output.Options{Annotator: "variant_class"})

	recs := sampleRecords()
	require.NoError(t, w.WriteRecords(context.Background(), recs[:1]))
	require.NoError(t, w.WriteRecords(context.Background(), nil))
	require.NoError(t, w.WriteRecords(context.Background(), recs[1:]))
	require.NoError(t, w.Close())

	var doc jsonDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc), buf.String())
	assert.Equal(t, "variant_class", doc.Metadata.Annotator)
	assert.True(t, fixedNow.Equal(doc.Metadata.GeneratedAt))
	assert.Equal(t, int64(2), doc.Summary.Records)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "rs1", doc.Records[0].ID)
	assert.Equal(t, "rs2", doc.Records[1].ID)
	v, ok := doc.Records[1].Get("VARIANT_CLASS")
	require.True(t, ok)
	assert.Equal(t, "deletion", v)
}

func TestJSONWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatJSON, &buf, output.Options{})
	require.NoError(t, w.Close())

	var doc jsonDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc), buf.String())
	assert.Empty(t, doc.Records)
	assert.Equal(t, int64(0), doc.Summary.Records)
}

func TestNDJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(t, output.FormatNDJSON, &buf, output.Options{})

	require.NoError(t, w.WriteRecords(context.Background(), sampleRecords()))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var rec record.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, int64(i), rec.Index)
	}
}

func TestWriterErrors(t *testing.T) {
	for _, format := range []string{output.FormatVCF, output.FormatJSON, output.FormatNDJSON} {
		t.Run(format, func(t *testing.T) {
			w := newWriter(t, format, &bytes.Buffer{}, output.Options{})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.ErrorIs(t, w.WriteRecords(ctx, sampleRecords()), context.Canceled)

			require.NoError(t, w.Close())
			require.ErrorIs(t, w.WriteRecords(context.Background(), sampleRecords()), output.ErrClosed)
		})
	}
}
