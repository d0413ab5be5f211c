package source_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/record"
	"github.com/rshade/varbatch/internal/source"
)

func TestSliceSource_NextChunk(t *testing.T) {
	recs := make([]record.Record, 7)
	for i := range recs {
		recs[i].Index = int64(i)
	}
	src := source.NewSliceSource(recs)
	ctx := context.Background()

	var sizes []int
	var seen []int64
	for {
		chunk, err := src.NextChunk(ctx, 3)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		sizes = append(sizes, len(chunk))
		for _, r := range chunk {
			seen = append(seen, r.Index)
		}
	}

	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, seen)
	assert.Equal(t, 0, src.Remaining())
}

func TestSliceSource_InvalidSize(t *testing.T) {
	src := source.NewSliceSource(nil)
	_, err := src.NextChunk(context.Background(), 0)
	assert.ErrorIs(t, err, source.ErrInvalidChunkSize)
}

func TestSliceSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := source.NewSliceSource([]record.Record{{}})
	_, err := src.NextChunk(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

const sampleVCF = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
1	100	rs1	A	G	.	PASS	.

1	200	rs2	AT	A	.	PASS	.
2	300	rs3	C	CTT	.	PASS	.
`

func TestVCFReader_ChunksAndHeader(t *testing.T) {
	r := source.NewVCFReader(strings.NewReader(sampleVCF))
	ctx := context.Background()

	first, err := r.NextChunk(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "rs1", first[0].ID)
	assert.Equal(t, int64(0), first[0].Index)
	assert.Equal(t, int64(1), first[1].Index)
	assert.Len(t, r.Header(), 2)

	second, err := r.NextChunk(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "rs3", second[0].ID)
	assert.Equal(t, int64(2), second[0].Index)

	third, err := r.NextChunk(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestVCFReader_MalformedLine(t *testing.T) {
	r := source.NewVCFReader(strings.NewReader("1\tnotanumber\t.\tA\tG\n"))
	_, err := r.NextChunk(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrMalformedLine)
	assert.Contains(t, err.Error(), "input line 1")
}
