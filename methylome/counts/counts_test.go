package counts

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormatXCounts(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("#DNMTOOLS v1.0\n#chr1 1000\n3\t5\t2\n"))
	f, err := DetectFormat(r)
	require.NoError(t, err)
	assert.Equal(t, XCounts, f)
}

func TestDetectFormatCounts(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("chr1\t3\t5\t2\nchr1\t9\t1\t1\n"))
	f, err := DetectFormat(r)
	require.NoError(t, err)
	assert.Equal(t, Counts, f)
}

func TestDetectFormatEmpty(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, err := DetectFormat(r)
	assert.Error(t, err)
}

func TestParseXCountsHeader(t *testing.T) {
	chrom, size, err := ParseXCountsHeader("#chr1 1000000")
	require.NoError(t, err)
	assert.Equal(t, "chr1", chrom)
	assert.EqualValues(t, 1000000, size)
}

func TestParseXCountsHeaderMalformed(t *testing.T) {
	_, _, err := ParseXCountsHeader("chr1 1000000")
	assert.Error(t, err)
}

func TestParseCountsLine(t *testing.T) {
	l, err := ParseCountsLine("chr1\t9\t1\t1")
	require.NoError(t, err)
	assert.Equal(t, Line{Chrom: "chr1", Pos: 9, NMeth: 1, NUnmeth: 1}, l)
}

func TestParseCountsLineMalformed(t *testing.T) {
	_, err := ParseCountsLine("chr1 9 1")
	assert.Error(t, err)
}

func TestParseXCountsDataLine(t *testing.T) {
	delta, m, u, err := ParseXCountsDataLine("6 1 1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, delta)
	assert.EqualValues(t, 1, m)
	assert.EqualValues(t, 1, u)
}

func TestParseXCountsDataLineMalformed(t *testing.T) {
	_, _, _, err := ParseXCountsDataLine("6 1")
	assert.Error(t, err)
}
