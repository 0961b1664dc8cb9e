package methylome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// e2Methylome builds the E2 scenario from spec.md §8.
func e2Methylome() Data {
	return Data{Counts: []Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
}

func TestE2TotalCounts(t *testing.T) {
	d := e2Methylome()
	m, u := d.TotalCounts()
	assert.EqualValues(t, 13, m)
	assert.EqualValues(t, 8, u)

	m, u, covered := d.TotalCountsCovered()
	assert.EqualValues(t, 13, m)
	assert.EqualValues(t, 8, u)
	assert.EqualValues(t, 2, covered)
}

func TestSaturatingAdd(t *testing.T) {
	a := Data{Counts: []Pair{{M: 65000, U: 1000}}}
	b := Data{Counts: []Pair{{M: 1000, U: 1000}}}
	require.NoError(t, a.Add(b))
	assert.Equal(t, Pair{M: 65535, U: 2000}, a.Counts[0])
}

func TestAddLengthMismatch(t *testing.T) {
	a := Data{Counts: []Pair{{M: 1, U: 1}}}
	b := Data{Counts: []Pair{{M: 1, U: 1}, {M: 2, U: 2}}}
	assert.Error(t, a.Add(b))
}

func TestNewFromRawSaturation(t *testing.T) {
	d := NewFromRaw([][2]uint32{{100000, 50000}})
	// larger value (100000) scales down to 65535; ratio preserved.
	assert.EqualValues(t, 65535, d.Counts[0].M)
	assert.InDelta(t, 50000.0*65535.0/100000.0, float64(d.Counts[0].U), 1.0)
}

func TestRoundTripUncompressed(t *testing.T) {
	dir := t.TempDir()
	d := e2Methylome()
	meta := Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: 42}
	require.NoError(t, Write(dir, "sampleA", d, meta, false))

	got, gotMeta, err := Read(dir, "sampleA", 3)
	require.NoError(t, err)
	assert.Equal(t, d.Counts, got.Counts)
	assert.False(t, gotMeta.IsCompressed)
	assert.Equal(t, meta.IndexHash, gotMeta.IndexHash)
}

func TestRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	d := e2Methylome()
	meta := Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: 42}
	require.NoError(t, Write(dir, "sampleB", d, meta, true))

	got, gotMeta, err := Read(dir, "sampleB", 3)
	require.NoError(t, err)
	assert.Equal(t, d.Counts, got.Counts)
	assert.True(t, gotMeta.IsCompressed)
}

func TestReadNCpGsMismatch(t *testing.T) {
	dir := t.TempDir()
	d := e2Methylome()
	meta := Metadata{Version: "1.0", Assembly: "tinyAssembly"}
	require.NoError(t, Write(dir, "sampleC", d, meta, false))

	_, _, err := Read(dir, "sampleC", 99)
	assert.Error(t, err)
}

func TestMetadataConsistentWith(t *testing.T) {
	a := Metadata{IndexHash: 1, NCpGs: 3, Assembly: "x", Version: "1.0"}
	b := a
	assert.True(t, a.ConsistentWith(b))
	b.NCpGs = 4
	assert.False(t, a.ConsistentWith(b))
}
