package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdavidsmith/mxg/methylome"
)

func writeSample(t *testing.T, dir, name string, nCpGs int) {
	t.Helper()
	counts := make([]methylome.Pair, nCpGs)
	for i := range counts {
		counts[i] = methylome.Pair{M: uint16(i + 1), U: uint16(i)}
	}
	d := methylome.Data{Counts: counts}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: 7}
	require.NoError(t, methylome.Write(dir, name, d, meta, false))
}

func TestGetLoadsAndPromotes(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "a", 3)

	s := New(dir, 2)
	h1, err := s.Get("a", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h1.Data.Counts[0].M)
	h1.Release()

	h2, err := s.Get("a", 3)
	require.NoError(t, err)
	h2.Release()
	assert.Equal(t, 1, s.Len())
}

func TestGetMissingFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 2)
	_, err := s.Get("nope", 3)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestEvictionRespectsCapacity(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "a", 3)
	writeSample(t, dir, "b", 3)
	writeSample(t, dir, "c", 3)

	s := New(dir, 2)
	ha, err := s.Get("a", 3)
	require.NoError(t, err)
	ha.Release()
	hb, err := s.Get("b", 3)
	require.NoError(t, err)
	hb.Release()
	hc, err := s.Get("c", 3)
	require.NoError(t, err)
	hc.Release()

	assert.Equal(t, 2, s.Len())
	_, hasA := s.index["a"]
	assert.False(t, hasA, "a should have been LRU-evicted")
}

func TestPinnedEntrySkippedForEviction(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "a", 3)
	writeSample(t, dir, "b", 3)
	writeSample(t, dir, "c", 3)

	s := New(dir, 2)
	ha, err := s.Get("a", 3) // held open, never released before c loads
	require.NoError(t, err)

	hb, err := s.Get("b", 3)
	require.NoError(t, err)
	hb.Release()

	hc, err := s.Get("c", 3)
	require.NoError(t, err)
	hc.Release()

	// a is pinned, so eviction must have skipped it despite being LRU.
	_, hasA := s.index["a"]
	assert.True(t, hasA)
	ha.Release()
}

func TestConcurrentGetSingleFlight(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "a", 3)
	s := New(dir, 4)

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = s.Get("a", 3)
		}(i)
	}
	wg.Wait()

	for i := range handles {
		require.NoError(t, errs[i])
		require.NotNil(t, handles[i])
	}
	for _, h := range handles {
		h.Release()
	}
	assert.Equal(t, 1, s.Len())
	assert.EqualValues(t, 1, s.LoadCount(), "16 concurrent Gets for the same cold name must share a single disk load")
}
