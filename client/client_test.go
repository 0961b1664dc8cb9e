package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/methylome"
	"github.com/andrewdavidsmith/mxg/query"
	"github.com/andrewdavidsmith/mxg/server"
)

func e1Index() genome.Index {
	return genome.Index{
		ChromOrder:  []string{"chr1", "chr2"},
		ChromSize:   []uint32{6, 2},
		Positions:   [][]uint32{{2, 4}, {0}},
		ChromOffset: []uint32{0, 2},
		NCpGs:       3,
		IndexHash:   0xABCDEF,
	}
}

func TestLocalQueryIntervals(t *testing.T) {
	idx := e1Index()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	c := NewLocal(&idx, dir, 4)
	got, err := c.QueryIntervals([]string{"sampleA"}, []genome.Interval{{Chrom: 0, Start: 0, Stop: 6}}, query.Covered)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []query.Aggregate{{M: 10, U: 5, NCovered: 1}}, got[0])
}

func TestLocalQueryBins(t *testing.T) {
	idx := e1Index()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	c := NewLocal(&idx, dir, 4)
	got, err := c.QueryBins([]string{"sampleA"}, 3, query.Uncovered)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []query.Aggregate{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}, got[0])
}

func TestLocalQueryMissingMethylome(t *testing.T) {
	idx := e1Index()
	dir := t.TempDir()
	c := NewLocal(&idx, dir, 4)
	_, err := c.QueryIntervals([]string{"nope"}, []genome.Interval{{Chrom: 0, Start: 0, Stop: 6}}, query.Uncovered)
	assert.Error(t, err)
}

func startServer(t *testing.T, idx genome.Index) (net.Addr, func()) {
	t.Helper()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MethylomeDir = dir
	cfg.IdleTimeout = 5 * time.Second

	acc, err := server.NewAcceptor(cfg, []*genome.Index{&idx})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	go func() {
		errCh := make(chan error, 1)
		go func() { errCh <- acc.Run(ctx) }()
		for acc.Addr() == nil {
			time.Sleep(time.Millisecond)
		}
		addrCh <- acc.Addr()
	}()
	return <-addrCh, cancel
}

func TestRemoteQueryIntervals(t *testing.T) {
	idx := e1Index()
	addr, cancel := startServer(t, idx)
	defer cancel()

	q, err := idx.MakeQuery([]genome.Interval{{Chrom: 0, Start: 0, Stop: 6}})
	require.NoError(t, err)

	c := NewRemote(addr.String(), 2*time.Second)
	got, err := c.QueryIntervals(idx.IndexHash, []string{"sampleA"}, q.Ranges, query.Covered)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []query.Aggregate{{M: 10, U: 5, NCovered: 1}}, got[0])
}
