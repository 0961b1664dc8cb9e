package server

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/methylome"
	"github.com/andrewdavidsmith/mxg/xfrproto"
)

// e1Index builds the E1 scenario from spec.md §8: chr1:ACGCGT (CpGs at
// 2,4), chr2:CG (CpG at 0).
func e1Index() genome.Index {
	idx := genome.Index{
		ChromOrder:  []string{"chr1", "chr2"},
		ChromSize:   []uint32{6, 2},
		Positions:   [][]uint32{{2, 4}, {0}},
		ChromOffset: []uint32{0, 2},
		NCpGs:       3,
		IndexHash:   0xABCDEF,
	}
	return idx
}

func startTestServer(t *testing.T, idx genome.Index) (net.Addr, func()) {
	t.Helper()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MethylomeDir = dir
	cfg.IdleTimeout = 5 * time.Second

	acc, err := NewAcceptor(cfg, []*genome.Index{&idx})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	go func() {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		require.NoError(t, err)
		acc.listener = ln
		ready <- ln.Addr()
		cfg.ListenAddr = ln.Addr().String()
		_ = acc.serveOn(ctx, ln)
	}()
	addr := <-ready
	return addr, cancel
}

// startTestServerWithDir is startTestServer without the implicit well-formed
// sampleA fixture, for tests that need to seed the methylome directory
// themselves (e.g. with a metadata mismatch).
func startTestServerWithDir(t *testing.T, idx genome.Index, dir string) (net.Addr, func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MethylomeDir = dir
	cfg.IdleTimeout = 5 * time.Second

	acc, err := NewAcceptor(cfg, []*genome.Index{&idx})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	go func() {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		require.NoError(t, err)
		acc.listener = ln
		ready <- ln.Addr()
		cfg.ListenAddr = ln.Addr().String()
		_ = acc.serveOn(ctx, ln)
	}()
	addr := <-ready
	return addr, cancel
}

func TestServerIntervalsCoveredRoundTrip(t *testing.T) {
	idx := e1Index()
	addr, cancel := startTestServer(t, idx)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := xfrproto.RequestHeader{
		Type:      xfrproto.IntervalsCovered,
		IndexHash: idx.IndexHash,
		Aux:       1,
		Names:     []string{"sampleA"},
	}
	hdr, err := req.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	q, err := idx.MakeQuery([]genome.Interval{{Chrom: 0, Start: 0, Stop: 6}})
	require.NoError(t, err)
	payload := xfrproto.EncodeIntervalPayload(q.Ranges)
	_, err = conn.Write(payload)
	require.NoError(t, err)

	respBuf := make([]byte, xfrproto.HeaderSize)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)
	var resp xfrproto.ResponseHeader
	require.NoError(t, resp.UnmarshalBinary(respBuf))
	require.Equal(t, xfrproto.OK, resp.Status)
	require.EqualValues(t, 1, resp.ResponseSize)

	body := make([]byte, 12)
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)
	m := binary.LittleEndian.Uint32(body[0:4])
	u := binary.LittleEndian.Uint32(body[4:8])
	covered := binary.LittleEndian.Uint32(body[8:12])
	assert.EqualValues(t, 10, m)
	assert.EqualValues(t, 5, u)
	assert.EqualValues(t, 1, covered)
}

func TestServerUnknownIndexHash(t *testing.T) {
	idx := e1Index()
	addr, cancel := startTestServer(t, idx)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := xfrproto.RequestHeader{Type: xfrproto.Bins, IndexHash: 999, Aux: 3, Names: []string{"sampleA"}}
	hdr, err := req.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	respBuf := make([]byte, xfrproto.HeaderSize)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)
	var resp xfrproto.ResponseHeader
	require.NoError(t, resp.UnmarshalBinary(respBuf))
	assert.Equal(t, xfrproto.ErrIndexNotFound, resp.Status)
}

// TestServerMethylomeIndexMismatch covers the case an unknown index_hash
// can't: a hash the registry does recognize, but whose cached methylome was
// bound to a different index at write time (a stale sample left over from a
// prior reindex).
func TestServerMethylomeIndexMismatch(t *testing.T) {
	idx := e1Index()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash + 1}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	addr, cancel := startTestServerWithDir(t, idx, dir)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := xfrproto.RequestHeader{Type: xfrproto.Bins, IndexHash: idx.IndexHash, Aux: 100, Names: []string{"sampleA"}}
	hdr, err := req.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	respBuf := make([]byte, xfrproto.HeaderSize)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)
	var resp xfrproto.ResponseHeader
	require.NoError(t, resp.UnmarshalBinary(respBuf))
	assert.Equal(t, xfrproto.ErrIndexHashMismatch, resp.Status)
}

func TestServerIdleTimeout(t *testing.T) {
	idx := e1Index()
	dir := t.TempDir()
	d := methylome.Data{Counts: []methylome.Pair{{M: 10, U: 5}, {M: 0, U: 0}, {M: 3, U: 3}}}
	meta := methylome.Metadata{Version: "1.0", Assembly: "tinyAssembly", IndexHash: idx.IndexHash}
	require.NoError(t, methylome.Write(dir, "sampleA", d, meta, false))

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MethylomeDir = dir
	cfg.IdleTimeout = 50 * time.Millisecond

	acc, err := NewAcceptor(cfg, []*genome.Index{&idx})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)
	acc.listener = ln
	go func() { _ = acc.serveOn(ctx, ln) }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Send nothing; the server's read deadline should fire and it should
	// write back a well-formed ErrInactiveTimeout response rather than just
	// closing silently.
	respBuf := make([]byte, xfrproto.HeaderSize)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)
	var resp xfrproto.ResponseHeader
	require.NoError(t, resp.UnmarshalBinary(respBuf))
	assert.Equal(t, xfrproto.ErrInactiveTimeout, resp.Status)
}

func TestServerBinSizeTooSmall(t *testing.T) {
	idx := e1Index()
	addr, cancel := startTestServer(t, idx)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := xfrproto.RequestHeader{Type: xfrproto.Bins, IndexHash: idx.IndexHash, Aux: 1, Names: []string{"sampleA"}}
	hdr, err := req.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	respBuf := make([]byte, xfrproto.HeaderSize)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)
	var resp xfrproto.ResponseHeader
	require.NoError(t, resp.UnmarshalBinary(respBuf))
	assert.Equal(t, xfrproto.ErrBinSizeTooSmall, resp.Status)
}
