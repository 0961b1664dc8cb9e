// Package client implements the two query paths spec.md §4's consumers
// use: local (read index/methylome directories directly, no network) and
// remote (dial an mxg server and round-trip the xfrproto wire protocol).
// Grounded on original_source/src/client.hpp/client.cpp (remote) and
// methylome_client_local.cpp (local), generalised to mxg's Go types.
package client

import (
	"io"
	"net"
	"time"

	"github.com/grailbio/base/errors"

	"github.com/andrewdavidsmith/mxg/cache"
	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/query"
	"github.com/andrewdavidsmith/mxg/xfrproto"
)

// Local answers queries directly against an on-disk genome index and
// methylome directory, with no network round trip — the path
// cmd/mxg-query uses when pointed at a local data directory instead of a
// server address.
type Local struct {
	Index *genome.Index
	cache *cache.MethylomeSet
}

// NewLocal builds a Local client rooted at methylomeDir, caching up to
// cacheCapacity live methylomes.
func NewLocal(idx *genome.Index, methylomeDir string, cacheCapacity uint32) *Local {
	return &Local{Index: idx, cache: cache.New(methylomeDir, cacheCapacity)}
}

// QueryIntervals evaluates intervals against each named methylome locally,
// returning one []query.Aggregate per name in the same order as names.
func (c *Local) QueryIntervals(names []string, intervals []genome.Interval, variant query.Variant) ([][]query.Aggregate, error) {
	q, err := c.Index.MakeQuery(intervals)
	if err != nil {
		return nil, err
	}
	return c.evalRanges(names, q.Ranges, variant)
}

// QueryBins evaluates a genome-wide bin tiling against each named
// methylome locally.
func (c *Local) QueryBins(names []string, binSize uint32, variant query.Variant) ([][]query.Aggregate, error) {
	ranges := c.Index.BinOrdinalRanges(binSize)
	return c.evalRanges(names, ranges, variant)
}

func (c *Local) evalRanges(names []string, ranges []genome.OrdinalRange, variant query.Variant) ([][]query.Aggregate, error) {
	out := make([][]query.Aggregate, len(names))
	for i, name := range names {
		h, err := c.cache.Get(name, c.Index.NCpGsTotal())
		if err != nil {
			return nil, err
		}
		aggs, err := query.EvalIntervals(h.Data, ranges, variant)
		h.Release()
		if err != nil {
			return nil, err
		}
		out[i] = aggs
	}
	return out, nil
}

// Remote dials an mxg server and issues requests over its binary wire
// protocol. A Remote holds only the server address and timeout; per
// spec.md §4.7 the server closes the connection after every response, so
// Remote's query methods each dial fresh.
type Remote struct {
	addr    string
	timeout time.Duration
}

// NewRemote builds a Remote client that dials addr, applying timeout to
// the dial and, as one deadline, to the whole request/response exchange
// that follows.
func NewRemote(addr string, timeout time.Duration) *Remote {
	return &Remote{addr: addr, timeout: timeout}
}

// QueryIntervals sends an Intervals/IntervalsCovered request for names over
// ranges (already translated to ordinal space by the caller, since only
// the caller — or a Local client sharing the server's index — knows the
// genome index) and returns one []query.Aggregate per name.
func (r *Remote) QueryIntervals(indexHash uint64, names []string, ranges []genome.OrdinalRange, variant query.Variant) ([][]query.Aggregate, error) {
	reqType := xfrproto.Intervals
	if variant == query.Covered {
		reqType = xfrproto.IntervalsCovered
	}
	req := xfrproto.RequestHeader{
		Type:      reqType,
		IndexHash: indexHash,
		Aux:       uint32(len(ranges)),
		Names:     names,
	}
	return r.roundTrip(req, xfrproto.EncodeIntervalPayload(ranges), len(ranges))
}

// QueryBins sends a Bins/BinsCovered request for names with the given
// bin_size, and returns one []query.Aggregate per name. responseSize (the
// number of bins) is server-determined and read back from the response
// header.
func (r *Remote) QueryBins(indexHash uint64, names []string, binSize uint32, variant query.Variant) ([][]query.Aggregate, error) {
	reqType := xfrproto.Bins
	if variant == query.Covered {
		reqType = xfrproto.BinsCovered
	}
	req := xfrproto.RequestHeader{
		Type:      reqType,
		IndexHash: indexHash,
		Aux:       binSize,
		Names:     names,
	}
	return r.roundTrip(req, nil, -1)
}

// roundTrip dials, writes the header and optional payload, reads the
// response header, and — on success — reads responseSize level elements
// per name (or, if expectedCount is negative, trusts the response header's
// ResponseSize field, as bin requests must since only the server knows
// index.NBins(bin_size)).
func (r *Remote) roundTrip(req xfrproto.RequestHeader, payload []byte, expectedCount int) ([][]query.Aggregate, error) {
	conn, err := net.DialTimeout("tcp", r.addr, r.timeout)
	if err != nil {
		return nil, errors.E(err, "dialing mxg server", r.addr)
	}
	defer conn.Close()

	if r.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
			return nil, errors.E(err, "setting connection deadline")
		}
	}

	hdr, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(hdr); err != nil {
		return nil, errors.E(err, "writing request header")
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return nil, errors.E(err, "writing request payload")
		}
	}

	respBuf := make([]byte, xfrproto.HeaderSize)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		return nil, errors.E(err, "reading response header")
	}
	var resp xfrproto.ResponseHeader
	if err := resp.UnmarshalBinary(respBuf); err != nil {
		return nil, err
	}
	if resp.Status != xfrproto.OK {
		return nil, errors.E(errors.Invalid, "mxg server returned non-OK status", resp.Status.String())
	}

	count := expectedCount
	if count < 0 {
		count = int(resp.ResponseSize)
	}
	size := 8
	if req.Type.Covered() {
		size = 12
	}
	out := make([][]query.Aggregate, len(req.Names))
	for i := range req.Names {
		body := make([]byte, size*count)
		if _, err := io.ReadFull(conn, body); err != nil {
			return nil, errors.E(err, "reading response body")
		}
		aggs, err := xfrproto.DecodeLevels(req.Type, body, count)
		if err != nil {
			return nil, err
		}
		out[i] = aggs
	}
	return out, nil
}
