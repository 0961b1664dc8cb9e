package server

import (
	"io"
	"net"
	"time"

	"github.com/grailbio/base/log"

	"github.com/andrewdavidsmith/mxg/cache"
	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/query"
	"github.com/andrewdavidsmith/mxg/xfrproto"
)

// connState is one connection's position in the linear state machine
// spec.md §4.7 specifies. handleConn below runs that state machine as a
// loop over a switch on connState in one goroutine per connection, which
// already gives the "no two callbacks for one connection run concurrently"
// guarantee the original's asio strand exists to provide — the sequencing
// is free, not something Go needs machinery for.
type connState int

const (
	stateAwaitHeader connState = iota
	stateParseHeader
	stateAwaitPayload
	stateDispatch
	stateWriteHeader
	stateWriteBody
	stateClose
)

// registry is the set of backing stores a connection's dispatch step reads
// from: one genome index per supported assembly (keyed by its content
// hash, the same key clients present in the request header) and one
// methylome cache.
type registry struct {
	indexesByHash map[uint64]*genome.Index
	cache         *cache.MethylomeSet
}

// handleConn drives one accepted connection through the full state
// machine until Close, honoring cfg.IdleTimeout as the per-connection
// watchdog: every read and write resets the deadline. A read deadline trip
// while awaiting the header or payload is answered with an InactiveTimeout
// response header; any other read or write failure closes the connection
// without a response.
func handleConn(conn net.Conn, reg *registry, cfg Config) {
	defer conn.Close()

	state := stateAwaitHeader
	var reqHeader xfrproto.RequestHeader
	var respHeader xfrproto.ResponseHeader
	var body []byte
	var ranges []genome.OrdinalRange

loop:
	for {
		switch state {
		case stateAwaitHeader:
			if err := conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
				return
			}
			buf := make([]byte, xfrproto.HeaderSize)
			if _, err := io.ReadFull(conn, buf); err != nil {
				if isTimeout(err) {
					log.Debug.Printf("mxg: connection %s idle timeout awaiting header", conn.RemoteAddr())
					respHeader.Status = xfrproto.ErrInactiveTimeout
					state = stateWriteHeader
					break
				}
				return
			}
			if err := reqHeader.UnmarshalBinary(buf); err != nil {
				respHeader.Status = xfrproto.ErrHeaderParse
				state = stateWriteHeader
				break
			}
			state = stateParseHeader

		case stateParseHeader:
			if reqHeader.Type > xfrproto.CountsNorefCov {
				respHeader.Status = xfrproto.ErrUnexpectedRequestType
				state = stateWriteHeader
				break
			}
			if reqHeader.Type.NeedsPayload() {
				state = stateAwaitPayload
			} else {
				state = stateDispatch
			}

		case stateAwaitPayload:
			if err := conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
				return
			}
			n := int(reqHeader.Aux)
			payload := make([]byte, 8*n)
			if _, err := io.ReadFull(conn, payload); err != nil {
				if isTimeout(err) {
					log.Debug.Printf("mxg: connection %s idle timeout awaiting payload", conn.RemoteAddr())
					respHeader.Status = xfrproto.ErrInactiveTimeout
					state = stateWriteHeader
					break
				}
				return
			}
			var err error
			ranges, err = xfrproto.DecodeIntervalPayload(payload, n)
			if err != nil {
				respHeader.Status = xfrproto.ErrPayloadTruncated
				state = stateWriteHeader
				break
			}
			state = stateDispatch

		case stateDispatch:
			respHeader, body = dispatch(reg, cfg, reqHeader, ranges)
			state = stateWriteHeader

		case stateWriteHeader:
			if err := conn.SetWriteDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
				return
			}
			buf, err := respHeader.MarshalBinary()
			if err != nil {
				return
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}
			if respHeader.Status == xfrproto.OK {
				state = stateWriteBody
			} else {
				state = stateClose
			}

		case stateWriteBody:
			if len(body) > 0 {
				if err := conn.SetWriteDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
					return
				}
				if _, err := conn.Write(body); err != nil {
					return
				}
			}
			state = stateClose

		case stateClose:
			break loop
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// dispatch runs the actual query once a full request has been parsed: it
// resolves the index by hash, resolves each requested methylome from the
// cache, checks the methylome's own recorded index_hash against the
// resolved index (catching a stale sample left over from a prior reindex),
// evaluates the query, and serialises the level-element body.
func dispatch(reg *registry, cfg Config, req xfrproto.RequestHeader, ranges []genome.OrdinalRange) (xfrproto.ResponseHeader, []byte) {
	idx, ok := reg.indexesByHash[req.IndexHash]
	if !ok {
		return xfrproto.ResponseHeader{Status: xfrproto.ErrIndexNotFound}, nil
	}

	variant := query.Uncovered
	if req.Type.Covered() {
		variant = query.Covered
	}

	switch req.Type {
	case xfrproto.Intervals, xfrproto.IntervalsCovered:
		if req.Aux > cfg.MaxIntervals {
			return xfrproto.ResponseHeader{Status: xfrproto.ErrTooManyIntervals}, nil
		}
		return evalAndEncode(reg, idx, req, ranges, variant, int(req.Aux))

	case xfrproto.Bins, xfrproto.BinsCovered:
		if req.Aux < cfg.MinBinSize {
			return xfrproto.ResponseHeader{Status: xfrproto.ErrBinSizeTooSmall}, nil
		}
		binRanges := idx.BinOrdinalRanges(req.Aux)
		return evalAndEncode(reg, idx, req, binRanges, variant, len(binRanges))

	default:
		return xfrproto.ResponseHeader{Status: xfrproto.ErrUnexpectedRequestType}, nil
	}
}

func evalAndEncode(reg *registry, idx *genome.Index, req xfrproto.RequestHeader, ranges []genome.OrdinalRange, variant query.Variant, responseSize int) (xfrproto.ResponseHeader, []byte) {
	var body []byte
	for _, name := range req.Names {
		h, err := reg.cache.Get(name, idx.NCpGsTotal())
		if err != nil {
			return xfrproto.ResponseHeader{Status: xfrproto.ErrMethylomeNotFound}, nil
		}
		if h.Meta.IndexHash != idx.IndexHash {
			h.Release()
			return xfrproto.ResponseHeader{Status: xfrproto.ErrIndexHashMismatch}, nil
		}
		aggs, err := query.EvalIntervals(h.Data, ranges, variant)
		h.Release()
		if err != nil {
			return xfrproto.ResponseHeader{Status: xfrproto.ErrInvalidIntervals}, nil
		}
		body = append(body, xfrproto.EncodeLevels(req.Type, aggs)...)
	}
	return xfrproto.ResponseHeader{Status: xfrproto.OK, ResponseSize: uint32(responseSize)}, body
}
