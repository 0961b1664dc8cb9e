package xfrproto

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/query"
)

// intervalItemSize is the wire size of one interval-request payload item:
// two little-endian u32s, global ordinal lo and hi.
const intervalItemSize = 8

// EncodeIntervalPayload serialises ranges as the interval-request payload:
// N items of (lo, hi) u32 pairs, in input order (already sorted ascending
// by lo, per spec.md §4.6).
func EncodeIntervalPayload(ranges []genome.OrdinalRange) []byte {
	buf := make([]byte, intervalItemSize*len(ranges))
	for i, r := range ranges {
		binary.LittleEndian.PutUint32(buf[8*i:8*i+4], r.Lo)
		binary.LittleEndian.PutUint32(buf[8*i+4:8*i+8], r.Hi)
	}
	return buf
}

// DecodeIntervalPayload parses an interval-request payload of n items.
func DecodeIntervalPayload(buf []byte, n int) ([]genome.OrdinalRange, error) {
	if len(buf) != intervalItemSize*n {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("interval payload truncated: want %d bytes for %d items, got %d", intervalItemSize*n, n, len(buf)))
	}
	ranges := make([]genome.OrdinalRange, n)
	for i := range ranges {
		ranges[i] = genome.OrdinalRange{
			Lo: binary.LittleEndian.Uint32(buf[8*i : 8*i+4]),
			Hi: binary.LittleEndian.Uint32(buf[8*i+4 : 8*i+8]),
		}
	}
	return ranges, nil
}

// levelElementSize returns the wire size of one level element for the given
// request type: 8 bytes ({m,u}) for uncovered variants, 12 bytes
// ({m,u,covered}) for covered variants.
func levelElementSize(t RequestType) int {
	if t.Covered() {
		return 12
	}
	return 8
}

// EncodeLevels serialises one methylome's aggregates into the response
// body format for request type t.
func EncodeLevels(t RequestType, aggs []query.Aggregate) []byte {
	size := levelElementSize(t)
	buf := make([]byte, size*len(aggs))
	for i, a := range aggs {
		binary.LittleEndian.PutUint32(buf[size*i:size*i+4], uint32(a.M))
		binary.LittleEndian.PutUint32(buf[size*i+4:size*i+8], uint32(a.U))
		if size == 12 {
			binary.LittleEndian.PutUint32(buf[size*i+8:size*i+12], uint32(a.NCovered))
		}
	}
	return buf
}

// DecodeLevels parses n level elements of the wire shape matching t.
func DecodeLevels(t RequestType, buf []byte, n int) ([]query.Aggregate, error) {
	size := levelElementSize(t)
	if len(buf) != size*n {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("response body truncated: want %d bytes for %d elements, got %d", size*n, n, len(buf)))
	}
	out := make([]query.Aggregate, n)
	for i := range out {
		out[i].M = uint64(binary.LittleEndian.Uint32(buf[size*i : size*i+4]))
		out[i].U = uint64(binary.LittleEndian.Uint32(buf[size*i+4 : size*i+8]))
		if size == 12 {
			out[i].NCovered = uint64(binary.LittleEndian.Uint32(buf[size*i+8 : size*i+12]))
		}
	}
	return out, nil
}
