// Package xfrproto implements mxg's length-prefixed, binary-framed wire
// protocol (spec.md §4.6): fixed 256-byte request/response headers encoded
// with stdlib encoding/binary, the same plain-struct-plus-explicit-byte-order
// approach the teacher uses for its own wire formats (biopb's protobuf
// wrapper, encoding/bam and encoding/bgzf's binary.LittleEndian block
// headers).
package xfrproto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
)

// HeaderSize is the fixed, zero-padded size of every request and response
// header, in bytes.
const HeaderSize = 256

const namesBlobSize = HeaderSize - 20

// RequestType selects which query the request payload carries out.
// spec.md §4.6 names four; original_source/src/request.hpp's
// transferase::request_type enum has six, the other two (no-reference
// counts variants) depending on a FASTA-scanning ingestion path mxg does
// not implement (spec.md §1 non-goal). Those two codes are kept reserved
// here, not removed, so the wire enum numbering matches the original and
// stays forward compatible: a client or proxy that only knows the six-value
// enum never collides with an mxg-specific code.
type RequestType uint32

const (
	Intervals RequestType = iota
	IntervalsCovered
	Bins
	BinsCovered
	// CountsNoref and CountsNorefCov are reserved, currently-rejected
	// request types; see the RequestType doc comment.
	CountsNoref
	CountsNorefCov
)

func (t RequestType) String() string {
	switch t {
	case Intervals:
		return "Intervals"
	case IntervalsCovered:
		return "IntervalsCovered"
	case Bins:
		return "Bins"
	case BinsCovered:
		return "BinsCovered"
	case CountsNoref:
		return "CountsNoref"
	case CountsNorefCov:
		return "CountsNorefCov"
	default:
		return fmt.Sprintf("RequestType(%d)", uint32(t))
	}
}

// NeedsPayload reports whether this request type carries an interval-list
// payload (true for the two interval variants) or none (bin variants derive
// their ranges from aux/bin_size and the server's own index).
func (t RequestType) NeedsPayload() bool {
	return t == Intervals || t == IntervalsCovered
}

// Covered reports whether responses to this request type carry the 12-byte
// {m,u,covered} level element rather than the 8-byte {m,u} one.
func (t RequestType) Covered() bool {
	return t == IntervalsCovered || t == BinsCovered
}

// RequestHeader is the fixed 256-byte header every request begins with.
type RequestHeader struct {
	Type RequestType
	// IndexHash must match the server-side genome index for the requested
	// methylomes' assembly.
	IndexHash uint64
	// Aux is the interval count N for interval requests, or bin_size (bp)
	// for bin requests.
	Aux uint32
	// Names is the list of methylome sample names requested.
	Names []string
}

// MarshalBinary encodes h into a HeaderSize-byte, zero-padded buffer.
func (h RequestHeader) MarshalBinary() ([]byte, error) {
	blob, err := packNames(h.Names)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint64(buf[4:12], h.IndexHash)
	binary.LittleEndian.PutUint32(buf[12:16], h.Aux)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(h.Names)))
	copy(buf[20:], blob)
	return buf, nil
}

// UnmarshalBinary decodes a RequestHeader from an exactly-HeaderSize buffer.
func (h *RequestHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) != HeaderSize {
		return errors.E(errors.Invalid, fmt.Sprintf("request header must be %d bytes, got %d", HeaderSize, len(buf)))
	}
	h.Type = RequestType(binary.LittleEndian.Uint32(buf[0:4]))
	h.IndexHash = binary.LittleEndian.Uint64(buf[4:12])
	h.Aux = binary.LittleEndian.Uint32(buf[12:16])
	numNames := int(binary.LittleEndian.Uint16(buf[16:18]))
	names, err := unpackNames(buf[20:], numNames)
	if err != nil {
		return err
	}
	h.Names = names
	return nil
}

// Status is the response header's wire error code, one per spec.md §7
// taxonomy entry plus OK.
type Status uint32

const (
	OK Status = iota
	ErrInvalidAccession
	ErrBinSizeTooSmall
	ErrTooManyIntervals
	ErrInvalidIntervals
	ErrIndexHashMismatch
	ErrUnknownAssembly
	ErrMethylomeNotFound
	ErrIndexNotFound
	ErrHeaderParse
	ErrPayloadTruncated
	ErrUnexpectedRequestType
	ErrIOFailure
	ErrCacheLoadFailure
	ErrInactiveTimeout
	ErrServerFailure
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case ErrInvalidAccession:
		return "ErrInvalidAccession"
	case ErrBinSizeTooSmall:
		return "ErrBinSizeTooSmall"
	case ErrTooManyIntervals:
		return "ErrTooManyIntervals"
	case ErrInvalidIntervals:
		return "ErrInvalidIntervals"
	case ErrIndexHashMismatch:
		return "ErrIndexHashMismatch"
	case ErrUnknownAssembly:
		return "ErrUnknownAssembly"
	case ErrMethylomeNotFound:
		return "ErrMethylomeNotFound"
	case ErrIndexNotFound:
		return "ErrIndexNotFound"
	case ErrHeaderParse:
		return "ErrHeaderParse"
	case ErrPayloadTruncated:
		return "ErrPayloadTruncated"
	case ErrUnexpectedRequestType:
		return "ErrUnexpectedRequestType"
	case ErrIOFailure:
		return "ErrIOFailure"
	case ErrCacheLoadFailure:
		return "ErrCacheLoadFailure"
	case ErrInactiveTimeout:
		return "ErrInactiveTimeout"
	case ErrServerFailure:
		return "ErrServerFailure"
	default:
		return fmt.Sprintf("Status(%d)", uint32(s))
	}
}

// ResponseHeader is the fixed 256-byte header every response begins with.
type ResponseHeader struct {
	Status Status
	// ResponseSize is the number of level elements per methylome in the
	// body: N for interval requests, index.NBins(bin_size) for bin
	// requests.
	ResponseSize uint32
}

// MarshalBinary encodes h into a HeaderSize-byte, zero-padded buffer.
func (h ResponseHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Status))
	binary.LittleEndian.PutUint32(buf[4:8], h.ResponseSize)
	return buf, nil
}

// UnmarshalBinary decodes a ResponseHeader from an exactly-HeaderSize
// buffer.
func (h *ResponseHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) != HeaderSize {
		return errors.E(errors.Invalid, fmt.Sprintf("response header must be %d bytes, got %d", HeaderSize, len(buf)))
	}
	h.Status = Status(binary.LittleEndian.Uint32(buf[0:4]))
	h.ResponseSize = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

func packNames(names []string) ([]byte, error) {
	blob := bytes.Join(toByteSlices(names), []byte{0})
	if len(names) > 0 {
		blob = append(blob, 0)
	}
	if len(blob) > namesBlobSize {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("methylome name list too long for header: %d > %d bytes", len(blob), namesBlobSize))
	}
	return blob, nil
}

func unpackNames(blob []byte, numNames int) ([]string, error) {
	if numNames == 0 {
		return nil, nil
	}
	parts := bytes.SplitN(bytes.TrimRight(blob, "\x00"), []byte{0}, numNames)
	if len(parts) != numNames {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("header declares %d methylome names, found %d", numNames, len(parts)))
	}
	names := make([]string, numNames)
	for i, p := range parts {
		names[i] = string(p)
	}
	return names, nil
}

func toByteSlices(names []string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = []byte(n)
	}
	return out
}
