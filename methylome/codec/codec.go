// Package codec implements the methylome data codecs: the spec's native
// sparse 2-bit-width-tag format (Raw), plus two alternate whole-frame
// codecs (Zstd, Snappy) selected purely by the codec-id byte
// embedded in the on-disk frame, as spec.md §4.3 explicitly allows.
package codec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/grailbio/base/errors"
)

// ID identifies the codec used for one compressed methylome frame.
type ID byte

const (
	// Raw is the spec's native sparse codec (see raw.go).
	Raw ID = 0
	// Zstd backs the alternate whole-frame codec in zstd.go.
	Zstd ID = 1
	// Snappy backs the alternate whole-frame codec in snappy.go.
	Snappy ID = 2
)

// frameHeaderSize is the byte length of (original length u64, CRC u32).
const frameHeaderSize = 8 + 4

// Pair mirrors methylome.Pair without importing that package, keeping
// codec dependency-free of its own caller.
type Pair struct {
	M, U uint16
}

// Encode compresses pairs with the given codec, returning a full on-disk
// frame: [codec-id byte][original length u64 LE][CRC u32 LE][payload].
func Encode(id ID, pairs []Pair) ([]byte, error) {
	raw := packRaw(pairs)
	payload, err := encodePayload(id, pairs)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 1+frameHeaderSize+len(payload))
	frame[0] = byte(id)
	binary.LittleEndian.PutUint64(frame[1:9], uint64(len(raw)))
	binary.LittleEndian.PutUint32(frame[9:13], crc32.ChecksumIEEE(raw))
	copy(frame[13:], payload)
	return frame, nil
}

// Decode parses a frame produced by Encode, validating both the original
// length and the CRC of the decompressed raw pair bytes before returning,
// per spec.md §4.3's CorruptFrame/LengthMismatch/CrcMismatch failure modes.
func Decode(frame []byte) ([]Pair, error) {
	if len(frame) < 1+frameHeaderSize {
		return nil, errors.E(errors.Invalid, "corrupt methylome frame: too short")
	}
	id := ID(frame[0])
	originalLen := binary.LittleEndian.Uint64(frame[1:9])
	wantCRC := binary.LittleEndian.Uint32(frame[9:13])
	payload := frame[13:]

	if originalLen%4 != 0 {
		return nil, errors.E(errors.Invalid, "corrupt methylome frame: original length not a multiple of 4")
	}
	nPairs := int(originalLen / 4)

	pairs, err := decodePayload(id, payload, nPairs)
	if err != nil {
		return nil, err
	}

	raw := packRaw(pairs)
	if uint64(len(raw)) != originalLen {
		return nil, errors.E(errors.Invalid, "methylome frame length mismatch")
	}
	if gotCRC := crc32.ChecksumIEEE(raw); gotCRC != wantCRC {
		return nil, errors.E(errors.Invalid, "methylome frame CRC mismatch")
	}
	return pairs, nil
}

func encodePayload(id ID, pairs []Pair) ([]byte, error) {
	switch id {
	case Raw:
		return encodeRaw(pairs), nil
	case Zstd:
		return encodeZstd(pairs), nil
	case Snappy:
		return encodeSnappy(pairs), nil
	default:
		return nil, errors.E(errors.Invalid, "unknown methylome codec id")
	}
}

func decodePayload(id ID, payload []byte, nPairs int) ([]Pair, error) {
	switch id {
	case Raw:
		return decodeRaw(payload, nPairs)
	case Zstd:
		return decodeZstd(payload, nPairs)
	case Snappy:
		return decodeSnappy(payload, nPairs)
	default:
		return nil, errors.E(errors.Invalid, "unknown methylome codec id")
	}
}

// packRaw renders pairs as the canonical little-endian (m,u) byte stream
// the frame header's length and CRC are always computed over, regardless
// of which codec compressed it.
func packRaw(pairs []Pair) []byte {
	buf := make([]byte, 4*len(pairs))
	for i, p := range pairs {
		buf[4*i] = byte(p.M)
		buf[4*i+1] = byte(p.M >> 8)
		buf[4*i+2] = byte(p.U)
		buf[4*i+3] = byte(p.U >> 8)
	}
	return buf
}
