package codec

import (
	"github.com/grailbio/base/errors"
	"github.com/klauspost/compress/zstd"
)

// encodeZstd compresses the canonical raw pair bytes with zstd, an
// alternate whole-frame codec selected by codec-id Zstd. klauspost/compress
// is already a direct teacher dependency (interval/bedunion.go uses its
// gzip reader for BED files); this wires the same dependency into a second
// concern.
func encodeZstd(pairs []Pair) []byte {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		// NewWriter(nil) with default options cannot fail in practice; if
		// it does, the uncompressed pair bytes are returned rather than
		// panicking.
		return packRaw(pairs)
	}
	defer enc.Close()
	return enc.EncodeAll(packRaw(pairs), nil)
}

func decodeZstd(payload []byte, nPairs int) ([]Pair, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.E(err, "constructing zstd decoder")
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, errors.E(err, "decoding zstd methylome frame")
	}
	return unpackRaw(raw, nPairs)
}

func unpackRaw(raw []byte, nPairs int) ([]Pair, error) {
	if len(raw) != 4*nPairs {
		return nil, errors.E(errors.Invalid, "methylome frame: decompressed length mismatch")
	}
	pairs := make([]Pair, nPairs)
	for i := range pairs {
		pairs[i] = Pair{
			M: uint16(raw[4*i]) | uint16(raw[4*i+1])<<8,
			U: uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8,
		}
	}
	return pairs, nil
}
