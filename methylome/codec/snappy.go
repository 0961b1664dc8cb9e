package codec

import (
	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
)

// encodeSnappy compresses the canonical raw pair bytes with snappy, an
// alternate whole-frame codec selected by codec-id Snappy. golang/snappy is
// the teacher's dependency for PAM row compression
// (encoding/pam/fieldio relies on grailbio/base/recordio, which itself
// selects snappy block compression); wired here directly as a selectable
// methylome codec.
func encodeSnappy(pairs []Pair) []byte {
	return snappy.Encode(nil, packRaw(pairs))
}

func decodeSnappy(payload []byte, nPairs int) ([]Pair, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, errors.E(err, "decoding snappy methylome frame")
	}
	return unpackRaw(raw, nPairs)
}
