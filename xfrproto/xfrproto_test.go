package xfrproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/query"
)

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{
		Type:      IntervalsCovered,
		IndexHash: 0xdeadbeefcafe,
		Aux:       3,
		Names:     []string{"sampleA", "sampleB"},
	}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize)

	var got RequestHeader
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, h, got)
}

func TestRequestHeaderSingleName(t *testing.T) {
	h := RequestHeader{Type: Bins, IndexHash: 1, Aux: 100, Names: []string{"only"}}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	var got RequestHeader
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, []string{"only"}, got.Names)
}

func TestRequestHeaderWrongSize(t *testing.T) {
	var h RequestHeader
	assert.Error(t, h.UnmarshalBinary([]byte{1, 2, 3}))
}

func TestRequestHeaderNamesTooLong(t *testing.T) {
	names := make([]string, 0)
	long := make([]byte, namesBlobSize)
	for i := range long {
		long[i] = 'x'
	}
	names = append(names, string(long))
	_, err := RequestHeader{Names: names}.MarshalBinary()
	assert.Error(t, err)
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	h := ResponseHeader{Status: ErrMethylomeNotFound, ResponseSize: 42}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize)

	var got ResponseHeader
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, h, got)
}

func TestNeedsPayloadAndCovered(t *testing.T) {
	assert.True(t, Intervals.NeedsPayload())
	assert.True(t, IntervalsCovered.NeedsPayload())
	assert.False(t, Bins.NeedsPayload())
	assert.False(t, BinsCovered.NeedsPayload())

	assert.False(t, Intervals.Covered())
	assert.True(t, IntervalsCovered.Covered())
	assert.False(t, Bins.Covered())
	assert.True(t, BinsCovered.Covered())
}

func TestIntervalPayloadRoundTrip(t *testing.T) {
	ranges := []genome.OrdinalRange{{Lo: 0, Hi: 2}, {Lo: 2, Hi: 3}}
	buf := EncodeIntervalPayload(ranges)
	assert.Len(t, buf, 16)

	got, err := DecodeIntervalPayload(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, ranges, got)
}

func TestDecodeIntervalPayloadTruncated(t *testing.T) {
	_, err := DecodeIntervalPayload([]byte{1, 2, 3}, 2)
	assert.Error(t, err)
}

func TestLevelsRoundTripUncovered(t *testing.T) {
	aggs := []query.Aggregate{{M: 10, U: 5}, {M: 0, U: 0}}
	buf := EncodeLevels(Intervals, aggs)
	assert.Len(t, buf, 16)
	got, err := DecodeLevels(Intervals, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, aggs, got)
}

func TestLevelsRoundTripCovered(t *testing.T) {
	aggs := []query.Aggregate{{M: 10, U: 5, NCovered: 1}, {M: 0, U: 0, NCovered: 0}}
	buf := EncodeLevels(BinsCovered, aggs)
	assert.Len(t, buf, 24)
	got, err := DecodeLevels(BinsCovered, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, aggs, got)
}

func TestRequestTypeString(t *testing.T) {
	assert.Equal(t, "IntervalsCovered", IntervalsCovered.String())
	assert.Equal(t, "CountsNorefCov", CountsNorefCov.String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "ErrInactiveTimeout", ErrInactiveTimeout.String())
}
