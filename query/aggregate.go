// Package query evaluates a translated list of genome.OrdinalRange against
// one methylome.Data, producing per-range (meth, unmeth[, covered])
// aggregates. It is the hot path of the whole system (spec.md §4.4): no
// allocation inside the per-range loop beyond the output slice itself.
package query

import (
	"github.com/grailbio/base/errors"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/methylome"
)

// Variant selects which of the two level-element shapes EvalIntervals and
// EvalBins produce. The source dispatches on a runtime enum per request;
// mxg mirrors that with a single dispatch at the entry to the query engine
// rather than a branch inside the hot loop (spec.md §7's explicit redesign
// note).
type Variant int

const (
	// Uncovered produces the 8-byte {m,u} level element.
	Uncovered Variant = iota
	// Covered produces the 12-byte {m,u,covered} level element.
	Covered
)

// Aggregate is one range's result. NCovered is meaningful only when the
// aggregate was produced by the Covered variant; EvalIntervals/EvalBins
// leave it at zero for Uncovered so callers can't mistake it for data.
type Aggregate struct {
	M, U     uint64
	NCovered uint64
}

// EvalIntervals computes one Aggregate per range in ranges, reading
// directly out of d.Counts. ranges must already be validated (in range,
// Lo <= Hi) — genome.Index.MakeQuery guarantees this for its own output.
func EvalIntervals(d methylome.Data, ranges []genome.OrdinalRange, variant Variant) ([]Aggregate, error) {
	out := make([]Aggregate, len(ranges))
	switch variant {
	case Uncovered:
		for i, r := range ranges {
			slice, err := boundedSlice(d, r)
			if err != nil {
				return nil, err
			}
			out[i].M, out[i].U = sumUncovered(slice)
		}
	case Covered:
		for i, r := range ranges {
			slice, err := boundedSlice(d, r)
			if err != nil {
				return nil, err
			}
			out[i].M, out[i].U, out[i].NCovered = sumCovered(slice)
		}
	default:
		return nil, errors.E(errors.Invalid, "unknown query variant")
	}
	return out, nil
}

// EvalBins is EvalIntervals specialised for a genome-wide bin tiling: bins
// are contiguous non-overlapping ranges in ordinal-traversal order, so the
// reduction is identical in shape to EvalIntervals but kept as a distinct
// entry point matching the protocol's separate Bins/BinsCovered request
// types (spec.md §4.6).
func EvalBins(d methylome.Data, ranges []genome.OrdinalRange, variant Variant) ([]Aggregate, error) {
	return EvalIntervals(d, ranges, variant)
}

func boundedSlice(d methylome.Data, r genome.OrdinalRange) ([]methylome.Pair, error) {
	if r.Hi < r.Lo || int(r.Hi) > len(d.Counts) {
		return nil, errors.E(errors.Invalid, "ordinal range out of bounds for methylome")
	}
	return d.Counts[r.Lo:r.Hi], nil
}

// sumUncovered is the tight uncovered-variant loop: no per-pair branch at
// all, matching spec.md §4.4's "uncovered variant: component-wise sums".
func sumUncovered(pairs []methylome.Pair) (mSum, uSum uint64) {
	for _, p := range pairs {
		mSum += uint64(p.M)
		uSum += uint64(p.U)
	}
	return mSum, uSum
}

// sumCovered is the tight covered-variant loop, tracking n_covered alongside
// the sums in one pass.
func sumCovered(pairs []methylome.Pair) (mSum, uSum, nCovered uint64) {
	for _, p := range pairs {
		mSum += uint64(p.M)
		uSum += uint64(p.U)
		if p.M != 0 || p.U != 0 {
			nCovered++
		}
	}
	return mSum, uSum, nCovered
}
