// Package methylome implements the on-disk methylome data and metadata
// format: per-CpG (methylated, unmethylated) count pairs held in
// CpG-ordinal order, pinned to one genome.Index via its content hash.
package methylome

import (
	"fmt"
	"unsafe"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"

	"github.com/andrewdavidsmith/mxg/internal/msimd"
)

// maxCount16 is the saturation ceiling for one field of a count pair; the
// codec's "large" width still fits this exactly since the field is u16.
const maxCount16 = 65535

// Pair is one CpG's (methylated, unmethylated) read-count pair. (0,0)
// denotes "no coverage" per spec.md §3.
type Pair struct {
	M, U uint16
}

// Covered reports whether the pair has any read support at all.
func (p Pair) Covered() bool { return p.M != 0 || p.U != 0 }

// Data is a methylome's full CpG-ordinal count vector for one sample,
// matching one genome.Index 1:1 by length.
type Data struct {
	Counts []Pair
}

// NewFromRaw builds a Data from raw (possibly out-of-range) count pairs,
// applying the spec.md §3 saturation rule: if either raw value exceeds
// 65535, both values are scaled down proportionally so the larger becomes
// exactly 65535, preserving their ratio deterministically.
func NewFromRaw(raw [][2]uint32) Data {
	counts := make([]Pair, len(raw))
	for i, mu := range raw {
		counts[i] = saturate(mu[0], mu[1])
	}
	return Data{Counts: counts}
}

func saturate(m, u uint32) Pair {
	if m <= maxCount16 && u <= maxCount16 {
		return Pair{M: uint16(m), U: uint16(u)}
	}
	largest := m
	if u > largest {
		largest = u
	}
	scale := float64(maxCount16) / float64(largest)
	return Pair{
		M: uint16(float64(m) * scale),
		U: uint16(float64(u) * scale),
	}
}

// Add merges other into d in place with saturating per-CpG addition,
// clamped at 65535, as spec.md §4.2 specifies for combining replicates.
// Both methylomes must be the same length; Add checks only the lengths and
// does not compare index hashes.
func (d *Data) Add(other Data) error {
	if len(d.Counts) != len(other.Counts) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("methylome add: length mismatch %d vs %d", len(d.Counts), len(other.Counts)))
	}
	for i := range d.Counts {
		d.Counts[i].M = saturatingAddU16(d.Counts[i].M, other.Counts[i].M)
		d.Counts[i].U = saturatingAddU16(d.Counts[i].U, other.Counts[i].U)
	}
	return nil
}

func saturatingAddU16(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	if sum > maxCount16 {
		return maxCount16
	}
	return uint16(sum)
}

// TotalCounts returns the uncovered-style (m_sum, u_sum) reduction over the
// whole methylome.
func (d Data) TotalCounts() (mSum, uSum uint64) {
	mSum, uSum, _ = msimd.Accumulate(toMsimdPairs(d.Counts))
	return mSum, uSum
}

// TotalCountsCovered returns the covered-style (m_sum, u_sum, n_covered)
// reduction over the whole methylome.
func (d Data) TotalCountsCovered() (mSum, uSum, nCovered uint64) {
	return msimd.Accumulate(toMsimdPairs(d.Counts))
}

// toMsimdPairs reinterprets counts as []msimd.Pair without copying: Pair and
// msimd.Pair are both plain {M, U uint16} structs, so the two have identical
// memory layout, the same zero-copy cast encoding/bam/unsafe.go uses to
// reinterpret []byte as []sam.Doublet. Keeps TotalCounts/TotalCountsCovered
// allocation-free regardless of methylome size.
func toMsimdPairs(counts []Pair) []msimd.Pair {
	if len(counts) == 0 {
		return nil
	}
	return unsafe.Slice((*msimd.Pair)(unsafe.Pointer(&counts[0])), len(counts))
}

// Hash computes the methylome's content fingerprint: seahash over the raw
// little-endian pair bytes, matching genome.Index's use of the same
// primitive for index_hash.
func (d Data) Hash() uint64 {
	buf := make([]byte, 4*len(d.Counts))
	for i, p := range d.Counts {
		buf[4*i] = byte(p.M)
		buf[4*i+1] = byte(p.M >> 8)
		buf[4*i+2] = byte(p.U)
		buf[4*i+3] = byte(p.U >> 8)
	}
	return seahash.Sum64(buf)
}
