// Package genome implements the content-addressed genome index: the
// mapping from (chromosome, position) to CpG ordinal that both the
// methylome format and the query engine are pinned against.
package genome

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
)

// ChromID identifies a chromosome by its position in Index.ChromOrder.
type ChromID int32

// Interval is a half-open, 0-based genomic interval [Start, Stop) on one
// chromosome.
type Interval struct {
	Chrom ChromID
	Start uint32
	Stop  uint32
}

// Index is the in-memory form of one assembly's CpG index: every CpG
// position, grouped by chromosome, plus the bookkeeping needed to translate
// genomic coordinates into global CpG-ordinal offsets.
//
// Positions[i] is strictly increasing and every value is < ChromSize[i].
// ChromOffset[i] is the exclusive prefix sum of len(Positions[j]) for j < i.
type Index struct {
	ChromOrder  []string
	ChromSize   []uint32
	Positions   [][]uint32
	ChromOffset []uint32
	NCpGs       uint32
	IndexHash   uint64
}

// ChromIDMap returns the O(1) chromosome-name-to-ChromID lookup table for
// idx, built once per call. Callers translating many names against the
// same index (cmd/mxg-query's BED-style interval reader) should build this
// once up front rather than scanning ChromOrder per name.
func (idx *Index) ChromIDMap() map[string]ChromID {
	m := make(map[string]ChromID, len(idx.ChromOrder))
	for i, name := range idx.ChromOrder {
		m[name] = ChromID(i)
	}
	return m
}

// ChromID looks up name in idx's chromosome order, returning an Invalid
// error if it is not present.
func (idx *Index) ChromID(name string) (ChromID, error) {
	id, ok := idx.ChromIDMap()[name]
	if !ok {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown chromosome: %s", name))
	}
	return id, nil
}

// Validate checks the structural invariants spec.md §3 requires: equal
// slice lengths, sorted positions, and positions within chromosome bounds.
func (idx *Index) Validate() error {
	n := len(idx.ChromOrder)
	if len(idx.ChromSize) != n || len(idx.Positions) != n || len(idx.ChromOffset) != n {
		return errors.E(errors.Invalid, "genome index: mismatched slice lengths")
	}
	var total uint32
	for i := 0; i < n; i++ {
		if idx.ChromOffset[i] != total {
			return errors.E(errors.Invalid, fmt.Sprintf("genome index: chrom_offset[%d] inconsistent with running total", i))
		}
		pos := idx.Positions[i]
		if !sort.IsSorted(uint32Slice(pos)) {
			return errors.E(errors.Invalid, fmt.Sprintf("genome index: positions[%d] not sorted", i))
		}
		for _, p := range pos {
			if p >= idx.ChromSize[i] {
				return errors.E(errors.Invalid, fmt.Sprintf("genome index: position %d out of bounds for chrom %d (size %d)", p, i, idx.ChromSize[i]))
			}
		}
		total += uint32(len(pos))
	}
	if total != idx.NCpGs {
		return errors.E(errors.Invalid, "genome index: n_cpgs does not match sum of position counts")
	}
	return nil
}

type uint32Slice []uint32

func (s uint32Slice) Len() int           { return len(s) }
func (s uint32Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint32Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// NCpGsTotal returns the sum of len(Positions[i]), recomputed from scratch
// rather than read from the stored NCpGs field.
func (idx *Index) NCpGsTotal() uint32 {
	var total uint32
	for _, p := range idx.Positions {
		total += uint32(len(p))
	}
	return total
}

// ValidateInterval checks iv against ChromSize, returning UnknownChrom or
// IntervalPastEnd errors per spec.md §4.1's edge cases.
func (idx *Index) ValidateInterval(iv Interval) error {
	if int(iv.Chrom) < 0 || int(iv.Chrom) >= len(idx.ChromSize) {
		return errors.E(errors.Invalid, fmt.Sprintf("unknown chromosome id: %d", iv.Chrom))
	}
	if iv.Stop > idx.ChromSize[iv.Chrom] {
		return errors.E(errors.Invalid, fmt.Sprintf("interval past end of chromosome %d: stop=%d size=%d", iv.Chrom, iv.Stop, idx.ChromSize[iv.Chrom]))
	}
	return nil
}
