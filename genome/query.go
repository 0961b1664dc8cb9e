package genome

import (
	"sort"

	"github.com/grailbio/base/errors"
)

// OrdinalRange is a half-open [Lo, Hi) range in global CpG-ordinal space,
// as produced by MakeQuery from a genomic interval.
type OrdinalRange struct {
	Lo, Hi uint32
}

// Query is the result of translating a list of genomic intervals into
// ordinal ranges, one per input interval, in the same order as the input.
type Query struct {
	Ranges []OrdinalRange
}

// MakeQuery converts a sorted-by-(chrom,start) list of intervals into
// ordinal ranges. Every interval is checked with Index.ValidateInterval,
// so an unknown chromosome or a stop past the chromosome end is returned
// as an error.
//
// Contiguous same-chromosome runs share one forward-advancing cursor, so
// the whole call is O(total positions scanned) rather than one binary
// search from scratch per interval — the performance contract spec.md
// §4.1 describes, ported from original_source/src/cpg_index_data.cpp's
// get_offsets_within_chrom.
func (idx *Index) MakeQuery(intervals []Interval) (Query, error) {
	if err := validateSorted(intervals); err != nil {
		return Query{}, err
	}

	ranges := make([]OrdinalRange, len(intervals))

	i := 0
	for i < len(intervals) {
		ch := intervals[i].Chrom
		if int(ch) < 0 || int(ch) >= len(idx.Positions) {
			return Query{}, errors.E(errors.Invalid, "unknown chromosome id in query")
		}
		j := i
		for j < len(intervals) && intervals[j].Chrom == ch {
			j++
		}
		if err := idx.queryChromRun(ch, intervals[i:j], ranges[i:j]); err != nil {
			return Query{}, err
		}
		i = j
	}
	return Query{Ranges: ranges}, nil
}

// validateSorted enforces spec.md §4.4's property 10: intervals must already
// be sorted by (chrom_id, start), so MakeQuery's shared forward cursor never
// has to rewind. Returning an error here means no partial ordinal output is
// ever produced for an unsorted request.
func validateSorted(intervals []Interval) error {
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if cur.Chrom < prev.Chrom || (cur.Chrom == prev.Chrom && cur.Start < prev.Start) {
			return errors.E(errors.Invalid, "query intervals are not sorted by (chrom_id, start)")
		}
	}
	return nil
}

// queryChromRun fills out[k] with the ordinal range for in[k], for a
// contiguous run of intervals all on the same chromosome, using one
// forward cursor shared across the run.
func (idx *Index) queryChromRun(ch ChromID, in []Interval, out []OrdinalRange) error {
	positions := idx.Positions[ch]
	offset := idx.ChromOffset[ch]
	cursor := 0
	for k, iv := range in {
		if err := idx.ValidateInterval(iv); err != nil {
			return err
		}
		cursor += sort.Search(len(positions)-cursor, func(i int) bool {
			return positions[cursor+i] >= iv.Start
		})
		lo := cursor
		stopCursor := lo + sort.Search(len(positions)-lo, func(i int) bool {
			return positions[lo+i] >= iv.Stop
		})
		out[k] = OrdinalRange{Lo: offset + uint32(lo), Hi: offset + uint32(stopCursor)}
		// Starts are ascending, so the next interval's lo is never below
		// this one's; its stop may be, when the intervals overlap.
		cursor = lo
	}
	return nil
}

// NBins returns the number of bins bin_size produces across the whole
// genome: sum over chromosomes of ceil(chrom_size / bin_size).
func (idx *Index) NBins(binSize uint32) uint32 {
	var n uint32
	for _, size := range idx.ChromSize {
		n += (size + binSize - 1) / binSize
	}
	return n
}

// Bin is one fixed-size genomic window, as yielded by BinIterator.
type Bin struct {
	Chrom      ChromID
	Start      uint32
	Stop       uint32
}

// BinIterator returns a pull-style iterator yielding every bin of size
// binSize across the genome, in chromosome order, each call advancing one
// step. The second return value is false once iteration is exhausted.
func (idx *Index) BinIterator(binSize uint32) func() (Bin, bool) {
	chrom := ChromID(0)
	pos := uint32(0)
	return func() (Bin, bool) {
		for int(chrom) < len(idx.ChromSize) && pos >= idx.ChromSize[chrom] {
			chrom++
			pos = 0
		}
		if int(chrom) >= len(idx.ChromSize) {
			return Bin{}, false
		}
		start := pos
		stop := pos + binSize
		if stop > idx.ChromSize[chrom] {
			stop = idx.ChromSize[chrom]
		}
		pos = stop
		return Bin{Chrom: chrom, Start: start, Stop: stop}, true
	}
}

// BinOrdinalRanges translates every bin of size binSize into an ordinal
// range, maintaining one forward cursor per chromosome exactly as
// MakeQuery does for intervals, so the result vector has exactly
// NBins(binSize) entries in genome-traversal order (spec.md §4.1, §4.4).
func (idx *Index) BinOrdinalRanges(binSize uint32) []OrdinalRange {
	total := idx.NBins(binSize)
	ranges := make([]OrdinalRange, 0, total)
	for ch := range idx.ChromOrder {
		positions := idx.Positions[ch]
		offset := idx.ChromOffset[ch]
		size := idx.ChromSize[ch]
		cursor := 0
		for start := uint32(0); start < size; start += binSize {
			stop := start + binSize
			if stop > size {
				stop = size
			}
			cursor += sort.Search(len(positions)-cursor, func(i int) bool {
				return positions[cursor+i] >= start
			})
			lo := cursor
			stopCursor := lo + sort.Search(len(positions)-lo, func(i int) bool {
				return positions[lo+i] >= stop
			})
			ranges = append(ranges, OrdinalRange{Lo: offset + uint32(lo), Hi: offset + uint32(stopCursor)})
			cursor = stopCursor
		}
	}
	return ranges
}
