// Package counts parses the two legacy plaintext methylation-count
// formats ("xcounts" and "counts") produced by upstream dnmtools-style
// pipelines. This is ingestion helper code, not part of the server's
// binary-only query path (see SPEC_FULL.md §4.2); it is useful to a
// FASTA/ingest tool, which remains out of scope for the core itself.
package counts

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Format identifies which of the two legacy plaintext layouts a counts
// file uses.
type Format int

const (
	// None means the format could not be determined.
	None Format = iota
	// XCounts is the delta-position, per-chromosome-header layout used by
	// dnmtools xcounts output: a "#chrom size" header line introduces each
	// chromosome's block, and data lines hold a position *delta* from the
	// previous site plus the (n_meth, n_unmeth) pair.
	XCounts
	// Counts is the absolute-position layout: every data line repeats the
	// chromosome name, e.g. "chr1\t3\t5\t2".
	Counts
)

// Line is one parsed data line: an absolute genomic position and its
// (n_meth, n_unmeth) counts.
type Line struct {
	Chrom   string
	Pos     uint32
	NMeth   uint32
	NUnmeth uint32
}

// DetectFormat inspects the first non-blank, non-version line of r to
// decide whether it is XCounts or Counts, per
// original_source/src/command_format.cpp's verify_header_line/
// process_cpg_sites_counts dichotomy: an XCounts file's first meaningful
// line begins with '#' (a chromosome header); a Counts file's first line
// is already a four-column data row.
func DetectFormat(r *bufio.Reader) (Format, error) {
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			if strings.HasPrefix(trimmed, "#DNMTOOLS") {
				if err == io.EOF {
					return None, errors.E(errors.Invalid, "counts file ended after version header")
				}
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				return XCounts, nil
			}
			return Counts, nil
		}
		if err != nil {
			if err == io.EOF {
				return None, errors.E(errors.Invalid, "empty counts file")
			}
			return None, errors.E(err, "reading counts file")
		}
	}
}

// ParseXCountsHeader parses a "#chrom size" header line, stripping the
// leading '#'.
func ParseXCountsHeader(line string) (chrom string, size uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.HasPrefix(fields[0], "#") {
		return "", 0, errors.E(errors.Invalid, "malformed xcounts header line", line)
	}
	chrom = fields[0][1:]
	size, convErr := strconv.ParseUint(fields[1], 10, 64)
	if convErr != nil {
		return "", 0, errors.E(errors.Invalid, "malformed xcounts chromosome size", line)
	}
	return chrom, size, nil
}

// ParseCountsLine parses one "counts" format data line:
// "chrom\tpos\tn_meth\tn_unmeth", returning its fields with chrom
// separated so callers can track chromosome transitions exactly as
// process_cpg_sites_counts does.
func ParseCountsLine(line string) (Line, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Line{}, errors.E(errors.Invalid, "malformed counts line", line)
	}
	pos, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Line{}, errors.E(errors.Invalid, "malformed counts position", line)
	}
	nMeth, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return Line{}, errors.E(errors.Invalid, "malformed counts n_meth", line)
	}
	nUnmeth, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Line{}, errors.E(errors.Invalid, "malformed counts n_unmeth", line)
	}
	return Line{Chrom: fields[0], Pos: uint32(pos), NMeth: uint32(nMeth), NUnmeth: uint32(nUnmeth)}, nil
}

// ParseXCountsDataLine parses one xcounts data line: "pos_delta n_meth
// n_unmeth", where pos_delta is relative to the previous site's position
// within the current chromosome (reset to 0 at every header line).
func ParseXCountsDataLine(line string) (posDelta, nMeth, nUnmeth uint32, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, 0, errors.E(errors.Invalid, "malformed xcounts data line", line)
	}
	d, err1 := strconv.ParseUint(fields[0], 10, 32)
	m, err2 := strconv.ParseUint(fields[1], 10, 32)
	u, err3 := strconv.ParseUint(fields[2], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, errors.E(errors.Invalid, "malformed xcounts data line", line)
	}
	return uint32(d), uint32(m), uint32(u), nil
}
