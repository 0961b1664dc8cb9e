package genome

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Read loads the index named name from dir: the JSON metadata sidecar and
// the raw little-endian position data, validating structural invariants
// and the content hash along the way (spec.md §4.1).
func Read(dir, name string) (Index, error) {
	metaPath := filepath.Join(dir, name+MetadataFilenameExtension)
	dataPath := filepath.Join(dir, name+DataFilenameExtension)

	meta, err := ReadMetadata(metaPath)
	if err != nil {
		return Index{}, err
	}

	positions, err := readPositions(dataPath, meta.ChromOffset, meta.NCpGs)
	if err != nil {
		return Index{}, err
	}

	idx, err := meta.ToIndex(positions)
	if err != nil {
		return Index{}, err
	}

	gotHash := hashPositions(idx.Positions)
	if gotHash != meta.IndexHash {
		return Index{}, errors.E(errors.Precondition,
			fmt.Sprintf("index hash mismatch for %s: metadata=%d computed=%d", name, meta.IndexHash, gotHash))
	}
	idx.IndexHash = gotHash
	return idx, nil
}

// readPositions reads the concatenated little-endian u32 position arrays
// and splits them back into per-chromosome slices using chromOffset and
// the total CpG count.
func readPositions(path string, chromOffset []uint32, nCpGs uint32) ([][]uint32, error) {
	raw, err := file.ReadFile(backgroundcontext.Get(), path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotExist, "genome index data not found", path)
		}
		return nil, errors.E(err, "reading genome index data", path)
	}
	if len(raw) != int(nCpGs)*4 {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("genome index data size mismatch: have %d bytes, want %d", len(raw), int(nCpGs)*4))
	}

	n := len(chromOffset)
	counts := make([]uint32, n)
	for i := 0; i < n; i++ {
		if i+1 < n {
			counts[i] = chromOffset[i+1] - chromOffset[i]
		} else {
			counts[i] = nCpGs - chromOffset[i]
		}
	}

	positions := make([][]uint32, n)
	off := 0
	for i, c := range counts {
		chunk := make([]uint32, c)
		for j := range chunk {
			chunk[j] = binary.LittleEndian.Uint32(raw[off : off+4])
			off += 4
		}
		positions[i] = chunk
	}
	return positions, nil
}

// Write serialises idx as the pair (JSON metadata, raw position data) into
// dir under name, using temp-file-then-rename for each file so a reader
// never observes a partially-written pair (spec.md §4.1 "write... atomically").
func Write(dir, name string, idx Index, assembly, version, host, user, creationTime string) error {
	idx.IndexHash = hashPositions(idx.Positions)
	idx.NCpGs = idx.NCpGsTotal()
	if err := idx.Validate(); err != nil {
		return err
	}

	dataPath := filepath.Join(dir, name+DataFilenameExtension)
	if err := atomicWritePositions(dataPath, idx.Positions); err != nil {
		return err
	}

	meta := FromIndex(idx, assembly, version, host, user, creationTime)
	metaPath := filepath.Join(dir, name+MetadataFilenameExtension)
	if err := WriteMetadata(metaPath, meta); err != nil {
		return err
	}
	return nil
}

// atomicWritePositions writes positions to a temp file alongside path via
// base/file (matching encoding/pam/pamutil/index.go's file.Create/Writer
// usage) and swaps it into place with os.Rename, since base/file exposes no
// portable atomic rename primitive across its backends and spec.md's index
// writes require one.
func atomicWritePositions(path string, positions [][]uint32) error {
	ctx := backgroundcontext.Get()
	tmpName := filepath.Join(filepath.Dir(path), filepath.Base(path)+fmt.Sprintf(".tmp-%d", os.Getpid()))
	tmp, err := file.Create(ctx, tmpName)
	if err != nil {
		return errors.E(err, "creating temp file for genome index data", path)
	}
	defer os.Remove(tmpName) // no-op once renamed

	w := tmp.Writer(ctx)
	buf := make([]byte, 4)
	for _, chrom := range positions {
		for _, p := range chrom {
			binary.LittleEndian.PutUint32(buf, p)
			if _, err := w.Write(buf); err != nil {
				file.CloseAndReport(ctx, tmp, &err)
				return errors.E(err, "writing genome index data", path)
			}
		}
	}
	if err := tmp.Close(ctx); err != nil {
		return errors.E(err, "closing genome index data temp file", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.E(err, "renaming genome index data into place", path)
	}
	return nil
}

// hashPositions computes the index's content fingerprint: seahash over
// each chromosome's little-endian position bytes in turn, with the running
// digest from each chromosome folded into the next chromosome's input so
// the final value depends on chromosome order as well as contents (the
// "Adler-like running checksum" spec.md §3 calls for, using seahash as the
// modern, faster hash primitive in place of Adler-32).
func hashPositions(positions [][]uint32) uint64 {
	h := seahash.New()
	var prefix [8]byte
	buf := make([]byte, 4)
	running := uint64(1) // matches the "1 from the zlib docs to init" seed the original uses
	for _, chrom := range positions {
		binary.LittleEndian.PutUint64(prefix[:], running)
		h.Write(prefix[:])
		for _, p := range chrom {
			binary.LittleEndian.PutUint32(buf, p)
			h.Write(buf)
		}
		running = h.Sum64()
	}
	return running
}
