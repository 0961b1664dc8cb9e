package genome

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// MetadataFilenameExtension is the extension for the JSON metadata sidecar,
// per spec.md §6.
const MetadataFilenameExtension = ".cpg_idx.json"

// DataFilenameExtension is the extension for the raw little-endian position
// data, per spec.md §6.
const DataFilenameExtension = ".cpg_idx"

// Metadata is the JSON sidecar accompanying an index's binary position
// data. Field names and types match spec.md §6's "Genome-index metadata"
// exactly, including storing IndexHash as an unsigned decimal (Go's
// encoding/json renders uint64 as a plain decimal number, satisfying that
// requirement without extra work).
type Metadata struct {
	Version      string   `json:"version"`
	CreationTime string   `json:"creation_time"`
	Host         string   `json:"host"`
	User         string   `json:"user"`
	Assembly     string   `json:"assembly"`
	NCpGs        uint32   `json:"n_cpgs"`
	IndexHash    uint64   `json:"index_hash"`
	ChromOrder   []string `json:"chrom_order"`
	ChromSize    []uint32 `json:"chrom_size"`
	ChromOffset  []uint32 `json:"chrom_offset"`
}

// ReadMetadata loads and parses the JSON sidecar at path.
func ReadMetadata(path string) (Metadata, error) {
	ctx := backgroundcontext.Get()
	raw, err := file.ReadFile(ctx, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, errors.E(errors.NotExist, "genome metadata not found", path)
		}
		return Metadata{}, errors.E(err, "reading genome metadata", path)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, errors.E(errors.Invalid, "parsing genome metadata", path, err)
	}
	return m, nil
}

// WriteMetadata serialises m as indented JSON to path via a temp-file-then-
// rename swap, so a concurrent reader never observes a partially-written
// sidecar (spec.md §4.1 "write... atomically").
func WriteMetadata(path string, m Metadata) (err error) {
	ctx := backgroundcontext.Get()
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.E(err, "marshaling genome metadata")
	}

	tmpName := filepath.Join(filepath.Dir(path), filepath.Base(path)+fmt.Sprintf(".tmp-%d", os.Getpid()))
	out, err := file.Create(ctx, tmpName)
	if err != nil {
		return errors.E(err, "creating genome metadata", path)
	}
	defer os.Remove(tmpName) // no-op once renamed

	if _, err = out.Writer(ctx).Write(raw); err != nil {
		file.CloseAndReport(ctx, out, &err)
		return errors.E(err, "writing genome metadata", path)
	}
	if err = out.Close(ctx); err != nil {
		return errors.E(err, "closing genome metadata", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.E(err, "renaming genome metadata into place", path)
	}
	return nil
}

// ToIndex converts a freshly-loaded Metadata and parallel position slices
// into a validated Index.
func (m Metadata) ToIndex(positions [][]uint32) (Index, error) {
	idx := Index{
		ChromOrder:  m.ChromOrder,
		ChromSize:   m.ChromSize,
		Positions:   positions,
		ChromOffset: m.ChromOffset,
		NCpGs:       m.NCpGs,
		IndexHash:   m.IndexHash,
	}
	if err := idx.Validate(); err != nil {
		return Index{}, err
	}
	return idx, nil
}

// FromIndex captures idx's shape into a Metadata record, stamping the
// remaining provenance fields from the supplied values (version/host/user
// are supplied by the caller, matching the original's init_env()
// responsibility of filling those in from the process environment).
func FromIndex(idx Index, assembly, version, host, user, creationTime string) Metadata {
	return Metadata{
		Version:      version,
		CreationTime: creationTime,
		Host:         host,
		User:         user,
		Assembly:     assembly,
		NCpGs:        idx.NCpGs,
		IndexHash:    idx.IndexHash,
		ChromOrder:   idx.ChromOrder,
		ChromSize:    idx.ChromSize,
		ChromOffset:  idx.ChromOffset,
	}
}
