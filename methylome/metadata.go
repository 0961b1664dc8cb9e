package methylome

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// MetadataFilenameExtension is the sidecar extension, per spec.md §6.
const MetadataFilenameExtension = ".m16.json"

// DataFilenameExtension is the binary data extension, per spec.md §6.
const DataFilenameExtension = ".m16"

// Metadata is the JSON sidecar accompanying a methylome's binary data,
// matching spec.md §6's "Methylome metadata" field list exactly.
type Metadata struct {
	Version      string `json:"version"`
	CreationTime string `json:"creation_time"`
	Host         string `json:"host"`
	User         string `json:"user"`
	Assembly     string `json:"assembly"`
	IndexHash    uint64 `json:"index_hash"`
	MethylomeHash uint64 `json:"methylome_hash"`
	NCpGs        uint32 `json:"n_cpgs"`
	IsCompressed bool   `json:"is_compressed"`
}

// ReadMetadata loads and parses the JSON sidecar at path.
func ReadMetadata(path string) (Metadata, error) {
	ctx := backgroundcontext.Get()
	raw, err := file.ReadFile(ctx, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, errors.E(errors.NotExist, "methylome metadata not found", path)
		}
		return Metadata{}, errors.E(err, "reading methylome metadata", path)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, errors.E(errors.Invalid, "parsing methylome metadata", path, err)
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
		return errors.E(err, "marshaling methylome metadata")
	}

	tmpName := filepath.Join(filepath.Dir(path), filepath.Base(path)+fmt.Sprintf(".tmp-%d", os.Getpid()))
	out, err := file.Create(ctx, tmpName)
	if err != nil {
		return errors.E(err, "creating methylome metadata", path)
	}
	defer os.Remove(tmpName) // no-op once renamed

	if _, err = out.Writer(ctx).Write(raw); err != nil {
		file.CloseAndReport(ctx, out, &err)
		return errors.E(err, "writing methylome metadata", path)
	}
	if err = out.Close(ctx); err != nil {
		return errors.E(err, "closing methylome metadata", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.E(err, "renaming methylome metadata into place", path)
	}
	return nil
}

// ConsistentWith reports whether a and b could plausibly describe
// compatible methylomes: same index binding, CpG count, assembly and
// format version. Ported from
// original_source/src/methylome_metadata.hpp's
// methylome_metadata_consistent. Data.Add does not call it, and the server
// compares only IndexHash when binding a loaded methylome to a genome index.
func (a Metadata) ConsistentWith(b Metadata) bool {
	return a.IndexHash == b.IndexHash &&
		a.NCpGs == b.NCpGs &&
		a.Assembly == b.Assembly &&
		a.Version == b.Version
}
