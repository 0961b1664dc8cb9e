package methylome

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/andrewdavidsmith/mxg/methylome/codec"
)

// Read loads the methylome named name from dir, validating that the
// on-disk byte count matches n_cpgs (from metadata) times the pair size,
// and decompressing via the codec package when metadata.IsCompressed.
func Read(dir, name string, nCpGsExpected uint32) (Data, Metadata, error) {
	metaPath := filepath.Join(dir, name+MetadataFilenameExtension)
	dataPath := filepath.Join(dir, name+DataFilenameExtension)

	meta, err := ReadMetadata(metaPath)
	if err != nil {
		return Data{}, Metadata{}, err
	}
	if meta.NCpGs != nCpGsExpected {
		return Data{}, Metadata{}, errors.E(errors.Precondition,
			fmt.Sprintf("methylome %s: n_cpgs %d does not match index n_cpgs %d", name, meta.NCpGs, nCpGsExpected))
	}

	raw, err := file.ReadFile(backgroundcontext.Get(), dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Data{}, Metadata{}, errors.E(errors.NotExist, "methylome data not found", dataPath)
		}
		return Data{}, Metadata{}, errors.E(err, "reading methylome data", dataPath)
	}

	var d Data
	if meta.IsCompressed {
		pairs, err := codec.Decode(raw)
		if err != nil {
			return Data{}, Metadata{}, errors.E(err, "decoding methylome data", dataPath)
		}
		d.Counts = fromCodecPairs(pairs)
	} else {
		if len(raw) != int(meta.NCpGs)*4 {
			return Data{}, Metadata{}, errors.E(errors.Invalid,
				fmt.Sprintf("methylome %s: data size %d does not match n_cpgs*4 (%d)", name, len(raw), int(meta.NCpGs)*4))
		}
		d.Counts = make([]Pair, meta.NCpGs)
		for i := range d.Counts {
			d.Counts[i] = Pair{
				M: binary.LittleEndian.Uint16(raw[4*i : 4*i+2]),
				U: binary.LittleEndian.Uint16(raw[4*i+2 : 4*i+4]),
			}
		}
	}

	gotHash := d.Hash()
	if gotHash != meta.MethylomeHash {
		return Data{}, Metadata{}, errors.E(errors.Precondition,
			fmt.Sprintf("methylome hash mismatch for %s: metadata=%d computed=%d", name, meta.MethylomeHash, gotHash))
	}
	return d, meta, nil
}

// Write serialises d to dir under name, compressing with codec.Raw when
// compress is true, and updates metadata's is_compressed/hash/n_cpgs
// fields to match.
func Write(dir, name string, d Data, meta Metadata, compress bool) error {
	meta.NCpGs = uint32(len(d.Counts))
	meta.MethylomeHash = d.Hash()
	meta.IsCompressed = compress

	var raw []byte
	if compress {
		frame, err := codec.Encode(codec.Raw, toCodecPairs(d.Counts))
		if err != nil {
			return errors.E(err, "encoding methylome data")
		}
		raw = frame
	} else {
		raw = make([]byte, 4*len(d.Counts))
		for i, p := range d.Counts {
			binary.LittleEndian.PutUint16(raw[4*i:4*i+2], p.M)
			binary.LittleEndian.PutUint16(raw[4*i+2:4*i+4], p.U)
		}
	}

	dataPath := filepath.Join(dir, name+DataFilenameExtension)
	if err := atomicWriteFile(dataPath, raw); err != nil {
		return errors.E(err, "writing methylome data", dataPath)
	}

	metaPath := filepath.Join(dir, name+MetadataFilenameExtension)
	if err := WriteMetadata(metaPath, meta); err != nil {
		return err
	}
	return nil
}

// atomicWriteFile writes data to a temp file alongside path via base/file
// (the teacher's file-access concern, matching
// encoding/pam/pamutil/index.go's file.Create/Writer usage) and swaps it
// into place with os.Rename, since base/file exposes no portable atomic
// rename primitive across its backends and spec.md's index/methylome
// writes require one.
func atomicWriteFile(path string, data []byte) error {
	ctx := backgroundcontext.Get()
	tmpName := filepath.Join(filepath.Dir(path), filepath.Base(path)+fmt.Sprintf(".tmp-%d", os.Getpid()))
	tmp, err := file.Create(ctx, tmpName)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Writer(ctx).Write(data); err != nil {
		file.CloseAndReport(ctx, tmp, &err)
		return err
	}
	if err := tmp.Close(ctx); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func toCodecPairs(pairs []Pair) []codec.Pair {
	out := make([]codec.Pair, len(pairs))
	for i, p := range pairs {
		out[i] = codec.Pair{M: p.M, U: p.U}
	}
	return out
}

func fromCodecPairs(pairs []codec.Pair) []Pair {
	out := make([]Pair, len(pairs))
	for i, p := range pairs {
		out[i] = Pair{M: p.M, U: p.U}
	}
	return out
}
