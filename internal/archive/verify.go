package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
)

// ReadManifest returns the manifest of an edition archive without verifying
// the files it lists.
func ReadManifest(path string) (*Manifest, error) {
	data, err := ReadFile(path, ManifestName)
	if err != nil {
		return nil, err
	}
	return decodeManifest(path, data)
}

func decodeManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewParse("manifest", path+"/"+ManifestName, 0, err.Error())
	}
	return &m, nil
}

// Verify checks every file listed in the manifest against its SHA-256 and
// BLAKE3 digests. Missing, unlisted or altered files are reported together.
func Verify(path string) (*Manifest, error) {
	m, _, err := readVerified(path)
	return m, err
}

// Unpack verifies the archive and writes its files, manifest included, into
// dstDir.
func Unpack(path, dstDir string) (*Manifest, error) {
	m, contents, err := readVerified(path)
	if err != nil {
		return nil, err
	}
	for name, data := range contents {
		target := filepath.Join(dstDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, errors.NewIO("mkdir", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return nil, errors.NewIO("write", target, err)
		}
	}
	return m, nil
}

// LoadPiece verifies the archive and decodes its piece file.
func LoadPiece(path string) (*music.Piece, *Manifest, error) {
	m, contents, err := readVerified(path)
	if err != nil {
		return nil, nil, err
	}
	data, ok := contents[m.Piece]
	if !ok {
		return nil, nil, errors.NewNotFound("archive entry", m.Piece)
	}
	format, err := pieceio.DetectFormat(m.Piece)
	if err != nil {
		return nil, nil, err
	}
	p, err := pieceio.Decode(format, path+"/"+m.Piece, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

// readVerified loads every regular entry of the archive and checks it
// against the manifest.
func readVerified(path string) (*Manifest, map[string][]byte, error) {
	contents := make(map[string][]byte)
	err := IterateArchive(path, func(header *tar.Header, r io.Reader) (bool, error) {
		if header.Typeflag != tar.TypeReg {
			return false, nil
		}
		name := entryName(header.Name)
		if !filepath.IsLocal(name) {
			return true, errors.NewValidation(header.Name, "entry escapes the edition directory")
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return true, errors.NewIO("read", header.Name, err)
		}
		contents[name] = data
		return false, nil
	})
	if err != nil {
		return nil, nil, err
	}

	raw, ok := contents[ManifestName]
	if !ok {
		return nil, nil, errors.NewNotFound("archive entry", ManifestName)
	}
	m, err := decodeManifest(path, raw)
	if err != nil {
		return nil, nil, err
	}

	var errs []error
	for _, want := range m.Files {
		data, ok := contents[want.Name]
		if !ok {
			errs = append(errs, errors.NewValidation(want.Name, "listed in the manifest but missing"))
			continue
		}
		got := Digest(want.Name, data)
		switch {
		case got.Size != want.Size:
			errs = append(errs, errors.NewValidation(want.Name, "size mismatch"))
		case got.SHA256 != want.SHA256:
			errs = append(errs, errors.NewValidation(want.Name, "sha256 mismatch"))
		case got.BLAKE3 != want.BLAKE3:
			errs = append(errs, errors.NewValidation(want.Name, "blake3 mismatch"))
		}
	}
	for name := range contents {
		if name != ManifestName && m.File(name) == nil {
			errs = append(errs, errors.NewValidation(name, "not listed in the manifest"))
		}
	}
	if len(errs) > 0 {
		return m, nil, errors.Join(errs...)
	}
	return m, contents, nil
}
