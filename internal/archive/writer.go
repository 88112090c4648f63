package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
)

// now is the archive timestamp source; tests replace it.
var now = time.Now

// File is one file to be archived.
type File struct {
	Name string
	Data []byte
}

// Pack writes an edition archive to dstPath. The manifest is completed with
// the edition ID, timestamps and one FileEntry per file, and is written as
// the first entry. Parent directories of dstPath are created.
func Pack(dstPath string, m Manifest, files ...File) (*Manifest, error) {
	format := DetectFormat(dstPath)
	if format == FormatUnknown {
		return nil, errors.NewUnsupported("archive format", dstPath)
	}
	if len(files) == 0 {
		return nil, errors.NewValidation("files", "an edition needs at least one file")
	}

	stamp := now().UTC()
	m.Version = ManifestVersion
	m.EditionID = EditionID(dstPath)
	m.CreatedAt = stamp.Format(time.RFC3339)
	m.Files = make([]FileEntry, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f.Name == ManifestName || !filepath.IsLocal(f.Name) || seen[f.Name] {
			return nil, errors.NewValidation("files", "invalid or duplicate name "+f.Name)
		}
		seen[f.Name] = true
		m.Files = append(m.Files, Digest(f.Name, f.Data))
	}
	if m.Piece == "" {
		m.Piece = files[0].Name
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode manifest")
	}

	var buf bytes.Buffer
	if err := writeTar(&buf, format, m.EditionID, stamp, append([]File{{ManifestName, manifest}}, files...)); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return nil, errors.NewIO("mkdir", filepath.Dir(dstPath), err)
	}
	if err := os.WriteFile(dstPath, buf.Bytes(), 0644); err != nil {
		return nil, errors.NewIO("write", dstPath, err)
	}
	return &m, nil
}

// PackPiece archives the piece file at srcPath. The file must decode as a
// piece; its metadata fills the manifest. The file is stored as is unless
// its apparatus needs consolidation, in which case the consolidated piece
// is stored instead.
func PackPiece(srcPath, dstPath string) (*Manifest, error) {
	format, err := pieceio.DetectFormat(srcPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, errors.NewIO("read", srcPath, err)
	}
	p, err := pieceio.Decode(format, srcPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if p.ConsolidateAllReadings() > 0 {
		if data, err = pieceio.Marshal(format, p); err != nil {
			return nil, err
		}
	}
	m := Manifest{
		Title:        p.Meta.Title,
		Composer:     p.Meta.Composer,
		SourceFormat: string(format),
	}
	for _, v := range p.Versions() {
		m.Versions = append(m.Versions, v.ID)
	}
	return Pack(dstPath, m, File{Name: filepath.Base(srcPath), Data: data})
}

func writeTar(w io.Writer, format, baseDir string, stamp time.Time, files []File) error {
	var comp io.WriteCloser
	switch format {
	case FormatTarXz:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "xz writer")
		}
		comp = xzw
	default:
		comp = gzip.NewWriter(w)
	}

	tw := tar.NewWriter(comp)
	for _, f := range files {
		header := &tar.Header{
			Name:     baseDir + "/" + f.Name,
			Mode:     0644,
			Size:     int64(len(f.Data)),
			ModTime:  stamp,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return errors.Wrap(err, "write header")
		}
		if _, err := tw.Write(f.Data); err != nil {
			return errors.Wrap(err, "write entry")
		}
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "close tar")
	}
	if err := comp.Close(); err != nil {
		return errors.Wrap(err, "close "+format)
	}
	return nil
}
