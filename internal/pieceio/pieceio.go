// Package pieceio loads and saves pieces, choosing the codec by file
// extension.
package pieceio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/Mensura/core/cmme"
	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/notation"
)

// Format names a piece file format.
type Format string

// Supported formats.
const (
	FormatMNS  Format = "mns"
	FormatCMME Format = "cmme"
)

// DetectFormat returns the format implied by path's extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mns":
		return FormatMNS, nil
	case ".cmme", ".xml":
		return FormatCMME, nil
	}
	return "", errors.NewUnsupported("piece format", "unknown extension "+filepath.Ext(path))
}

// ParseFormat parses a format name given on the command line.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatMNS:
		return FormatMNS, nil
	case FormatCMME, "xml":
		return FormatCMME, nil
	}
	return "", errors.NewUnsupported("piece format", s)
}

// Decode reads a piece in format f.
func Decode(f Format, name string, r io.Reader) (*music.Piece, error) {
	switch f {
	case FormatMNS:
		return notation.Parse(name, r)
	case FormatCMME:
		return cmme.Read(name, r)
	}
	return nil, errors.NewUnsupported("piece format", string(f))
}

// Encode writes p in format f.
func Encode(f Format, w io.Writer, p *music.Piece) error {
	switch f {
	case FormatMNS:
		return notation.Write(w, p)
	case FormatCMME:
		return cmme.Write(w, p)
	}
	return errors.NewUnsupported("piece format", string(f))
}

// Marshal renders p in format f.
func Marshal(f Format, p *music.Piece) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(f, &buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads the piece at path.
func Load(path string) (*music.Piece, error) {
	f, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer file.Close()
	return Decode(f, path, file)
}

// Save writes p to path, replacing it atomically.
func Save(path string, p *music.Piece) error {
	f, err := DetectFormat(path)
	if err != nil {
		return err
	}
	data, err := Marshal(f, p)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mensura-*")
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIO("close", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewIO("rename", path, err)
	}
	return nil
}
