// Package archive reads and writes edition archives: a compressed tar
// holding a piece file and a manifest.json with per-file SHA-256 and BLAKE3
// digests. Both tar.xz and tar.gz are supported.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/Mensura/core/errors"
)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader creates a new archive reader for the given path.
// The compression is chosen from the .tar.xz or .tar.gz suffix.
func NewReader(path string) (*Reader, error) {
	if !IsSupportedFormat(path) {
		return nil, errors.NewUnsupported("archive format", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}

	var reader io.Reader
	var decompressor io.Closer
	switch DetectFormat(path) {
	case FormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("xz reader", path, err)
		}
		reader = xzr
	case FormatTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("gzip reader", path, err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateArchive opens an archive and iterates through its entries.
func IterateArchive(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// ContainsPath checks if the archive contains a path matching the predicate.
func ContainsPath(path string, predicate func(name string) bool) (bool, error) {
	var found bool
	err := IterateArchive(path, func(header *tar.Header, _ io.Reader) (bool, error) {
		if predicate(header.Name) {
			found = true
			return true, nil
		}
		return false, nil
	})
	return found, err
}

// ReadFile reads a specific file from the archive. The leading edition
// directory may be omitted from filename.
func ReadFile(archivePath, filename string) ([]byte, error) {
	var content []byte
	err := IterateArchive(archivePath, func(header *tar.Header, r io.Reader) (bool, error) {
		if entryName(header.Name) == filename || header.Name == filename {
			var err error
			content, err = io.ReadAll(r)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.NewNotFound("archive entry", filename)
	}
	return content, nil
}

// FindFile finds the first file matching the predicate and returns its content.
func FindFile(archivePath string, predicate func(name string) bool) ([]byte, string, error) {
	var content []byte
	var foundName string
	err := IterateArchive(archivePath, func(header *tar.Header, r io.Reader) (bool, error) {
		if header.Typeflag == tar.TypeReg && predicate(header.Name) {
			var err error
			content, err = io.ReadAll(r)
			foundName = header.Name
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, "", err
	}
	if content == nil {
		return nil, "", errors.NewNotFound("archive entry", "matching file")
	}
	return content, foundName, nil
}

// entryName strips the edition directory from a tar entry name.
func entryName(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
