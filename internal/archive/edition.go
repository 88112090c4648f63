package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ManifestName is the manifest entry inside every edition archive.
const ManifestName = "manifest.json"

// ManifestVersion is written to Manifest.Version.
const ManifestVersion = "1"

// Archive formats.
const (
	FormatTarXz   = "tar.xz"
	FormatTarGz   = "tar.gz"
	FormatUnknown = "unknown"
)

// Manifest describes the contents of an edition archive.
type Manifest struct {
	Version      string      `json:"version"`
	EditionID    string      `json:"edition_id"`
	Title        string      `json:"title,omitempty"`
	Composer     string      `json:"composer,omitempty"`
	Piece        string      `json:"piece"`
	SourceFormat string      `json:"source_format,omitempty"`
	Versions     []string    `json:"versions,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty"`
	Files        []FileEntry `json:"files"`
}

// FileEntry records the size and digests of one archived file.
type FileEntry struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// File returns the entry named name, or nil.
func (m *Manifest) File(name string) *FileEntry {
	for i := range m.Files {
		if m.Files[i].Name == name {
			return &m.Files[i]
		}
	}
	return nil
}

// Digest computes the manifest entry for data.
func Digest(name string, data []byte) FileEntry {
	s := sha256.Sum256(data)
	b := blake3.Sum256(data)
	return FileEntry{
		Name:   name,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(s[:]),
		BLAKE3: hex.EncodeToString(b[:]),
	}
}

// EditionID extracts the edition ID from an archive filename by removing
// known extensions.
func EditionID(filename string) string {
	id := filepath.Base(filename)
	for _, ext := range []string{".edition.tar.xz", ".edition.tar.gz", ".tar.xz", ".tar.gz"} {
		if strings.HasSuffix(id, ext) {
			return strings.TrimSuffix(id, ext)
		}
	}
	return id
}

// DetectFormat detects the archive format from the file extension.
func DetectFormat(path string) string {
	switch {
	case strings.HasSuffix(path, ".tar.xz"):
		return FormatTarXz
	case strings.HasSuffix(path, ".tar.gz"):
		return FormatTarGz
	default:
		return FormatUnknown
	}
}

// IsSupportedFormat returns true if the file has a supported archive extension.
func IsSupportedFormat(path string) bool {
	return DetectFormat(path) != FormatUnknown
}

// Extension returns the archive suffix for a compression name as used in
// configuration ("xz" or "gzip").
func Extension(compression string) string {
	if compression == "gzip" {
		return ".tar.gz"
	}
	return ".tar.xz"
}
