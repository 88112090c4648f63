package api

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/Mensura/core/errors"
)

// maxPathLength bounds user-supplied piece paths.
const maxPathLength = 4096

// ValidatePath checks a user-supplied path relative to baseDir and returns
// it cleaned. Absolute paths, ".." components and control characters are
// rejected.
func ValidatePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", errors.NewValidation("path", "path cannot be empty")
	}
	if len(userPath) > maxPathLength {
		return "", errors.NewValidation("path", "path too long")
	}
	if strings.ContainsFunc(userPath, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return "", errors.NewValidation("path", "path contains control characters")
	}
	if strings.Contains(userPath, "..") {
		return "", errors.NewValidation("path", "path contains '..'")
	}
	clean := filepath.Clean(userPath)
	if filepath.IsAbs(clean) || !filepath.IsLocal(clean) {
		return "", errors.NewValidation("path", "path must be relative to the pieces directory")
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", errors.Wrap(err, "resolve pieces directory")
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, clean))
	if err != nil {
		return "", errors.Wrap(err, "resolve path")
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.NewValidation("path", "path escapes the pieces directory")
	}
	return clean, nil
}

// ValidateID checks that id is a session ID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewValidation("id", fmt.Sprintf("invalid piece ID %q", id))
	}
	return nil
}
