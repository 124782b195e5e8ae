// Package security validates user supplied names before they reach the
// filesystem, protecting the asset tree against path traversal.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyName   = errors.New("empty name")
	ErrInvalidName = errors.New("name must be a single path element")
	ErrOutsideRoot = errors.New("path escapes asset root")
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".bmp": {}, ".avif": {}, ".tif": {}, ".tiff": {}, ".svg": {},
}

// ValidatePathElement checks that s names exactly one entry inside a
// directory. It rejects separators, "." and "..", and NUL bytes.
func ValidatePathElement(s string) error {
	if s == "" {
		return ErrEmptyName
	}
	if s == "." || s == ".." {
		return fmt.Errorf("%q: %w", s, ErrInvalidName)
	}
	if strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%q: %w", s, ErrInvalidName)
	}
	if filepath.VolumeName(s) != "" || filepath.Base(s) != s {
		return fmt.Errorf("%q: %w", s, ErrInvalidName)
	}
	return nil
}

// SafeJoin joins elems under root after validating each element, and
// verifies the cleaned result still lies inside root.
func SafeJoin(root string, elems ...string) (string, error) {
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, root)
	for _, e := range elems {
		if err := ValidatePathElement(e); err != nil {
			return "", err
		}
		parts = append(parts, e)
	}

	p := filepath.Join(parts...)
	rel, err := filepath.Rel(filepath.Clean(root), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// IsImageName reports whether name carries an image file extension.
func IsImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
