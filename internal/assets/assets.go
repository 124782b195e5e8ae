// Package assets serves background images stored on disk under
// <root>/<projectType>/<name>.
package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	imgpkg "bgfill/internal/image"
	"bgfill/internal/security"
	"bgfill/pkg/logger"
)

const (
	DefaultProjectType = "base"
	DefaultBackground  = "background1.png"

	// MaxAssetBytes bounds a single background file read.
	MaxAssetBytes = 64 << 20
)

type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the on-disk path for a background, rejecting names that
// are not single path elements.
func (s *Store) Path(projectType, name string) (string, error) {
	return security.SafeJoin(s.root, projectType, name)
}

// Read returns the raw bytes of a background. Errors carry the resolved path.
func (s *Store) Read(projectType, name string) ([]byte, string, error) {
	p, err := s.Path(projectType, name)
	if err != nil {
		shown := filepath.Join(s.root, projectType, name)
		return nil, shown, fmt.Errorf("Failed to read background image at %s: %w", shown, err)
	}

	fi, err := os.Stat(p)
	if err == nil && fi.Size() > MaxAssetBytes {
		err = fmt.Errorf("file is %d bytes, limit is %d", fi.Size(), MaxAssetBytes)
	}
	var b []byte
	if err == nil {
		b, err = os.ReadFile(p)
	}
	if err != nil {
		return nil, p, fmt.Errorf("Failed to read background image at %s: %w", p, err)
	}
	return b, p, nil
}

// Load reads and decodes a background. SVG backgrounds are rasterized at
// width x height; raster backgrounds are returned at their native size.
func (s *Store) Load(projectType, name string, width, height int) (image.Image, error) {
	b, p, err := s.Read(projectType, name)
	if err != nil {
		return nil, err
	}

	if imgpkg.IsSVG(b, name) {
		img, err := imgpkg.RasterizeSVG(b, width, height)
		if err != nil {
			return nil, fmt.Errorf("background %s: %w", p, err)
		}
		return img, nil
	}

	img, err := imgpkg.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("background %s: %w", p, err)
	}
	logger.Debug("Loaded background %s (%dx%d)", p, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

// List returns the image files of a project type sorted by name. A missing
// project directory yields an empty list.
func (s *Store) List(projectType string) ([]string, error) {
	dir, err := security.SafeJoin(s.root, projectType)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list backgrounds in %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !security.IsImageName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ProjectTypes returns the subdirectories of the asset root sorted by name.
func (s *Store) ProjectTypes() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list project types in %s: %w", s.root, err)
	}

	types := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && security.ValidatePathElement(e.Name()) == nil {
			types = append(types, e.Name())
		}
	}
	sort.Strings(types)
	return types, nil
}
