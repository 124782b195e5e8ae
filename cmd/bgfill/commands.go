package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	imgpkg "bgfill/internal/image"
	"bgfill/pkg/logger"
)

func newCompositeCmd() *cobra.Command {
	var fgPath, bgPath, outPath, filter, format string

	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Resize a background to a cutout and draw the cutout over it",
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := imgpkg.ParseFilter(filter)
			if err != nil {
				return err
			}

			fg, err := readImage(fgPath, 0, 0)
			if err != nil {
				return fmt.Errorf("foreground: %w", err)
			}
			w, h := fg.Bounds().Dx(), fg.Bounds().Dy()
			if imgpkg.IsNearlyBlank(fg) {
				logger.Warn("Foreground %s (%dx%d) is nearly transparent", fgPath, w, h)
			}

			bg, err := readImage(bgPath, w, h)
			if err != nil {
				return fmt.Errorf("background: %w", err)
			}

			out, err := imgpkg.Composite(bg, fg, rf)
			if err != nil {
				return err
			}
			return writeImage(cmd, out, outPath, format)
		},
	}

	cmd.Flags().StringVar(&fgPath, "foreground", "", "Cutout image with transparency")
	cmd.Flags().StringVar(&bgPath, "background", "", "Background image (raster or SVG)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file")
	cmd.Flags().StringVar(&filter, "filter", "linear", "Resize filter: nearest, linear, catmullrom, lanczos")
	cmd.Flags().StringVar(&format, "format", "", "Output format: png, webp, avif (default from output extension)")
	_ = cmd.MarkFlagRequired("foreground")
	_ = cmd.MarkFlagRequired("background")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newTintCmd() *cobra.Command {
	var inPath, outPath, hex, format string
	var factor float64

	cmd := &cobra.Command{
		Use:   "tint",
		Short: "Blend an accent color into every non-transparent pixel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if factor < 0 || factor > 1 {
				return fmt.Errorf("factor must be between 0 and 1, got %v", factor)
			}
			c, err := imgpkg.ParseColor(hex)
			if err != nil {
				return err
			}

			img, err := readImage(inPath, 0, 0)
			if err != nil {
				return err
			}
			return writeImage(cmd, imgpkg.Tint(img, c, factor), outPath, format)
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Input image")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file")
	cmd.Flags().StringVar(&hex, "color", imgpkg.DefaultTintHex, "Tint color")
	cmd.Flags().Float64Var(&factor, "factor", imgpkg.DefaultTintFactor, "Blend factor between 0 and 1")
	cmd.Flags().StringVar(&format, "format", "", "Output format: png, webp, avif (default from output extension)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// readImage decodes a raster file, or rasterizes an SVG at w x h.
func readImage(path string, w, h int) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if imgpkg.IsSVG(b, path) {
		if w <= 0 || h <= 0 {
			return nil, errors.New("SVG input needs a target size")
		}
		return imgpkg.RasterizeSVG(b, w, h)
	}
	img, err := imgpkg.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Read %s (%dx%d)", path, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

func writeImage(cmd *cobra.Command, img image.Image, path, format string) error {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	data, ct := imgpkg.EncodeByFormat(img, imgpkg.NormalizeFormat(format))
	if len(data) == 0 {
		return errors.New("encoding produced no data")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, %d bytes\n", path, img.Bounds().Dx(), img.Bounds().Dy(), ct, len(data))
	return nil
}
