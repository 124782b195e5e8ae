package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompositeCommand(t *testing.T) {
	dir := t.TempDir()
	fg := filepath.Join(dir, "fg.png")
	bg := filepath.Join(dir, "bg.png")
	out := filepath.Join(dir, "out.png")
	writePNG(t, fg, 9, 5, color.NRGBA{})
	writePNG(t, bg, 30, 30, color.NRGBA{G: 255, A: 255})

	stdout, err := run(t, "composite", "--foreground", fg, "--background", bg, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "9x5 image/png")

	img := readPNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 9, 5), img.Bounds())
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, color.NRGBAModel.Convert(img.At(4, 2)))
}

func TestTintCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writePNG(t, in, 2, 2, color.NRGBA{A: 255})

	_, err := run(t, "tint", "--in", in, "-o", out)
	require.NoError(t, err)

	// round(0*0.8 + #66D4FF*0.2)
	got := color.NRGBAModel.Convert(readPNG(t, out).At(0, 0))
	assert.Equal(t, color.NRGBA{R: 20, G: 42, B: 51, A: 255}, got)
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writePNG(t, in, 2, 2, color.NRGBA{A: 255})

	tests := []struct {
		name string
		args []string
	}{
		{"missing flags", []string{"composite", "--foreground", in}},
		{"missing input", []string{"tint", "--in", filepath.Join(dir, "nope.png"), "-o", filepath.Join(dir, "o.png")}},
		{"bad factor", []string{"tint", "--in", in, "-o", filepath.Join(dir, "o.png"), "--factor", "2"}},
		{"bad color", []string{"tint", "--in", in, "-o", filepath.Join(dir, "o.png"), "--color", "nope"}},
		{"bad filter", []string{"composite", "--foreground", in, "--background", in, "-o", filepath.Join(dir, "o.png"), "--filter", "wobbly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
