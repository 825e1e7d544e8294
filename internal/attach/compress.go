package attach

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Compressor shrinks images before upload: it bounds the longest side and
// lowers JPEG quality until the output fits the byte budget or the quality
// floor is reached. Output is always JPEG.
type Compressor struct {
	MaxDimension int
	TargetBytes  int64
	StartQuality int
	MinQuality   int
	QualityStep  int
}

// DefaultCompressor matches the web app's upload limits.
func DefaultCompressor() Compressor {
	return Compressor{
		MaxDimension: 1600,
		TargetBytes:  1 << 20,
		StartQuality: 85,
		MinQuality:   45,
		QualityStep:  10,
	}
}

// Compressed is the result of Compress.
type Compressed struct {
	Name    string
	Data    []byte
	Quality int
	Width   int
	Height  int
}

// Compress recompresses an image. Data that does not decode as an image is
// returned unchanged.
func (c Compressor) Compress(name string, data []byte) (Compressed, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Compressed{Name: name, Data: data}, nil
	}

	b := img.Bounds()
	resized := false
	if c.MaxDimension > 0 && (b.Dx() > c.MaxDimension || b.Dy() > c.MaxDimension) {
		img = imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Lanczos)
		resized = true
	}
	// JPEG has no alpha; flatten onto white so transparent areas are not black.
	flat := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	quality := c.StartQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	step := max(c.QualityStep, 1)
	var buf bytes.Buffer
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return Compressed{}, fmt.Errorf("encode jpeg: %w", err)
		}
		if c.TargetBytes <= 0 || int64(buf.Len()) <= c.TargetBytes || quality-step < c.MinQuality {
			break
		}
		quality -= step
	}

	out := Compressed{
		Name:    jpegName(name),
		Data:    bytes.Clone(buf.Bytes()),
		Quality: quality,
		Width:   flat.Bounds().Dx(),
		Height:  flat.Bounds().Dy(),
	}
	// An already small JPEG is better left alone.
	if !resized && format == "jpeg" && len(data) <= len(out.Data) {
		out.Data = data
		out.Name = name
		out.Quality = 0
	}
	return out, nil
}

func jpegName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "image"
	}
	return base + ".jpg"
}
