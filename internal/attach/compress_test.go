package attach

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCompressResizesAndConvertsToJPEG(t *testing.T) {
	c := DefaultCompressor()
	c.MaxDimension = 400

	out, err := c.Compress("photo.png", pngBytes(t, 1000, 500))
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "photo.jpg" {
		t.Errorf("Name = %q, want photo.jpg", out.Name)
	}
	if out.Width != 400 || out.Height != 200 {
		t.Errorf("size = %dx%d, want 400x200", out.Width, out.Height)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if format != "jpeg" || cfg.Width != 400 {
		t.Errorf("decoded %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestCompressLowersQualityTowardBudget(t *testing.T) {
	c := DefaultCompressor()
	c.MaxDimension = 0
	c.TargetBytes = 1

	out, err := c.Compress("noise.png", pngBytes(t, 256, 256))
	if err != nil {
		t.Fatal(err)
	}
	if out.Quality != c.MinQuality {
		t.Errorf("Quality = %d, want floor %d", out.Quality, c.MinQuality)
	}
}

func TestCompressKeepsSmallJPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 10}); err != nil {
		t.Fatal(err)
	}
	out, err := DefaultCompressor().Compress("tiny.jpeg", buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Data, buf.Bytes()) || out.Name != "tiny.jpeg" {
		t.Errorf("small jpeg was re-encoded (%d -> %d bytes)", buf.Len(), len(out.Data))
	}
}

func TestCompressPassesThroughNonImages(t *testing.T) {
	data := []byte("%PDF-1.4 not an image")
	out, err := DefaultCompressor().Compress("brochure.pdf", data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "brochure.pdf" || !bytes.Equal(out.Data, data) {
		t.Errorf("non-image modified: %+v", out.Name)
	}
}
