package sources

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDownscale(t *testing.T) {
	t.Run("Preserves Aspect Ratio For Wide Images", func(t *testing.T) {
		got := Downscale(solid(100, 50, color.RGBA{A: 0xFF}), 10, 10)
		b := got.Bounds()
		if b.Dx() != 10 || b.Dy() != 5 {
			t.Errorf("expected 10x5, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("Preserves Aspect Ratio For Tall Images", func(t *testing.T) {
		got := Downscale(solid(50, 100, color.RGBA{A: 0xFF}), 10, 10)
		b := got.Bounds()
		if b.Dx() != 5 || b.Dy() != 10 {
			t.Errorf("expected 5x10, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("Returns Small Images Unchanged", func(t *testing.T) {
		src := solid(4, 4, color.RGBA{R: 0xFF, A: 0xFF})
		if got := Downscale(src, 10, 10); got != src {
			t.Error("expected the source image back")
		}
	})

	t.Run("Averages Source Blocks", func(t *testing.T) {
		src := image.NewRGBA(image.Rect(0, 0, 2, 2))
		src.SetRGBA(0, 0, color.RGBA{R: 0xFF, A: 0xFF})
		src.SetRGBA(1, 0, color.RGBA{R: 0xFF, A: 0xFF})
		src.SetRGBA(0, 1, color.RGBA{B: 0xFF, A: 0xFF})
		src.SetRGBA(1, 1, color.RGBA{B: 0xFF, A: 0xFF})

		got := Downscale(src, 1, 1)
		r, g, b, _ := got.At(0, 0).RGBA()
		if r>>8 != 0x7F || g != 0 || b>>8 != 0x7F {
			t.Errorf("expected an even red/blue blend, got r=%#x g=%#x b=%#x", r>>8, g>>8, b>>8)
		}
	})

	t.Run("Never Collapses Below One Pixel", func(t *testing.T) {
		got := Downscale(solid(1000, 2, color.RGBA{A: 0xFF}), 10, 10)
		b := got.Bounds()
		if b.Dx() < 1 || b.Dy() < 1 {
			t.Errorf("expected at least one pixel, got %dx%d", b.Dx(), b.Dy())
		}
	})
}
