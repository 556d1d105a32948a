package sources

import (
	"image"
	"image/color"
)

// Downscale box-averages src into an image no larger than maxW by maxH
// pixels, preserving aspect ratio. Images already inside the bounds are
// returned as-is. Meant for terminal previews, where the target is a few
// dozen pixels on a side, so the quadratic sampling cost stays trivial.
func Downscale(src image.Image, maxW, maxH int) image.Image {
	if maxW < 1 {
		maxW = 1
	}
	if maxH < 1 {
		maxH = 1
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || (w <= maxW && h <= maxH) {
		return src
	}

	outW, outH := maxW, h*maxW/w
	if outH > maxH {
		outW, outH = w*maxH/h, maxH
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		sy0 := b.Min.Y + y*h/outH
		sy1 := b.Min.Y + (y+1)*h/outH
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for x := 0; x < outW; x++ {
			sx0 := b.Min.X + x*w/outW
			sx1 := b.Min.X + (x+1)*w/outW
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var rs, gs, bs, n uint64
			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					r, g, b2, _ := src.At(sx, sy).RGBA()
					rs += uint64(r)
					gs += uint64(g)
					bs += uint64(b2)
					n++
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: uint8(rs / n >> 8),
				G: uint8(gs / n >> 8),
				B: uint8(bs / n >> 8),
				A: 0xFF,
			})
		}
	}
	return dst
}
