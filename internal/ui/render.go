package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/sources"
)

// renderPreview decodes img and paints it with half-block cells, two pixels
// per terminal row. maxCols and maxRows bound the painted area in cells.
func renderPreview(img *multiplex.Image, maxCols, maxRows int) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("no image data")
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("decode failed: %w", err)
	}
	return paintHalfBlocks(sources.Downscale(decoded, maxCols, maxRows*2)), nil
}

// paintHalfBlocks renders one terminal row per two pixel rows: the upper
// pixel colors the ▀ foreground, the lower one its background.
func paintHalfBlocks(img image.Image) string {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			cell := lipgloss.NewStyle().Foreground(cellColor(img.At(x, y)))
			if y+1 < b.Max.Y {
				cell = cell.Background(cellColor(img.At(x, y+1)))
			}
			sb.WriteString(cell.Render("▀"))
		}
	}
	return sb.String()
}

func cellColor(c color.Color) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8)))
}
