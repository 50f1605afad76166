// ABOUTME: Renders an image as rows of shade characters for terminal previews.
// ABOUTME: Each cell averages the luminance of the pixels it covers.
package preview

import (
	"image"
	"image/color"
	"strings"
)

// ramp runs from dark to light.
const ramp = " .:-=+*#%@"

// Shade renders img in at most cols×rows cells. Terminal cells are about twice
// as tall as wide, so the vertical step is doubled to keep the aspect ratio.
func Shade(img image.Image, cols, rows int) []string {
	b := img.Bounds()
	if b.Empty() || cols <= 0 || rows <= 0 {
		return nil
	}
	w, h := Fit(b.Dx(), max(1, b.Dy()/2), cols, rows)
	cellW := float64(b.Dx()) / float64(w)
	cellH := float64(b.Dy()) / float64(h)

	lines := make([]string, 0, h)
	var sb strings.Builder
	for cy := 0; cy < h; cy++ {
		sb.Reset()
		y0 := b.Min.Y + int(float64(cy)*cellH)
		y1 := max(y0+1, b.Min.Y+int(float64(cy+1)*cellH))
		for cx := 0; cx < w; cx++ {
			x0 := b.Min.X + int(float64(cx)*cellW)
			x1 := max(x0+1, b.Min.X+int(float64(cx+1)*cellW))
			sb.WriteByte(ramp[shadeIndex(average(img, x0, y0, x1, y1))])
		}
		lines = append(lines, sb.String())
	}
	return lines
}

// average returns mean 16-bit luminance over [x0,x1)×[y0,y1), sampling at most 8×8 points.
func average(img image.Image, x0, y0, x1, y1 int) uint32 {
	stepX := max(1, (x1-x0)/8)
	stepY := max(1, (y1-y0)/8)
	var sum, n uint64
	for y := y0; y < y1; y += stepY {
		for x := x0; x < x1; x += stepX {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			sum += uint64(g.Y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return uint32(sum / n)
}

func shadeIndex(lum uint32) int {
	return int(lum) * (len(ramp) - 1) / 0xffff
}
