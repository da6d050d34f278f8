package imagegen

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// PlaceholderPNG renders the flat gray placeholder image used when no
// provider could produce a real one.
func PlaceholderPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{R: 0xD9, G: 0xD9, B: 0xD9, A: 0xFF}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, gray)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
