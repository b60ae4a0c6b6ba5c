// Package imageio turns image files into the 8-bit gray buffers the detector consumes.
package imageio

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"gpusift/internal/detector"
)

// Load decodes an image file (PNG, JPEG, GIF, TIFF, BMP) and converts it to gray.
// EXIF orientation is applied so that feature coordinates match what viewers show.
func Load(path string) (detector.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return detector.Image{}, fmt.Errorf("failed to open image: %w", err)
	}
	return FromImage(img), nil
}

// FromImage converts any image to a tightly packed gray buffer. *image.Gray
// input is copied row by row without color conversion.
func FromImage(img image.Image) detector.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := detector.Image{Width: width, Height: height, Pix: make([]byte, width*height)}
	if width == 0 || height == 0 {
		out.Pix = nil
		return out
	}

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < height; y++ {
			start := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*width:(y+1)*width], gray.Pix[start:start+width])
		}
		return out
	}

	// imaging.Grayscale yields equal R, G and B channels at a zero origin.
	nrgba := imaging.Grayscale(img)
	for y := 0; y < height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < width; x++ {
			out.Pix[y*width+x] = row[x*4]
		}
	}
	return out
}
