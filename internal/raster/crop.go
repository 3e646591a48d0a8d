package raster

import (
	"image"
	"image/draw"
	"math"

	"github.com/spherical/paper-extractor/internal/domain"
)

// Cropper cuts normalized-space boxes out of PNG page images.
type Cropper struct{}

// NewCropper creates a new cropper instance
func NewCropper() *Cropper {
	return &Cropper{}
}

// Crop maps box from the 0-1000 space onto the pixel grid of img and returns
// the region as a new PNG. Degenerate boxes still yield at least one pixel in
// each dimension.
func (c *Cropper) Crop(img domain.RasterImage, box domain.BoundingBox) (domain.RasterImage, error) {
	if err := box.Validate(); err != nil {
		return domain.RasterImage{}, err
	}

	src, err := Decode(img)
	if err != nil {
		return domain.RasterImage{}, err
	}

	bounds := src.Bounds()
	rect := PixelRect(box, bounds.Dx(), bounds.Dy()).Add(bounds.Min)

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)

	return Encode(dst)
}

// PixelRect returns the source rectangle for box on a width x height image.
func PixelRect(box domain.BoundingBox, width, height int) image.Rectangle {
	x0, w := axis(box.XMin, box.XMax, width)
	y0, h := axis(box.YMin, box.YMax, height)
	return image.Rect(x0, y0, x0+w, y0+h)
}

// axis maps [lo, hi] in normalized units onto [0, size) pixels.
func axis(lo, hi, size int) (start, length int) {
	scale := float64(size) / domain.NormSpace
	start = int(math.Round(float64(lo) * scale))
	length = int(math.Round(float64(hi-lo) * scale))
	if length < 1 {
		length = 1
	}
	if length > size {
		length = size
	}
	if start+length > size {
		start = size - length
	}
	if start < 0 {
		start = 0
	}
	return start, length
}
