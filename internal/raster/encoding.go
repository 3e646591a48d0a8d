// Package raster holds the PNG helpers and the normalized-space region cropper.
package raster

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/spherical/paper-extractor/internal/domain"
)

const dataURIPrefix = "data:" + domain.PNGMimeType + ";base64,"

// Encode converts a decoded image into a PNG RasterImage.
func Encode(img image.Image) (domain.RasterImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.RasterImage{}, domain.RenderError("encode png", err)
	}
	b := img.Bounds()
	return domain.RasterImage{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// Decode parses the PNG bytes of a RasterImage.
func Decode(r domain.RasterImage) (image.Image, error) {
	if len(r.Data) == 0 {
		return nil, domain.ValidationError("raster image is empty", nil)
	}
	img, err := png.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return nil, domain.DecodeError("decode png", err)
	}
	return img, nil
}

// DataURI renders the image as a PNG data URI for local display.
func DataURI(r domain.RasterImage) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(r.Data)
}
