package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
)

// quadrantImage paints the four quadrants of a w x h image in distinct colors.
func quadrantImage(t *testing.T, w, h int) domain.RasterImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	colors := []color.RGBA{
		{255, 0, 0, 255}, {0, 255, 0, 255},
		{0, 0, 255, 255}, {255, 255, 0, 255},
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if x >= w/2 {
				q++
			}
			if y >= h/2 {
				q += 2
			}
			img.Set(x, y, colors[q])
		}
	}
	r, err := Encode(img)
	require.NoError(t, err)
	return r
}

func TestCrop_Dimensions(t *testing.T) {
	page := quadrantImage(t, 1200, 1600)
	cropper := NewCropper()

	tests := []struct {
		name  string
		box   domain.BoundingBox
		wantW int
		wantH int
	}{
		{"quarter", domain.BoundingBox{YMin: 100, XMin: 200, YMax: 300, XMax: 400}, 240, 320},
		{"full page", domain.BoundingBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000}, 1200, 1600},
		{"zero height", domain.BoundingBox{YMin: 500, XMin: 0, YMax: 500, XMax: 1000}, 1200, 1},
		{"zero area at edge", domain.BoundingBox{YMin: 1000, XMin: 1000, YMax: 1000, XMax: 1000}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := cropper.Crop(page, tt.box)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, out.Width)
			assert.Equal(t, tt.wantH, out.Height)

			decoded, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, decoded.Bounds().Dx())
			assert.Equal(t, tt.wantH, decoded.Bounds().Dy())
		})
	}
}

func TestCrop_SelectsRegion(t *testing.T) {
	page := quadrantImage(t, 200, 200)

	out, err := NewCropper().Crop(page, domain.BoundingBox{YMin: 600, XMin: 600, YMax: 900, XMax: 900})
	require.NoError(t, err)

	img, err := Decode(out)
	require.NoError(t, err)
	r, g, b, _ := img.At(img.Bounds().Min.X+5, img.Bounds().Min.Y+5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0), b)
}

func TestCrop_RejectsInvalidBox(t *testing.T) {
	page := quadrantImage(t, 100, 100)

	for _, box := range []domain.BoundingBox{
		{YMin: 300, XMin: 0, YMax: 100, XMax: 100},
		{YMin: 0, XMin: -5, YMax: 100, XMax: 100},
		{YMin: 0, XMin: 0, YMax: 100, XMax: 1200},
	} {
		_, err := NewCropper().Crop(page, box)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidBox)
	}
}

func TestCrop_RejectsUndecodableImage(t *testing.T) {
	_, err := NewCropper().Crop(domain.RasterImage{Data: []byte("nope"), Width: 1, Height: 1},
		domain.BoundingBox{YMax: 10, XMax: 10})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeDecode))
}

func TestPixelRect_ScalesFromNormSpace(t *testing.T) {
	rect := PixelRect(domain.BoundingBox{YMin: 100, XMin: 200, YMax: 300, XMax: 400}, 1200, 1600)
	assert.Equal(t, image.Rect(240, 160, 480, 480), rect)
}
