package raster

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
)

func TestDataURI(t *testing.T) {
	img := quadrantImage(t, 40, 30)

	uri := DataURI(img)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, img.Data, data)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(domain.RasterImage{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	_, err = Decode(domain.RasterImage{Data: []byte("not a png"), Width: 1, Height: 1})
	assert.True(t, domain.IsType(err, domain.ErrorTypeDecode))
}
