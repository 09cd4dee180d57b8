package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDataURLRoundTrip(t *testing.T) {
	src := Solid(64, 32, color.NRGBA{R: 200, G: 10, B: 30, A: 255})

	url, err := EncodeDataURL(src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, PNGDataURLPrefix))

	img, err := DecodeBase64(url)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
	assert.Equal(t, src.Pix, img.Pix)
}

func TestDecodeDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 150, B: 200, A: 0})
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	data, err := EncodePNG(src)
	require.NoError(t, err)

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	for i := 3; i < len(img.Pix); i += 4 {
		assert.Equal(t, uint8(0xff), img.Pix[i])
	}
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, img.NRGBAAt(1, 1))
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, Solid(40, 20, color.White), nil))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode(nil)
	assert.Error(t, err)

	_, _, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = DecodeBase64("data:image/png;base64")
	assert.Error(t, err)
}

func TestDecodeLimited(t *testing.T) {
	// A flat 3000x3000 PNG compresses to a few KB but declares 9M pixels
	data, err := EncodePNG(Solid(3000, 3000, color.Black))
	require.NoError(t, err)
	assert.Less(t, len(data), 256<<10)

	_, _, err = DecodeLimited(data, 2048*2048)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
	assert.Contains(t, err.Error(), "3000x3000")

	img, format, err := DecodeLimited(data, 3000*3000)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 3000, 3000), img.Bounds())

	small, err := EncodePNG(Solid(16, 16, color.White))
	require.NoError(t, err)
	_, _, err = DecodeLimited(small, 256)
	assert.NoError(t, err)
	_, _, err = DecodeLimited(small, 255)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

func TestResize(t *testing.T) {
	img := Resize(Solid(10, 10, color.Black), 96, 64)
	assert.Equal(t, image.Rect(0, 0, 96, 64), img.Bounds())

	same := Resize(Solid(8, 8, color.White), 8, 8)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, same.NRGBAAt(3, 3))
}
