package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/color/palette"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 lossless WebP used by browser feature detection.
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func TestDecodeAndNormalize_Modes(t *testing.T) {
	opaqueRGBA := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range opaqueRGBA.Pix {
		opaqueRGBA.Pix[i] = 0xff
	}
	translucent := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	translucent.SetNRGBA(1, 1, color.NRGBA{R: 200, A: 128})

	paletted := image.NewPaletted(image.Rect(0, 0, 4, 4), palette.Plan9)
	paletted.SetColorIndex(2, 2, 10)

	gray16 := image.NewGray16(image.Rect(0, 0, 4, 4))
	gray16.SetGray16(0, 0, color.Gray16{Y: 0xffff})

	opaque16 := image.NewRGBA64(image.Rect(0, 0, 4, 4))
	for i := range opaque16.Pix {
		opaque16.Pix[i] = 0xff
	}
	translucent16 := image.NewNRGBA64(image.Rect(0, 0, 4, 4))
	translucent16.SetNRGBA64(1, 1, color.NRGBA64{R: 0xffff, A: 0x8000})

	tests := []struct {
		name       string
		data       []byte
		wantSource ColorMode
		wantMode   ColorMode
		wantFormat string
	}{
		{"opaque png", encodePNG(t, opaqueRGBA), ModeRGB, ModeRGB, "png"},
		{"png with alpha", encodePNG(t, translucent), ModeRGBA, ModeRGBA, "png"},
		{"grayscale png", encodePNG(t, grayImage(4, 4)), ModeGray, ModeRGB, "png"},
		{"16-bit grayscale png", encodePNG(t, gray16), ModeGray16, ModeRGB, "png"},
		{"palette png", encodePNG(t, paletted), ModePalette, ModeRGB, "png"},
		{"16-bit rgb png", encodePNG(t, opaque16), ModeRGB16, ModeRGB, "png"},
		{"16-bit png with alpha", encodePNG(t, translucent16), ModeRGBA, ModeRGBA, "png"},
		{"jpeg", encodeJPEG(t, opaqueRGBA), ModeRGB, ModeRGB, "jpeg"},
		{"grayscale jpeg", encodeJPEG(t, grayImage(8, 8)), ModeGray, ModeRGB, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeAndNormalize(tt.data, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, img.SourceMode)
			assert.Equal(t, tt.wantMode, img.Mode)
			assert.Equal(t, tt.wantFormat, img.Format)
			assert.True(t, img.Mode.Normalized())
			assert.Equal(t, tt.wantSource != tt.wantMode, img.Converted())
			assert.Equal(t, img.Pixels.Bounds().Dx(), img.Width)
			assert.Equal(t, img.Pixels.Bounds().Dy(), img.Height)
		})
	}
}

func TestDecodeAndNormalize_WebP(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)

	img, err := DecodeAndNormalize(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "webp", img.Format)
	assert.True(t, img.Mode.Normalized())
	assert.Equal(t, 1, img.Width)
}

func TestDecodeAndNormalize_Invalid(t *testing.T) {
	valid := encodePNG(t, grayImage(4, 4))

	tests := map[string][]byte{
		"empty":           nil,
		"text file":       []byte("this is definitely not an image"),
		"truncated png":   valid[:len(valid)/2],
		"png header only": valid[:8],
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			img, err := DecodeAndNormalize(data, 0)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestDecodeAndNormalize_16BitAlphaKept(t *testing.T) {
	src := image.NewNRGBA64(image.Rect(0, 0, 2, 2))
	src.SetNRGBA64(0, 0, color.NRGBA64{R: 0xffff, G: 0x8080, A: 0xffff})

	img, err := DecodeAndNormalize(encodePNG(t, src), 0)
	require.NoError(t, err)

	pixels, ok := img.Pixels.(*image.NRGBA)
	require.True(t, ok, "16-bit input must be reduced to 8 bits, got %T", img.Pixels)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0x80, A: 0xff}, pixels.NRGBAAt(0, 0))
	assert.Equal(t, uint8(0), pixels.NRGBAAt(1, 1).A)
}

func TestDecodeAndNormalize_PixelLimit(t *testing.T) {
	small := encodePNG(t, image.NewGray(image.Rect(0, 0, 10, 10)))

	img, err := DecodeAndNormalize(small, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Width)

	img, err = DecodeAndNormalize(small, 99)
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDecodeAndNormalize_HugeDimensionsRejected(t *testing.T) {
	// A zero filled grayscale PNG is tiny on the wire whatever its dimensions.
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	require.NoError(t, enc.Encode(&buf, image.NewGray(image.Rect(0, 0, 3000, 2000))))
	require.Less(t, buf.Len(), 64*1024)

	img, err := DecodeAndNormalize(buf.Bytes(), 1_000_000)
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Contains(t, err.Error(), "limit")
}

func TestToRGB_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(2, 2, 4, 4))
	src.SetNRGBA(2, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 0x40})

	dst := ToRGB(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), dst.Bounds())
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 0xff}, dst.RGBAAt(0, 0))
	assert.True(t, dst.Opaque())
}

func TestToRGB_Gray(t *testing.T) {
	dst := ToRGB(grayImage(3, 1))
	assert.Equal(t, color.RGBA{R: 7, G: 7, B: 7, A: 0xff}, dst.RGBAAt(1, 0))
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	img, err := DecodeAndNormalize(encodeJPEG(t, grayImage(16, 8)), 0)
	require.NoError(t, err)

	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 16, 8), decoded.Bounds())
}

func TestEncodePNG_NoPixels(t *testing.T) {
	_, err := EncodePNG(nil)
	assert.Error(t, err)
	_, err = EncodePNG(&CanonicalImage{})
	assert.Error(t, err)
}

func TestWrapOutput(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G'}
	out := WrapOutput(data)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, OutputFilename, out.Filename)
	assert.Equal(t, data, out.Data)
}
