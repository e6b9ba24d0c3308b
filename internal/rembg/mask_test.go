package rembg

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledMask(w, h int, r image.Rectangle) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.SetGray(x, y, color.Gray{Y: 0xff})
		}
	}
	return m
}

func TestPostProcessMask_RemovesSpeckle(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 20, 20))
	m.SetGray(10, 10, color.Gray{Y: 0xff})

	out := PostProcessMask(m)
	for _, v := range out.Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestPostProcessMask_KeepsSolidRegion(t *testing.T) {
	m := filledMask(40, 40, image.Rect(10, 10, 30, 30))

	out := PostProcessMask(m)
	assert.Equal(t, m.Bounds(), out.Bounds())
	assert.Equal(t, uint8(0xff), out.GrayAt(20, 20).Y)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(39, 39).Y)

	for _, v := range out.Pix {
		require.True(t, v == 0 || v == 0xff, "mask must be binary, got %d", v)
	}
}

func TestPostProcessMask_SoftValuesAreThresholded(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 30, 30))
	for i := range m.Pix {
		m.Pix[i] = 100
	}

	out := PostProcessMask(m)
	for _, v := range out.Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestGaussian5x5_Symmetric(t *testing.T) {
	assert.Equal(t, 1.0, gaussian5x5[12])
	for i := 0; i < 25; i++ {
		assert.InDelta(t, gaussian5x5[i], gaussian5x5[24-i], 1e-12)
		assert.LessOrEqual(t, gaussian5x5[i], gaussian5x5[12])
	}
	// Corner weight is exp(-8/8).
	assert.InDelta(t, math.Exp(-1), gaussian5x5[0], 1e-12)
}

func TestPostProcessMask_EdgeStaysNearContour(t *testing.T) {
	m := filledMask(40, 40, image.Rect(10, 10, 30, 30))

	out := PostProcessMask(m)
	assert.Equal(t, uint8(0xff), out.GrayAt(10, 20).Y)
	assert.Equal(t, uint8(0), out.GrayAt(8, 20).Y)
}

func TestCutout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 0xff})
	img.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 0xff})

	mask := image.NewGray(image.Rect(0, 0, 2, 1))
	mask.SetGray(0, 0, color.Gray{Y: 0xff})

	out, err := Cutout(img, mask)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 0xff}, out.NRGBAAt(0, 0))
	assert.Equal(t, uint8(0), out.NRGBAAt(1, 0).A)
	assert.True(t, HasTransparency(out))
}

func TestCutout_PartialAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 0xff})
	mask := image.NewGray(image.Rect(0, 0, 1, 1))
	mask.SetGray(0, 0, color.Gray{Y: 0x80})

	out, err := Cutout(img, mask)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), out.NRGBAAt(0, 0).A)
}

func TestCutout_OffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 7, 7))
	for y := 5; y < 7; y++ {
		for x := 5; x < 7; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 40, A: 0xff})
		}
	}
	img.SetRGBA(5, 5, color.RGBA{R: 9, A: 0xff})

	out, err := Cutout(img, filledMask(2, 2, image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, uint8(9), out.NRGBAAt(0, 0).R)
	assert.False(t, HasTransparency(out))
}

func TestCutout_SizeMismatch(t *testing.T) {
	_, err := Cutout(image.NewRGBA(image.Rect(0, 0, 4, 4)), image.NewGray(image.Rect(0, 0, 3, 4)))
	assert.Error(t, err)
}
