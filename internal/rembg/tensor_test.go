package rembg

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallInput = normalization{
	size: 4,
	mean: [3]float32{0.5, 0.5, 0.5},
	std:  [3]float32{1, 1, 1},
}

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestImageToTensor_Layout(t *testing.T) {
	tensor := imageToTensor(uniform(8, 8, color.RGBA{R: 255, G: 0, B: 0, A: 255}), smallInput)
	require.Len(t, tensor, 3*4*4)

	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 0.5, tensor[i], 0.01, "red plane")
		assert.InDelta(t, -0.5, tensor[plane+i], 0.01, "green plane")
		assert.InDelta(t, -0.5, tensor[2*plane+i], 0.01, "blue plane")
	}
}

func TestImageToTensor_Black(t *testing.T) {
	tensor := imageToTensor(uniform(3, 5, color.RGBA{A: 255}), smallInput)
	for _, v := range tensor {
		assert.InDelta(t, -0.5, v, 0.001)
	}
}

func TestImageToTensor_IgnoresAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 128, 128, 128, 0
	}

	tensor := imageToTensor(src, smallInput)
	for _, v := range tensor {
		assert.InDelta(t, 0.5, v, 0.01)
	}
}

func TestTensorToMask_MinMax(t *testing.T) {
	pred := make([]float32, 16)
	for i := range pred {
		pred[i] = float32(i) - 3
	}

	mask := tensorToMask(pred, 4, 4, 4)
	assert.Equal(t, uint8(0), mask.Pix[0])
	assert.Equal(t, uint8(255), mask.Pix[15])
}

func TestTensorToMask_Flat(t *testing.T) {
	pred := make([]float32, 16)
	for i := range pred {
		pred[i] = 0.7
	}

	mask := tensorToMask(pred, 4, 4, 4)
	for _, v := range mask.Pix {
		assert.Equal(t, uint8(0), v)
	}
}

func TestTensorToMask_ResizesToSource(t *testing.T) {
	pred := make([]float32, 16)
	pred[5] = 1

	mask := tensorToMask(pred, 4, 10, 3)
	assert.Equal(t, image.Rect(0, 0, 10, 3), mask.Bounds())
}
