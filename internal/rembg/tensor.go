package rembg

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"

	"go-background-remover/internal/codec"
)

// normalization describes how a model expects its input tensor.
type normalization struct {
	size int
	mean [3]float32
	std  [3]float32
}

// isnetInput is the DIS/ISNet geometry: 1024x1024 CHW, mean 0.5, std 1.
var isnetInput = normalization{
	size: 1024,
	mean: [3]float32{0.5, 0.5, 0.5},
	std:  [3]float32{1, 1, 1},
}

// imageToTensor resizes img to the model square and lays it out as a
// 1x3xNxN float32 tensor scaled by the brightest channel value.
func imageToTensor(img image.Image, n normalization) []float32 {
	rgb := codec.ToRGB(img)
	scaled := toRGBA(resize.Resize(uint(n.size), uint(n.size), rgb, resize.Lanczos3))

	var peak uint8
	for i, v := range scaled.Pix {
		if i%4 != 3 && v > peak {
			peak = v
		}
	}
	div := float32(max(peak, 1))

	plane := n.size * n.size
	tensor := make([]float32, 3*plane)
	for y := 0; y < n.size; y++ {
		row := scaled.Pix[y*scaled.Stride:]
		for x := 0; x < n.size; x++ {
			idx := y*n.size + x
			for c := 0; c < 3; c++ {
				tensor[c*plane+idx] = (float32(row[x*4+c])/div - n.mean[c]) / n.std[c]
			}
		}
	}
	return tensor
}

// tensorToMask min-max normalizes an NxN prediction to 8 bits and scales it
// back to width x height.
func tensorToMask(pred []float32, size, width, height int) *image.Gray {
	lo, hi := pred[0], pred[0]
	for _, v := range pred {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	gray := image.NewGray(image.Rect(0, 0, size, size))
	if span := hi - lo; span > 0 {
		for i := range gray.Pix {
			gray.Pix[i] = uint8((pred[i] - lo) / span * 255)
		}
	}

	if width == size && height == size {
		return gray
	}
	return toGray(resize.Resize(uint(width), uint(height), gray, resize.Lanczos3))
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
