package rembg

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	maskBlurSigma = 2.0
	maskThreshold = 127
)

// gaussian5x5 is a 5x5 Gaussian window with sigma maskBlurSigma.
var gaussian5x5 = func() [25]float64 {
	var k [25]float64
	for y := -2; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			k[(y+2)*5+x+2] = math.Exp(-float64(x*x+y*y) / (2 * maskBlurSigma * maskBlurSigma))
		}
	}
	return k
}()

// PostProcessMask cleans a predicted mask: a morphological opening with a
// 3x3 elliptical kernel removes speckles, a 5x5 Gaussian blur (sigma 2)
// smooths the contour and a threshold at 127 makes it binary again.
func PostProcessMask(mask *image.Gray) *image.Gray {
	opened := dilate(erode(mask))

	blurred := imaging.Convolve5x5(opened, gaussian5x5, &imaging.ConvolveOptions{Normalize: true})

	b := opened.Bounds()
	out := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		src := blurred.Pix[y*blurred.Stride : y*blurred.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			// Blur output is NRGBA with R=G=B for a gray source.
			if src[x*4] >= maskThreshold {
				dst[x] = 0xff
			}
		}
	}
	return out
}

// cross is the 3x3 elliptical structuring element.
var cross = [5]image.Point{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func erode(m *image.Gray) *image.Gray {
	return morph(m, func(acc, v uint8) uint8 { return min(acc, v) }, 0xff)
}

func dilate(m *image.Gray) *image.Gray {
	return morph(m, func(acc, v uint8) uint8 { return max(acc, v) }, 0)
}

// morph applies op over the cross neighbourhood; out of bounds neighbours
// are skipped, which matches replicated borders for min/max.
func morph(m *image.Gray, op func(acc, v uint8) uint8, init uint8) *image.Gray {
	b := m.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			acc := init
			for _, d := range cross {
				p := image.Pt(x+d.X, y+d.Y)
				if !p.In(b) {
					continue
				}
				acc = op(acc, m.GrayAt(p.X, p.Y).Y)
			}
			out.SetGray(x, y, color.Gray{Y: acc})
		}
	}
	return out
}

// Cutout composites img over a fully transparent canvas using mask as alpha.
func Cutout(img image.Image, mask *image.Gray) (*image.NRGBA, error) {
	b := img.Bounds()
	if mask.Bounds().Dx() != b.Dx() || mask.Bounds().Dy() != b.Dy() {
		return nil, fmt.Errorf("cutout: mask %v does not match image %v", mask.Bounds().Size(), b.Size())
	}

	mb := mask.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := mask.GrayAt(mb.Min.X+x, mb.Min.Y+y).Y
			if a == 0 {
				continue
			}
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c.A = uint8(uint16(c.A) * uint16(a) / 0xff)
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

// HasTransparency reports whether any pixel is not fully opaque.
func HasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}
