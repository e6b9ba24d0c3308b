package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is the only error decode reports; codec detail stays server side.
var ErrInvalidImage = errors.New("invalid image")

// DefaultMaxPixels caps width*height of a decoded image when no other limit
// is configured. It matches Pillow's decompression bomb threshold.
const DefaultMaxPixels int64 = 178956970

// ColorMode is the pixel layout of a decoded image.
type ColorMode string

const (
	ModeRGB     ColorMode = "RGB"
	ModeRGBA    ColorMode = "RGBA"
	ModeGray    ColorMode = "L"
	ModeGray16  ColorMode = "I;16"
	ModePalette ColorMode = "P"
	ModeCMYK    ColorMode = "CMYK"
	ModeRGB16   ColorMode = "RGB;16"
	ModeOther   ColorMode = "other"
)

// Normalized reports whether the mode can go to inference as is.
func (m ColorMode) Normalized() bool {
	return m == ModeRGB || m == ModeRGBA
}

// CanonicalImage is a decoded upload whose Mode is always RGB or RGBA.
type CanonicalImage struct {
	Pixels image.Image
	Mode   ColorMode
	// SourceMode is the mode the upload was decoded in, before conversion.
	SourceMode ColorMode
	Format     string
	Width      int
	Height     int
}

// Converted reports whether normalization changed the colour mode.
func (c *CanonicalImage) Converted() bool {
	return c.SourceMode != c.Mode
}

// DecodeAndNormalize parses data in any registered container format and
// converts it to RGB unless it already is RGB or RGBA. Images with more than
// maxPixels pixels are rejected from their header, before any pixel buffer
// is allocated; maxPixels <= 0 means DefaultMaxPixels.
func DecodeAndNormalize(data []byte, maxPixels int64) (img *CanonicalImage, err error) {
	defer func() {
		// Some decoders panic on hostile input.
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: decoder panic: %v", ErrInvalidImage, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, fmt.Errorf("%w: zero sized image", ErrInvalidImage)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d is %d pixels, limit is %d",
			ErrInvalidImage, header.Width, header.Height, pixels, maxPixels)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	bounds := decoded.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: zero sized image", ErrInvalidImage)
	}

	source := DetectMode(decoded)
	pixels, mode := decoded, source
	switch {
	case !source.Normalized():
		pixels, mode = ToRGB(decoded), ModeRGB
	case deep(decoded):
		pixels = toNRGBA(decoded)
	}

	return &CanonicalImage{
		Pixels:     pixels,
		Mode:       mode,
		SourceMode: source,
		Format:     format,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}, nil
}

// DetectMode classifies a decoded image by its concrete type.
func DetectMode(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.NYCbCrA:
		return ModeRGBA
	case *image.RGBA, *image.NRGBA:
		if opaque(m) {
			return ModeRGB
		}
		return ModeRGBA
	case *image.Gray:
		return ModeGray
	case *image.Gray16:
		return ModeGray16
	case *image.Paletted:
		return ModePalette
	case *image.CMYK:
		return ModeCMYK
	case *image.RGBA64, *image.NRGBA64:
		if opaque(m) {
			return ModeRGB16
		}
		return ModeRGBA
	default:
		return ModeOther
	}
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// deep reports whether img stores 16 bits per channel.
func deep(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// toNRGBA reduces img to 8 bits per channel, keeping alpha.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ToRGB flattens img onto an opaque RGBA canvas, dropping any alpha.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if _, gray := img.(*image.Gray); gray {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// EncodePNG serializes the canonical image losslessly for the inference step.
func EncodePNG(img *CanonicalImage) ([]byte, error) {
	if img == nil || img.Pixels == nil {
		return nil, errors.New("encode png: no pixels")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img.Pixels); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// OutputFilename is the download name attached to every result.
const OutputFilename = "removed_bg.png"

// Output is an encoded inference result ready for transport.
type Output struct {
	Data        []byte
	ContentType string
	Filename    string
}

// WrapOutput packages an already encoded PNG without decoding it again.
func WrapOutput(data []byte) Output {
	return Output{
		Data:        data,
		ContentType: "image/png",
		Filename:    OutputFilename,
	}
}
