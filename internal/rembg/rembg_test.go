package rembg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leftHalf marks the left half of every image as foreground.
type leftHalf struct {
	calls int
	err   error
}

func (p *leftHalf) Predict(_ context.Context, img image.Image) (*image.Gray, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	b := img.Bounds()
	return filledMask(b.Dx(), b.Dy(), image.Rect(0, 0, b.Dx()/2, b.Dy())), nil
}

func encodeSource(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, uniform(w, h, color.RGBA{R: 40, G: 80, B: 120, A: 255})))
	return buf.Bytes()
}

func TestRemoveWithMask(t *testing.T) {
	p := &leftHalf{}

	out, err := RemoveWithMask(context.Background(), p, encodeSource(t, 32, 16), Options{PostProcessMask: true})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.True(t, bytes.HasPrefix(out, pngSignature))

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), decoded.Bounds())

	_, _, _, a := decoded.At(2, 8).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	_, _, _, a = decoded.At(30, 8).RGBA()
	assert.Equal(t, uint32(0), a)
}

func TestRemoveWithMask_Errors(t *testing.T) {
	_, err := RemoveWithMask(context.Background(), &leftHalf{}, []byte("nope"), Options{})
	assert.ErrorContains(t, err, "decode input")

	boom := errors.New("boom")
	_, err = RemoveWithMask(context.Background(), &leftHalf{err: boom}, encodeSource(t, 4, 4), Options{})
	assert.ErrorIs(t, err, boom)
}

func TestONNXRemover_NotLoaded(t *testing.T) {
	r := NewONNXRemover(ONNXConfig{ModelName: "isnet-general-use"}, nil)
	assert.Equal(t, "isnet-general-use", r.Name())

	_, err := r.Remove(context.Background(), encodeSource(t, 4, 4), Options{})
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.NoError(t, r.Close())
}

type failingLocator struct{}

func (failingLocator) Ensure(context.Context, string) (string, error) {
	return "", errors.New("no such model")
}

func TestONNXRemover_LoadLocatorError(t *testing.T) {
	r := NewONNXRemover(ONNXConfig{ModelName: "missing"}, failingLocator{})
	err := r.Load(context.Background())
	assert.ErrorContains(t, err, "locate model missing")
}
