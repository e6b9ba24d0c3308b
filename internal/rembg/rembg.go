package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrNotLoaded is returned by Remove when Load has not succeeded.
var ErrNotLoaded = errors.New("rembg: model not loaded")

// Options tune a single Remove call.
type Options struct {
	// PostProcessMask smooths the predicted mask edges before compositing.
	PostProcessMask bool
}

// Remover is a segmentation backend: encoded image in, PNG with alpha out.
type Remover interface {
	// Name identifies the model served by the backend.
	Name() string
	// Load prepares the model. It is called once, before any Remove.
	Load(ctx context.Context) error
	Remove(ctx context.Context, input []byte, opts Options) ([]byte, error)
	Close() error
}

// MaskPredictor produces a single channel foreground mask the size of img.
type MaskPredictor interface {
	Predict(ctx context.Context, img image.Image) (*image.Gray, error)
}

// RemoveWithMask runs the decode, predict, post-process, cutout and encode
// steps shared by every in-process backend.
func RemoveWithMask(ctx context.Context, p MaskPredictor, input []byte, opts Options) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	mask, err := p.Predict(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("predict mask: %w", err)
	}
	if opts.PostProcessMask {
		mask = PostProcessMask(mask)
	}

	cutout, err := Cutout(img, mask)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cutout); err != nil {
		return nil, fmt.Errorf("encode cutout: %w", err)
	}
	return buf.Bytes(), nil
}
