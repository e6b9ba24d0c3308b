package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go-background-remover/internal/codec"
	apperrors "go-background-remover/internal/errors"
	"go-background-remover/internal/inference"
	"go-background-remover/internal/observer"
	"go-background-remover/pkg/validation"
)

// Segmenter is the inference session as seen by the pipeline.
type Segmenter interface {
	IsReady() bool
	ModelName() string
	Segment(ctx context.Context, png []byte) ([]byte, error)
}

// BackgroundRemovalService runs an upload through validate, decode,
// segment and encode.
type BackgroundRemovalService interface {
	// Ready reports whether the model is loaded.
	Ready() bool
	ModelName() string
	// Begin records a newly received request.
	Begin(ctx context.Context, requestID string) *Request
	// Process runs an accepted upload to ENCODED. On failure the request is
	// moved to ERRORED and the same error is returned.
	Process(ctx context.Context, req *Request, file *validation.UploadedFile) (codec.Output, *apperrors.AppError)
	// Validator exposes the upload policy, e.g. for size limit messages.
	Validator() *validation.UploadValidator
}

type backgroundRemovalService struct {
	session   Segmenter
	validator *validation.UploadValidator
	publisher observer.Subject
}

// NewBackgroundRemovalService creates the request pipeline.
func NewBackgroundRemovalService(
	session Segmenter,
	validator *validation.UploadValidator,
	publisher observer.Subject,
) BackgroundRemovalService {
	return &backgroundRemovalService{
		session:   session,
		validator: validator,
		publisher: publisher,
	}
}

func (s *backgroundRemovalService) Ready() bool {
	return s.session.IsReady()
}

func (s *backgroundRemovalService) ModelName() string {
	return s.session.ModelName()
}

func (s *backgroundRemovalService) Validator() *validation.UploadValidator {
	return s.validator
}

func (s *backgroundRemovalService) Begin(ctx context.Context, requestID string) *Request {
	return newRequest(ctx, requestID, s.publisher)
}

func (s *backgroundRemovalService) Process(ctx context.Context, req *Request, file *validation.UploadedFile) (codec.Output, *apperrors.AppError) {
	if !s.session.IsReady() {
		return codec.Output{}, req.Fail(apperrors.NewNotReadyError(inference.ErrNotReady))
	}

	// Validate upload
	result := s.validator.Validate(file)
	if !result.Accepted {
		cause := fmt.Errorf("upload rejected: %s", result.Reason)
		if result.Reason == validation.ReasonTooLarge {
			return codec.Output{}, req.Fail(apperrors.NewPayloadTooLargeError(result.Message, cause))
		}
		return codec.Output{}, req.Fail(apperrors.NewInvalidFileError(result.Message, cause))
	}
	if err := req.Advance(observer.StageValidated, map[string]interface{}{"filename": result.Filename}); err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}

	data, err := io.ReadAll(file.Content)
	if err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, fmt.Errorf("read upload: %w", err)))
	}

	// Decode and normalize
	img, err := codec.DecodeAndNormalize(data, s.validator.MaxImagePixels())
	if err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInvalidImageError(err))
	}
	input, err := codec.EncodePNG(img)
	if err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}
	meta := map[string]interface{}{
		"format": img.Format,
		"width":  img.Width,
		"height": img.Height,
		"mode":   img.Mode,
	}
	if img.Converted() {
		meta["converted_from"] = img.SourceMode
	}
	if err := req.Advance(observer.StageDecoded, meta); err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}

	// Segment
	out, err := s.session.Segment(ctx, input)
	if err != nil {
		if errors.Is(err, inference.ErrNotReady) {
			return codec.Output{}, req.Fail(apperrors.NewNotReadyError(err))
		}
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}
	if err := req.Advance(observer.StageSegmented, map[string]interface{}{"model": s.session.ModelName()}); err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}

	output := codec.WrapOutput(out)
	if err := req.Advance(observer.StageEncoded, map[string]interface{}{"bytes": len(output.Data)}); err != nil {
		return codec.Output{}, req.Fail(apperrors.NewInternalError(genericMessage, err))
	}
	return output, nil
}

const genericMessage = "An error occurred while processing your image. Please try again."
