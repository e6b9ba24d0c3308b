package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"go-background-remover/internal/logger"
	"go-background-remover/internal/rembg"
)

var (
	// ErrNotReady is returned by Segment before a successful Initialize.
	ErrNotReady = errors.New("inference session not ready")
	// ErrAlreadyClosed is returned by Initialize after Close.
	ErrAlreadyClosed = errors.New("inference session closed")
)

// Session is the process-wide handle on the segmentation model. It is
// initialized once before the listener binds and shared by every request.
type Session struct {
	remover rembg.Remover
	gate    *semaphore.Weighted
	slots   int64

	once    sync.Once
	initErr error
	ready   atomic.Bool
	closed  atomic.Bool
}

// NewSession wraps remover. concurrency bounds simultaneous Segment calls;
// values below 1 mean one.
func NewSession(remover rembg.Remover, concurrency int64) *Session {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Session{
		remover: remover,
		gate:    semaphore.NewWeighted(concurrency),
		slots:   concurrency,
	}
}

// Initialize loads the model. Only the first call does any work; later
// calls return its outcome.
func (s *Session) Initialize(ctx context.Context) error {
	s.once.Do(func() {
		if s.closed.Load() {
			s.initErr = ErrAlreadyClosed
			return
		}

		start := time.Now()
		log := logger.WithField("model", s.remover.Name())
		log.Info("Loading background removal model")

		if err := s.remover.Load(ctx); err != nil {
			s.initErr = fmt.Errorf("load model %s: %w", s.remover.Name(), err)
			log.WithError(err).Error("Failed to load model")
			return
		}

		s.ready.Store(true)
		log.WithField("load_time", time.Since(start).String()).Info("Model loaded successfully")
	})
	return s.initErr
}

// IsReady reports whether Segment can be called.
func (s *Session) IsReady() bool {
	return s.ready.Load()
}

// ModelName identifies the loaded model.
func (s *Session) ModelName() string {
	return s.remover.Name()
}

// Segment removes the background from a PNG and returns a PNG with alpha.
// Calls beyond the concurrency limit wait for a slot or for ctx.
func (s *Session) Segment(ctx context.Context, input []byte) ([]byte, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for inference slot: %w", err)
	}
	defer s.gate.Release(1)

	out, err := s.remover.Remove(ctx, input, rembg.Options{PostProcessMask: true})
	if err != nil {
		if errors.Is(err, rembg.ErrNotLoaded) {
			return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return nil, fmt.Errorf("segment: %w", err)
	}
	return out, nil
}

// Close waits for in-flight inference up to ctx, then releases the model.
// Segment fails with ErrNotReady afterwards.
func (s *Session) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.ready.Store(false)

	if err := s.gate.Acquire(ctx, s.slots); err != nil {
		logger.WithError(err).Warn("Closing model with inference still running")
		return s.remover.Close()
	}
	defer s.gate.Release(s.slots)
	return s.remover.Close()
}
