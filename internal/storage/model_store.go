package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"go-background-remover/internal/logger"
)

// ErrModelNotFound is returned when a model is missing and nothing can fetch it.
var ErrModelNotFound = errors.New("model not found")

// ModelSource is where missing weights are fetched from.
type ModelSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Describe() string
}

// LocalModelSource never downloads; the weights must already be in the model dir.
type LocalModelSource struct{}

func (LocalModelSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: %s (MODEL_SOURCE=local)", ErrModelNotFound, name)
}

func (LocalModelSource) Describe() string {
	return "local"
}

// ModelStore keeps model weights in a directory, fetching missing ones on demand.
type ModelStore struct {
	dir    string
	source ModelSource
	mu     sync.Mutex
}

func NewModelStore(dir string, source ModelSource) *ModelStore {
	return &ModelStore{dir: dir, source: source}
}

// Path is where the weights for name live.
func (s *ModelStore) Path(name string) string {
	return filepath.Join(s.dir, name+".onnx")
}

// Ensure returns the local path of the weights for name, downloading them
// first if needed. A partial download never appears under the final name.
func (s *ModelStore) Ensure(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	log := logger.WithFields(logrus.Fields{
		"model":  name,
		"source": s.source.Describe(),
		"path":   path,
	})
	log.Info("Downloading model weights")

	body, err := s.source.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(s.dir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write model %s: %w", name, err)
	}
	if written == 0 {
		return "", fmt.Errorf("%w: %s downloaded empty", ErrModelNotFound, name)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install model %s: %w", name, err)
	}

	log.WithField("bytes", written).Info("Model weights downloaded")
	return path, nil
}
