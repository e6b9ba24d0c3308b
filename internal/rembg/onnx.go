package rembg

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelLocator resolves a model name to a local weights file, fetching it if needed.
type ModelLocator interface {
	Ensure(ctx context.Context, name string) (string, error)
}

// ONNXConfig configures the in-process ONNX Runtime backend.
type ONNXConfig struct {
	ModelName         string
	SharedLibraryPath string
	IntraOpNumThreads int
	InputName         string
	OutputName        string
}

// ONNXRemover runs a DIS/ISNet segmentation model through ONNX Runtime.
// Every Predict call allocates its own tensors; how many run at once is
// decided by the inference session above it.
type ONNXRemover struct {
	cfg     ONNXConfig
	locator ModelLocator

	mu          sync.RWMutex
	session     *ort.DynamicAdvancedSession
	ownsRuntime bool
}

// NewONNXRemover creates an unloaded backend.
func NewONNXRemover(cfg ONNXConfig, locator ModelLocator) *ONNXRemover {
	if cfg.InputName == "" {
		cfg.InputName = "input_image"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output_image"
	}
	return &ONNXRemover{cfg: cfg, locator: locator}
}

func (r *ONNXRemover) Name() string {
	return r.cfg.ModelName
}

// Load fetches the weights if missing, initializes the runtime and opens the session.
func (r *ONNXRemover) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil
	}

	modelPath, err := r.locator.Ensure(ctx, r.cfg.ModelName)
	if err != nil {
		return fmt.Errorf("locate model %s: %w", r.cfg.ModelName, err)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(r.cfg.SharedLibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime (%s): %w", r.cfg.SharedLibraryPath, err)
		}
		r.ownsRuntime = true
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()

	if r.cfg.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(r.cfg.IntraOpNumThreads); err != nil {
			return fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{r.cfg.InputName},
		[]string{r.cfg.OutputName},
		options,
	)
	if err != nil {
		return fmt.Errorf("open session %s: %w", modelPath, err)
	}

	r.session = session
	return nil
}

// Remove segments input and returns the cutout as PNG.
func (r *ONNXRemover) Remove(ctx context.Context, input []byte, opts Options) ([]byte, error) {
	return RemoveWithMask(ctx, r, input, opts)
}

// Predict implements MaskPredictor.
func (r *ONNXRemover) Predict(ctx context.Context, img image.Image) (*image.Gray, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.session == nil {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := isnetInput
	size := int64(n.size)

	in, err := ort.NewTensor(ort.NewShape(1, 3, size, size), imageToTensor(img, n))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	if err := r.session.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.cfg.ModelName, err)
	}

	pred := out.GetData()
	if len(pred) < n.size*n.size {
		return nil, fmt.Errorf("run %s: short output (%d values)", r.cfg.ModelName, len(pred))
	}

	b := img.Bounds()
	return tensorToMask(pred[:n.size*n.size], n.size, b.Dx(), b.Dy()), nil
}

// Close destroys the session and, if this backend started it, the runtime.
func (r *ONNXRemover) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.session != nil {
		firstErr = r.session.Destroy()
		r.session = nil
	}
	if r.ownsRuntime {
		if err := ort.DestroyEnvironment(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.ownsRuntime = false
	}
	return firstErr
}
