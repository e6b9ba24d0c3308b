package factory

import (
	"fmt"

	"go-background-remover/internal/config"
	"go-background-remover/internal/rembg"
	"go-background-remover/internal/storage"
)

// BackendType selects where segmentation runs.
type BackendType string

const (
	// ONNXBackend runs the model in process through ONNX Runtime
	ONNXBackend BackendType = config.BackendONNX
	// RemoteBackend forwards images to a rembg HTTP server
	RemoteBackend BackendType = config.BackendRemote
)

// SourceType selects where missing model weights are fetched from.
type SourceType string

const (
	// HTTPSource for HTTP(S) downloads
	HTTPSource SourceType = config.SourceHTTP
	// AzureSource for Azure blob storage
	AzureSource SourceType = config.SourceAzure
	// LocalSource for weights that must already be on disk
	LocalSource SourceType = config.SourceLocal
)

// RemoverFactory creates segmentation backends
type RemoverFactory interface {
	CreateRemover(cfg config.ModelConfig) (rembg.Remover, error)
}

// SourceFactory creates model weight sources
type SourceFactory interface {
	CreateSource(cfg config.ModelConfig) (storage.ModelSource, error)
}

type sourceFactory struct{}

// NewSourceFactory creates a new source factory
func NewSourceFactory() SourceFactory {
	return &sourceFactory{}
}

// CreateSource creates a model source based on cfg.Source
func (f *sourceFactory) CreateSource(cfg config.ModelConfig) (storage.ModelSource, error) {
	switch SourceType(cfg.Source) {
	case HTTPSource:
		return storage.NewHTTPModelSource(cfg.URL), nil
	case AzureSource:
		return storage.NewAzureModelSource(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer, cfg.AzureBlob)
	case LocalSource:
		return storage.LocalModelSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported model source: %s", cfg.Source)
	}
}

type removerFactory struct {
	sources SourceFactory
}

// NewRemoverFactory creates a new remover factory
func NewRemoverFactory(sources SourceFactory) RemoverFactory {
	return &removerFactory{sources: sources}
}

// CreateRemover creates an unloaded backend based on cfg.Backend
func (f *removerFactory) CreateRemover(cfg config.ModelConfig) (rembg.Remover, error) {
	switch BackendType(cfg.Backend) {
	case ONNXBackend:
		source, err := f.sources.CreateSource(cfg)
		if err != nil {
			return nil, err
		}
		return rembg.NewONNXRemover(rembg.ONNXConfig{
			ModelName:         cfg.Name,
			SharedLibraryPath: cfg.ONNXRuntimeLib,
			IntraOpNumThreads: cfg.IntraOpNumThreads,
		}, storage.NewModelStore(cfg.Dir, source)), nil
	case RemoteBackend:
		return rembg.NewRemoteRemover(cfg.RemoteURL, cfg.Name, 0), nil
	default:
		return nil, fmt.Errorf("unsupported model backend: %s", cfg.Backend)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	RemoverFactory RemoverFactory
	SourceFactory  SourceFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	sources := NewSourceFactory()
	return &ComponentFactory{
		RemoverFactory: NewRemoverFactory(sources),
		SourceFactory:  sources,
	}
}
