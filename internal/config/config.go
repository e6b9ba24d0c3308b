package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go-background-remover/internal/codec"
	"go-background-remover/pkg/validation"
)

// Model backends understood by the factory.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Model weight sources understood by the storage factory.
const (
	SourceHTTP  = "http"
	SourceAzure = "azure"
	SourceLocal = "local"
)

const (
	defaultModelName = "isnet-general-use"
	defaultModelURL  = "https://github.com/danielgatis/rembg/releases/download/v0.0.0/isnet-general-use.onnx"
	mib              = 1024 * 1024
)

type Config struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxFileSize        int64
	MaxRequestBodySize int64
	// MaxImagePixels bounds width*height of a decoded upload.
	MaxImagePixels int64

	// Workers bounds in-flight background removal requests.
	Workers              int
	QueueTimeout         time.Duration
	InferenceConcurrency int64

	Model ModelConfig
}

type ModelConfig struct {
	Backend string
	Name    string
	Dir     string
	URL     string
	Source  string

	ONNXRuntimeLib    string
	IntraOpNumThreads int
	RemoteURL         string
	AzureAccount      string
	AzureKey          string
	AzureContainer    string
	AzureBlob         string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// MaxFileSizeMB renders the upload limit the way it is shown to clients.
func (c *Config) MaxFileSizeMB() float64 {
	return float64(c.MaxFileSize) / mib
}

func LoadFromEnv() (*Config, error) {
	maxFile := parseIntOrDefault("MAX_FILE_SIZE", 10*mib)

	cfg := &Config{
		Host:                 getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                 getEnvOrDefault("PORT", "5000"),
		ReadTimeout:          parseDurationOrDefault("READ_TIMEOUT", 120*time.Second),
		WriteTimeout:         parseDurationOrDefault("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:          parseDurationOrDefault("IDLE_TIMEOUT", 5*time.Second),
		ShutdownTimeout:      parseDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxFileSize:          maxFile,
		MaxRequestBodySize:   parseIntOrDefault("MAX_REQUEST_BODY_SIZE", maxFile+mib), // multipart overhead
		MaxImagePixels:       parseIntOrDefault("MAX_IMAGE_PIXELS", codec.DefaultMaxPixels),
		Workers:              int(parseIntOrDefault("WORKERS", 1)),
		QueueTimeout:         parseDurationOrDefault("QUEUE_TIMEOUT", 120*time.Second),
		InferenceConcurrency: parseIntOrDefault("INFERENCE_CONCURRENCY", 1),
		Model: ModelConfig{
			Backend:           strings.ToLower(getEnvOrDefault("MODEL_BACKEND", BackendONNX)),
			Name:              getEnvOrDefault("MODEL_NAME", defaultModelName),
			Dir:               getEnvOrDefault("MODEL_DIR", defaultModelDir()),
			URL:               getEnvOrDefault("MODEL_URL", defaultModelURL),
			Source:            strings.ToLower(getEnvOrDefault("MODEL_SOURCE", SourceHTTP)),
			ONNXRuntimeLib:    getEnvOrDefault("ONNXRUNTIME_LIB", defaultRuntimeLib()),
			IntraOpNumThreads: int(parseIntOrDefault("ONNX_INTRA_OP_THREADS", 0)),
			RemoteURL:         os.Getenv("REMBG_URL"),
			AzureAccount:      os.Getenv("AZURE_STORAGE_ACCOUNT"),
			AzureKey:          os.Getenv("AZURE_STORAGE_KEY"),
			AzureContainer:    getEnvOrDefault("AZURE_MODEL_CONTAINER", "models"),
			AzureBlob:         os.Getenv("AZURE_MODEL_BLOB"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be > 0 (got %d)", c.MaxFileSize)
	}
	if c.MaxRequestBodySize < c.MaxFileSize {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be >= MAX_FILE_SIZE (got %d < %d)",
			c.MaxRequestBodySize, c.MaxFileSize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.QueueTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got read=%s, write=%s, queue=%s, shutdown=%s)",
			c.ReadTimeout, c.WriteTimeout, c.QueueTimeout, c.ShutdownTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1 (got %d)", c.Workers)
	}
	if c.InferenceConcurrency < 1 {
		return fmt.Errorf("INFERENCE_CONCURRENCY must be >= 1 (got %d)", c.InferenceConcurrency)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("MODEL_NAME must not be empty")
	}

	switch c.Model.Backend {
	case BackendONNX:
		switch c.Model.Source {
		case SourceHTTP:
			if err := validation.NewURLValidator().ValidateURL(c.Model.URL); err != nil {
				return fmt.Errorf("invalid MODEL_URL: %w", err)
			}
		case SourceAzure:
			if c.Model.AzureAccount == "" || c.Model.AzureKey == "" {
				return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required when MODEL_SOURCE=%s", SourceAzure)
			}
		case SourceLocal:
		default:
			return fmt.Errorf("unsupported MODEL_SOURCE: %q", c.Model.Source)
		}
	case BackendRemote:
		if err := validation.NewURLValidator().ValidateURL(c.Model.RemoteURL); err != nil {
			return fmt.Errorf("invalid REMBG_URL (required when MODEL_BACKEND=%s): %w", BackendRemote, err)
		}
	default:
		return fmt.Errorf("unsupported MODEL_BACKEND: %q", c.Model.Backend)
	}
	return nil
}

func defaultModelDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".u2net")
	}
	return ".u2net"
}

func defaultRuntimeLib() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
