package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODEL_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.ServerAddress())
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, int64(11*1024*1024), cfg.MaxRequestBodySize)
	assert.Equal(t, int64(178956970), cfg.MaxImagePixels)
	assert.Equal(t, 120*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, int64(1), cfg.InferenceConcurrency)
	assert.Equal(t, BackendONNX, cfg.Model.Backend)
	assert.Equal(t, "isnet-general-use", cfg.Model.Name)
	assert.Equal(t, SourceHTTP, cfg.Model.Source)
	assert.Equal(t, 10.0, cfg.MaxFileSizeMB())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", " 8081 ")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("MAX_FILE_SIZE", "2048")
	t.Setenv("MAX_IMAGE_PIXELS", "4000000")
	t.Setenv("WORKERS", "4")
	t.Setenv("QUEUE_TIMEOUT", "5s")
	t.Setenv("MODEL_BACKEND", "REMOTE")
	t.Setenv("REMBG_URL", "http://rembg:7000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.ServerAddress())
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, int64(2048+1024*1024), cfg.MaxRequestBodySize)
	assert.Equal(t, int64(4000000), cfg.MaxImagePixels)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.QueueTimeout)
	assert.Equal(t, BackendRemote, cfg.Model.Backend)
}

func TestLoadFromEnv_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.ReadTimeout)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"non numeric port", map[string]string{"PORT": "http"}, "invalid PORT"},
		{"port out of range", map[string]string{"PORT": "70000"}, "invalid PORT"},
		{"zero file size", map[string]string{"MAX_FILE_SIZE": "0"}, "MAX_FILE_SIZE"},
		{"body smaller than file", map[string]string{"MAX_REQUEST_BODY_SIZE": "10"}, "MAX_REQUEST_BODY_SIZE"},
		{"no pixel budget", map[string]string{"MAX_IMAGE_PIXELS": "-1"}, "MAX_IMAGE_PIXELS"},
		{"no workers", map[string]string{"WORKERS": "0"}, "WORKERS"},
		{"no inference slots", map[string]string{"INFERENCE_CONCURRENCY": "0"}, "INFERENCE_CONCURRENCY"},
		{"unknown backend", map[string]string{"MODEL_BACKEND": "tensorflow"}, "MODEL_BACKEND"},
		{"remote without url", map[string]string{"MODEL_BACKEND": "remote"}, "REMBG_URL"},
		{"remote url without scheme", map[string]string{"MODEL_BACKEND": "remote", "REMBG_URL": "rembg:7000"}, "invalid REMBG_URL"},
		{"model url with ftp scheme", map[string]string{"MODEL_URL": "ftp://mirror/u2net.onnx"}, "invalid MODEL_URL"},
		{"unknown source", map[string]string{"MODEL_SOURCE": "ftp"}, "MODEL_SOURCE"},
		{"azure without credentials", map[string]string{"MODEL_SOURCE": "azure"}, "AZURE_STORAGE_ACCOUNT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadFromEnv()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
