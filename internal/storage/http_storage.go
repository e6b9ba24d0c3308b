package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxAttempts    = 3
	defaultBackoff = time.Second
)

// HTTPModelSource downloads model weights over HTTP(S).
type HTTPModelSource struct {
	url     string
	client  *http.Client
	backoff time.Duration
}

// NewHTTPModelSource creates a source for url. A url that does not end in
// ".onnx" is treated as a directory and the model file name is appended.
func NewHTTPModelSource(url string) *HTTPModelSource {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		// Weights are already compressed.
		DisableCompression:     true,
		MaxResponseHeaderBytes: 16 << 10,
	}

	return &HTTPModelSource{
		url: url,
		client: &http.Client{
			Transport: transport,
			// No overall timeout: weights are hundreds of MB. The caller's context bounds the download.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// GitHub release assets redirect to object storage.
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (limit: 5)")
				}
				return nil
			},
		},
		backoff: defaultBackoff,
	}
}

func (h *HTTPModelSource) Describe() string {
	return h.url
}

func (h *HTTPModelSource) modelURL(name string) string {
	if strings.HasSuffix(h.url, ".onnx") {
		return h.url
	}
	return strings.TrimRight(h.url, "/") + "/" + name + ".onnx"
}

// Open starts the download. Transport errors and 5xx responses are retried
// with linear backoff; 4xx responses fail immediately.
func (h *HTTPModelSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.modelURL(name), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream, */*")
	req.Header.Set("User-Agent", "go-background-remover/1.0")

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, fmt.Errorf("failed to fetch model after %d attempts: client error: status code %d",
					attempt+1, resp.StatusCode)
			}
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch model: %w", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * h.backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch model after %d attempts: %w", maxAttempts, lastErr)
}
