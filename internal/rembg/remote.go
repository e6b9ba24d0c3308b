package rembg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// RemoteRemover delegates segmentation to a rembg HTTP server.
type RemoteRemover struct {
	baseURL string
	model   string
	client  *http.Client
	loaded  atomic.Bool
}

// NewRemoteRemover creates a backend that posts to {baseURL}/api/remove.
func NewRemoteRemover(baseURL, model string, timeout time.Duration) *RemoteRemover {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &RemoteRemover{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          4,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

func (r *RemoteRemover) Name() string {
	return r.model
}

// Load checks that the server answers. Any non-5xx status counts as up.
func (r *RemoteRemover) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("invalid rembg url: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("rembg server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("rembg server error: status code %d", resp.StatusCode)
	}

	r.loaded.Store(true)
	return nil
}

// Remove uploads input and returns the PNG the server produced.
func (r *RemoteRemover) Remove(ctx context.Context, input []byte, opts Options) ([]byte, error) {
	if !r.loaded.Load() {
		return nil, ErrNotLoaded
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "upload")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(input); err != nil {
		return nil, err
	}
	if err := form.WriteField("model", r.model); err != nil {
		return nil, err
	}
	if err := form.WriteField("ppm", strconv.FormatBool(opts.PostProcessMask)); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/remove", &body)
	if err != nil {
		return nil, fmt.Errorf("invalid rembg url: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rembg request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rembg response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rembg error: status code %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("rembg returned %d bytes that are not a PNG", len(data))
	}
	return data, nil
}

func (r *RemoteRemover) Close() error {
	r.loaded.Store(false)
	r.client.CloseIdleConnections()
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.TrimSpace(string(b))
}
