package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// blobDownloader is the part of *azblob.Client the source needs.
type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureModelSource downloads model weights from an Azure Blob Storage container.
type AzureModelSource struct {
	client    blobDownloader
	container string
	blob      string
}

// NewAzureModelSource authenticates with a shared key. An empty blob name
// means "<model name>.onnx".
func NewAzureModelSource(accountName, accountKey, container, blob string) (*AzureModelSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &AzureModelSource{client: client, container: container, blob: blob}, nil
}

func (s *AzureModelSource) Describe() string {
	return fmt.Sprintf("azblob://%s/%s", s.container, s.blobName("<model>"))
}

func (s *AzureModelSource) blobName(model string) string {
	if s.blob != "" {
		return s.blob
	}
	return model + ".onnx"
}

func (s *AzureModelSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	// The SDK retries transient failures itself.
	resp, err := s.client.DownloadStream(ctx, s.container, s.blobName(name), nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return resp.Body, nil
}
