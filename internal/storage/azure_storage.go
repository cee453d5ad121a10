package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobStorage retrieves image bytes from Azure Blob Storage
type BlobStorage interface {
	GetImage(ctx context.Context, blobURL string) ([]byte, string, error)
}

type azureStorage struct {
	client *azblob.Client
}

// NewAzureStorage creates a blob-backed image source using shared key
// credentials supplied once at startup.
func NewAzureStorage(accountName string, accountKey string) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureStorage{client: client}, nil
}

// GetImage downloads a blob addressed as
// https://<account>.blob.core.windows.net/<container>?blob=<name>.
func (s *azureStorage) GetImage(ctx context.Context, blobURL string) ([]byte, string, error) {
	parsedURL, err := url.Parse(blobURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid blob URL: %w", err)
	}

	if len(parsedURL.Path) < 2 {
		return nil, "", fmt.Errorf("blob URL has no container path")
	}
	containerName := parsedURL.Path[1:] // Remove leading slash
	blobName := parsedURL.Query().Get("blob")
	if blobName == "" {
		return nil, "", fmt.Errorf("blob URL is missing the blob query parameter")
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	data, err := io.ReadAll(retryReader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read blob: %w", err)
	}

	declared := ""
	if downloadResponse.ContentType != nil {
		declared = *downloadResponse.ContentType
	}
	return data, PickContentType(declared, data), nil
}
