package repository

import (
	"context"
	"net/url"
	"strings"

	"go-vision-analyzer/internal/storage"
)

// ImageRepository resolves an image URL to raw bytes plus a content type
type ImageRepository interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
	ValidateImageURL(imageURL string) error
}

// imageRepository routes between plain HTTP fetching and Azure blob
// download based on the URL host. Blob storage is optional; when no
// credentials were configured blob URLs are rejected.
type imageRepository struct {
	fetcher storage.ImageFetcher
	blobs   storage.BlobStorage
}

// NewImageRepository creates an image repository. blobs may be nil when
// Azure credentials are absent.
func NewImageRepository(fetcher storage.ImageFetcher, blobs storage.BlobStorage) ImageRepository {
	return &imageRepository{
		fetcher: fetcher,
		blobs:   blobs,
	}
}

func (r *imageRepository) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if err := r.ValidateImageURL(imageURL); err != nil {
		return nil, "", err
	}

	if isBlobURL(imageURL) {
		if r.blobs == nil {
			return nil, "", ErrBlobStorageDisabled
		}
		return r.blobs.GetImage(ctx, imageURL)
	}
	return r.fetcher.FetchImage(ctx, imageURL)
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *imageRepository) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return ErrInvalidImageURL
	}
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return ErrInvalidImageURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidImageURL
	}
	if parsed.Host == "" {
		return ErrInvalidImageURL
	}
	return nil
}

func isBlobURL(imageURL string) bool {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(parsed.Host, ".blob.core.windows.net")
}
