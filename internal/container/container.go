package container

import (
	"context"
	"net/http"

	"go-vision-analyzer/internal/config"
	"go-vision-analyzer/internal/repository"
	"go-vision-analyzer/internal/service"
	"go-vision-analyzer/internal/storage"
	"go-vision-analyzer/internal/transport"
	"go-vision-analyzer/internal/vision"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	visionClient    *vision.Client
	imageFetcher    storage.ImageFetcher
	blobStorage     storage.BlobStorage
	imageRepository repository.ImageRepository
	analysisService service.AnalysisService
	handler         http.Handler
}

// NewContainer builds the dependency graph from a loaded configuration.
// The context covers client construction only, not the server lifetime.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	visionClient, err := vision.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}

	imageFetcher := storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout, cfg.MaxImageBytes)

	// Blob storage is optional; without credentials, blob URLs are rejected
	var blobStorage storage.BlobStorage
	if cfg.AzureEnabled() {
		blobStorage, err = storage.NewAzureStorage(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			visionClient.Close()
			return nil, err
		}
	}

	imageRepository := repository.NewImageRepository(imageFetcher, blobStorage)
	analysisService := service.NewAnalysisService(
		visionClient,
		visionClient,
		imageRepository,
		cfg.GeminiModel,
		cfg.BatchWorkers,
	)
	handler := transport.NewHandler(analysisService, cfg)

	return &Container{
		config:          cfg,
		visionClient:    visionClient,
		imageFetcher:    imageFetcher,
		blobStorage:     blobStorage,
		imageRepository: imageRepository,
		analysisService: analysisService,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases the upstream model connection
func (c *Container) Close() error {
	return c.visionClient.Close()
}
