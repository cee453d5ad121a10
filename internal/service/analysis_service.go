package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "go-vision-analyzer/internal/errors"
	"go-vision-analyzer/internal/extract"
	"go-vision-analyzer/internal/logger"
	"go-vision-analyzer/internal/observer"
	"go-vision-analyzer/internal/repository"
	"go-vision-analyzer/internal/storage"
	"go-vision-analyzer/internal/validation"
	"go-vision-analyzer/internal/vision"
)

// AnalyzeInput carries one analysis request. Exactly one image source must
// be set: a fetchable URL, an inline base64 payload, or raw upload bytes.
type AnalyzeInput struct {
	URL         string
	ImageBase64 string
	ImageBytes  []byte
	MimeType    string
	Prompt      string
}

// BatchItem pairs an input with its position in the batch request
type BatchItem struct {
	Index int
	Input AnalyzeInput
}

// BatchItemResult is the per-item outcome of a batch analysis. Either
// Result or Error is set, never both.
type BatchItemResult struct {
	Index  int                 `json:"index"`
	Result extract.Result      `json:"result,omitempty"`
	Error  *apperrors.AppError `json:"error,omitempty"`
}

// AnalysisService is the inbound boundary of the analysis pipeline: it
// resolves image bytes, invokes the model once, and recovers a structured
// result or a single classified error.
type AnalysisService interface {
	Analyze(ctx context.Context, in AnalyzeInput) (extract.Result, error)
	AnalyzeBatch(ctx context.Context, items []AnalyzeInput) []BatchItemResult
	ListModels(ctx context.Context) ([]vision.ModelInfo, error)
	Metrics() map[string]interface{}
}

type analysisService struct {
	invoker   vision.Invoker
	lister    vision.ModelLister
	images    repository.ImageRepository
	validator *validation.RequestValidator
	publisher observer.Subject
	metrics   *observer.MetricsObserver
	model     string
	workers   int
}

// NewAnalysisService wires the pipeline. The model name is informational
// only; the invoker carries the actual configuration.
func NewAnalysisService(
	invoker vision.Invoker,
	lister vision.ModelLister,
	images repository.ImageRepository,
	model string,
	workers int,
) AnalysisService {
	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	return &analysisService{
		invoker:   invoker,
		lister:    lister,
		images:    images,
		validator: validation.NewRequestValidator(),
		publisher: publisher,
		metrics:   metrics,
		model:     model,
		workers:   workers,
	}
}

// Analyze runs the full pipeline for one request. Every failure path maps
// to exactly one classified error; raw transport errors never escape
// unwrapped and raw model text never leaks into error messages.
func (s *analysisService) Analyze(ctx context.Context, in AnalyzeInput) (extract.Result, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	imageBytes, mimeType, err := s.resolveImage(ctx, in)
	if err != nil {
		return nil, err
	}

	source := imageSourceLabel(in)
	start := time.Now()
	s.notify(ctx, observer.AnalysisEvent{
		EventType:   observer.AnalysisStarted,
		Timestamp:   start,
		Model:       s.model,
		ImageSource: source,
		Metadata: map[string]interface{}{
			"mime_type":  mimeType,
			"image_size": len(imageBytes),
			"prompt_len": len(in.Prompt),
		},
	})

	raw, err := s.invoker.Generate(ctx, vision.AnalysisRequest{
		ImageBytes: imageBytes,
		Prompt:     in.Prompt,
		MimeType:   mimeType,
	})
	if err != nil {
		appErr := apperrors.NewUpstreamError("vision model invocation failed", err)
		s.notifyFailure(ctx, source, start, appErr)
		return nil, appErr
	}

	result, repaired, err := extract.Parse(raw.Text)
	if err != nil {
		appErr := apperrors.NewUnparseableOutputError("model returned invalid JSON (repair failed)")
		s.notifyFailure(ctx, source, start, appErr)
		return nil, appErr
	}
	if repaired {
		s.notify(ctx, observer.AnalysisEvent{
			EventType:   observer.OutputRepaired,
			Timestamp:   time.Now(),
			Model:       s.model,
			ImageSource: source,
		})
	}

	s.notify(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		Timestamp:      time.Now(),
		Model:          s.model,
		ImageSource:    source,
		ProcessingTime: time.Since(start),
		Success:        true,
	})
	return result, nil
}

// AnalyzeBatch runs independent analyses concurrently through the worker
// pool. Items fail individually; one bad image never sinks the batch.
func (s *analysisService) AnalyzeBatch(ctx context.Context, items []AnalyzeInput) []BatchItemResult {
	results := make([]BatchItemResult, len(items))

	pool := NewWorkerPool(s.workers)
	pool.Start()
	defer pool.Close()

	for i, in := range items {
		item := BatchItem{Index: i, Input: in}
		pool.Submit(func() {
			result, err := s.Analyze(ctx, item.Input)
			if err != nil {
				results[item.Index] = BatchItemResult{Index: item.Index, Error: asAppError(err)}
				return
			}
			results[item.Index] = BatchItemResult{Index: item.Index, Result: result}
		})
	}

	pool.Wait()
	return results
}

// ListModels surfaces the upstream model listing diagnostic.
func (s *analysisService) ListModels(ctx context.Context) ([]vision.ModelInfo, error) {
	models, err := s.lister.ListModels(ctx)
	if err != nil {
		return nil, apperrors.NewUpstreamError("failed to list models", err)
	}
	return models, nil
}

// Metrics exposes process-wide analysis counters.
func (s *analysisService) Metrics() map[string]interface{} {
	return s.metrics.GetMetrics()
}

func (s *analysisService) validateInput(in AnalyzeInput) error {
	if err := s.validator.ValidatePrompt(in.Prompt); err != nil {
		return err
	}
	if err := s.validator.ValidateMimeType(in.MimeType); err != nil {
		return err
	}

	sources := 0
	if strings.TrimSpace(in.URL) != "" {
		sources++
	}
	if strings.TrimSpace(in.ImageBase64) != "" {
		sources++
	}
	if len(in.ImageBytes) > 0 {
		sources++
	}
	if sources == 0 {
		return apperrors.NewValidationError("an image URL, base64 payload, or upload is required", nil)
	}
	if sources > 1 {
		return apperrors.NewValidationError("exactly one image source must be provided", nil)
	}
	return nil
}

// resolveImage produces the raw image bytes and a MIME type for the model.
// An explicitly supplied MIME type wins; otherwise the data URL hint, the
// fetched content type, or byte sniffing fills it in.
func (s *analysisService) resolveImage(ctx context.Context, in AnalyzeInput) ([]byte, string, error) {
	switch {
	case len(in.ImageBytes) > 0:
		return in.ImageBytes, pickMime(in.MimeType, "", in.ImageBytes), nil

	case strings.TrimSpace(in.ImageBase64) != "":
		data, hint, err := validation.DecodeImagePayload(in.ImageBase64)
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			return nil, "", apperrors.NewValidationError("decoded image is empty", nil)
		}
		return data, pickMime(in.MimeType, hint, data), nil

	default:
		if err := s.validator.ValidateImageURL(in.URL); err != nil {
			return nil, "", err
		}
		data, contentType, err := s.images.FetchImage(ctx, in.URL)
		if err != nil {
			return nil, "", classifyFetchError(err)
		}
		return data, pickMime(in.MimeType, contentType, data), nil
	}
}

func (s *analysisService) notify(ctx context.Context, event observer.AnalysisEvent) {
	s.publisher.NotifyObservers(ctx, event)
}

func (s *analysisService) notifyFailure(ctx context.Context, source string, start time.Time, appErr *apperrors.AppError) {
	s.notify(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisFailed,
		Timestamp:      time.Now(),
		Model:          s.model,
		ImageSource:    source,
		ProcessingTime: time.Since(start),
		FailureKind:    appErr.Type,
		ErrorMessage:   appErr.Message,
	})
}

func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInvalidImageURL):
		return apperrors.NewValidationError("invalid image URL", err)
	case errors.Is(err, repository.ErrBlobStorageDisabled):
		return apperrors.NewValidationError("blob storage is not configured", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("image fetch timed out", err)
	default:
		return apperrors.NewNetworkError("failed to fetch image", err)
	}
}

func pickMime(explicit, hint string, data []byte) string {
	if m := strings.TrimSpace(explicit); m != "" {
		return m
	}
	if m := strings.TrimSpace(hint); m != "" {
		return m
	}
	return storage.PickContentType("", data)
}

func imageSourceLabel(in AnalyzeInput) string {
	if strings.TrimSpace(in.URL) != "" {
		return in.URL
	}
	return "inline"
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.NewInternalError("analysis failed", err)
}
