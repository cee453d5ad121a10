package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	apperrors "go-vision-analyzer/internal/errors"
	"go-vision-analyzer/internal/vision"
)

var testImage = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

// fakeInvoker returns a canned model reply or error and records the
// requests it received
type fakeInvoker struct {
	text     string
	err      error
	requests []vision.AnalysisRequest
}

func (f *fakeInvoker) Generate(ctx context.Context, req vision.AnalysisRequest) (vision.RawModelResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return vision.RawModelResponse{}, f.err
	}
	return vision.RawModelResponse{Text: f.text}, nil
}

type fakeLister struct {
	models []vision.ModelInfo
	err    error
}

func (f *fakeLister) ListModels(ctx context.Context) ([]vision.ModelInfo, error) {
	return f.models, f.err
}

// fakeImageRepo serves fixed bytes for any URL
type fakeImageRepo struct {
	data        []byte
	contentType string
	err         error
	fetched     []string
}

func (f *fakeImageRepo) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	f.fetched = append(f.fetched, imageURL)
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.contentType, nil
}

func (f *fakeImageRepo) ValidateImageURL(imageURL string) error { return nil }

func newTestService(invoker *fakeInvoker, lister *fakeLister, repo *fakeImageRepo) AnalysisService {
	if lister == nil {
		lister = &fakeLister{}
	}
	if repo == nil {
		repo = &fakeImageRepo{data: testImage, contentType: "image/jpeg"}
	}
	return NewAnalysisService(invoker, lister, repo, "gemini-test", 2)
}

func inlineInput(prompt string) AnalyzeInput {
	return AnalyzeInput{
		ImageBase64: base64.StdEncoding.EncodeToString(testImage),
		Prompt:      prompt,
	}
}

func TestAnalyze_CleanJSON(t *testing.T) {
	invoker := &fakeInvoker{text: `{"animal": "cat", "confidence": 0.97}`}
	svc := newTestService(invoker, nil, nil)

	result, err := svc.Analyze(context.Background(), inlineInput("describe the animal"))
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if result["animal"] != "cat" {
		t.Errorf("Expected animal=cat, got %v", result["animal"])
	}
	if len(invoker.requests) != 1 {
		t.Fatalf("Expected exactly one model invocation, got %d", len(invoker.requests))
	}
	if invoker.requests[0].MimeType != "image/jpeg" {
		t.Errorf("Expected sniffed image/jpeg MIME type, got %q", invoker.requests[0].MimeType)
	}
}

func TestAnalyze_FencedAndTruncatedOutputIsRepaired(t *testing.T) {
	invoker := &fakeInvoker{text: "```json\n{\"a\": 1, \"b\": 2\n```"}
	svc := newTestService(invoker, nil, nil)

	result, err := svc.Analyze(context.Background(), inlineInput("extract fields"))
	if err != nil {
		t.Fatalf("Expected repaired success, got error: %v", err)
	}
	if result["b"] != float64(2) {
		t.Errorf("Expected b=2, got %v", result["b"])
	}

	metrics := svc.Metrics()
	if metrics["repaired_outputs"] != int64(1) {
		t.Errorf("Expected repaired_outputs=1, got %v", metrics["repaired_outputs"])
	}
}

func TestAnalyze_TransportErrorIsUpstream(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("connection reset by peer")}
	svc := newTestService(invoker, nil, nil)

	_, err := svc.Analyze(context.Background(), inlineInput("describe"))
	if err == nil {
		t.Fatal("Expected upstream error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeUpstream) {
		t.Errorf("Expected upstream error type, got %v", err)
	}
	if apperrors.GetStatusCode(err) != 502 {
		t.Errorf("Expected status 502, got %d", apperrors.GetStatusCode(err))
	}

	// The locator/decoder path is never reached, so the failure must not
	// be classified as unparseable output
	metrics := svc.Metrics()
	if metrics["upstream_failures"] != int64(1) {
		t.Errorf("Expected upstream_failures=1, got %v", metrics["upstream_failures"])
	}
	if metrics["unparseable_failures"] != int64(0) {
		t.Errorf("Expected unparseable_failures=0, got %v", metrics["unparseable_failures"])
	}
}

func TestAnalyze_UnparseableOutput(t *testing.T) {
	invoker := &fakeInvoker{text: "I cannot analyze this image."}
	svc := newTestService(invoker, nil, nil)

	_, err := svc.Analyze(context.Background(), inlineInput("describe"))
	if err == nil {
		t.Fatal("Expected unparseable output error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeUnparseable) {
		t.Errorf("Expected unparseable error type, got %v", err)
	}
	if apperrors.GetStatusCode(err) != 502 {
		t.Errorf("Expected status 502, got %d", apperrors.GetStatusCode(err))
	}

	// Raw model text must not leak into the error message
	if appErr, ok := err.(*apperrors.AppError); ok {
		if appErr.Message == "" || appErr.Cause != nil {
			t.Error("Expected a fixed message without the raw model text attached")
		}
	}
}

func TestAnalyze_EmptyModelText(t *testing.T) {
	invoker := &fakeInvoker{text: ""}
	svc := newTestService(invoker, nil, nil)

	_, err := svc.Analyze(context.Background(), inlineInput("describe"))
	if !apperrors.IsType(err, apperrors.ErrorTypeUnparseable) {
		t.Errorf("Expected unparseable error for empty model text, got %v", err)
	}
}

func TestAnalyze_InputValidation(t *testing.T) {
	invoker := &fakeInvoker{text: `{"x": 1}`}
	svc := newTestService(invoker, nil, nil)

	tests := []struct {
		name  string
		input AnalyzeInput
	}{
		{
			name:  "Missing prompt",
			input: AnalyzeInput{ImageBase64: base64.StdEncoding.EncodeToString(testImage)},
		},
		{
			name:  "No image source",
			input: AnalyzeInput{Prompt: "describe"},
		},
		{
			name: "Two image sources",
			input: AnalyzeInput{
				Prompt:      "describe",
				URL:         "https://example.com/a.jpg",
				ImageBase64: base64.StdEncoding.EncodeToString(testImage),
			},
		},
		{
			name: "Unsupported MIME type",
			input: AnalyzeInput{
				Prompt:      "describe",
				ImageBase64: base64.StdEncoding.EncodeToString(testImage),
				MimeType:    "application/pdf",
			},
		},
		{
			name:  "Invalid base64 payload",
			input: AnalyzeInput{Prompt: "describe", ImageBase64: "%%%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Analyze(context.Background(), tt.input)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Errorf("Expected validation error type, got %v", err)
			}
		})
	}

	if len(invoker.requests) != 0 {
		t.Errorf("Expected no model invocations for invalid input, got %d", len(invoker.requests))
	}
}

func TestAnalyze_URLSource(t *testing.T) {
	invoker := &fakeInvoker{text: `{"ok": true}`}
	repo := &fakeImageRepo{data: testImage, contentType: "image/png"}
	svc := newTestService(invoker, nil, repo)

	_, err := svc.Analyze(context.Background(), AnalyzeInput{
		URL:    "https://example.com/photo.png",
		Prompt: "describe",
	})
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if len(repo.fetched) != 1 || repo.fetched[0] != "https://example.com/photo.png" {
		t.Errorf("Expected one fetch of the request URL, got %v", repo.fetched)
	}
	if invoker.requests[0].MimeType != "image/png" {
		t.Errorf("Expected fetched content type to flow to the model, got %q", invoker.requests[0].MimeType)
	}
}

func TestAnalyze_FetchFailureIsNetworkError(t *testing.T) {
	invoker := &fakeInvoker{text: `{"ok": true}`}
	repo := &fakeImageRepo{err: errors.New("dial tcp: connection refused")}
	svc := newTestService(invoker, nil, repo)

	_, err := svc.Analyze(context.Background(), AnalyzeInput{
		URL:    "https://example.com/photo.png",
		Prompt: "describe",
	})
	if !apperrors.IsType(err, apperrors.ErrorTypeNetwork) {
		t.Errorf("Expected network error type, got %v", err)
	}
	if len(invoker.requests) != 0 {
		t.Error("Expected no model invocation when the image fetch fails")
	}
}

func TestAnalyzeBatch(t *testing.T) {
	invoker := &fakeInvoker{text: `{"ok": true}`}
	svc := newTestService(invoker, nil, nil)

	items := []AnalyzeInput{
		inlineInput("first"),
		{Prompt: "no image source"}, // invalid
		inlineInput("third"),
	}

	results := svc.AnalyzeBatch(context.Background(), items)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Index != i {
			t.Errorf("Expected result %d to keep its index, got %d", i, r.Index)
		}
	}

	if results[0].Error != nil || results[0].Result == nil {
		t.Errorf("Expected item 0 to succeed, got %+v", results[0])
	}
	if results[1].Error == nil || results[1].Error.Type != apperrors.ErrorTypeValidation {
		t.Errorf("Expected item 1 to fail validation, got %+v", results[1])
	}
	if results[2].Error != nil || results[2].Result == nil {
		t.Errorf("Expected item 2 to succeed, got %+v", results[2])
	}
}

func TestListModels(t *testing.T) {
	lister := &fakeLister{models: []vision.ModelInfo{
		{Name: "models/gemini-2.5-flash", SupportsVision: true},
		{Name: "models/embedding-001", SupportsVision: false},
	}}
	svc := newTestService(&fakeInvoker{}, lister, nil)

	models, err := svc.ListModels(context.Background())
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("Expected 2 models, got %d", len(models))
	}
}

func TestListModels_Failure(t *testing.T) {
	lister := &fakeLister{err: fmt.Errorf("permission denied")}
	svc := newTestService(&fakeInvoker{}, lister, nil)

	_, err := svc.ListModels(context.Background())
	if !apperrors.IsType(err, apperrors.ErrorTypeUpstream) {
		t.Errorf("Expected upstream error type, got %v", err)
	}
}
