package vision

import "context"

// AnalysisRequest is the image + prompt pair sent to the generative model.
// It is constructed by the caller and consumed once per invocation.
type AnalysisRequest struct {
	ImageBytes []byte
	Prompt     string
	MimeType   string
}

// RawModelResponse is the unstructured model reply. Text may be empty but
// is never absent; richer upstream response shapes are normalized to this
// record at the invoker boundary.
type RawModelResponse struct {
	Text string
}

// ModelInfo describes one upstream model for the listing diagnostic.
type ModelInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name,omitempty"`
	Description    string `json:"description,omitempty"`
	SupportsVision bool   `json:"supports_vision"`
}

// Invoker sends an image + prompt pair to the generative model and returns
// the raw text reply. Implementations perform a single invocation per
// request; retry policy belongs to the caller.
type Invoker interface {
	Generate(ctx context.Context, req AnalysisRequest) (RawModelResponse, error)
}

// ModelLister enumerates the models available upstream.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
