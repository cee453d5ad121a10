package vision

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go-vision-analyzer/internal/logger"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client wraps the Gemini SDK. It is built once at startup with an
// immutable model name and credential, and is safe for concurrent use.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient constructs the Gemini client. Missing credentials fail here,
// before any request is served.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	if model == "" {
		return nil, errors.New("gemini: model name is empty")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{client: cl, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Close releases the underlying SDK connection.
func (c *Client) Close() error { return c.client.Close() }

// Generate sends the image and prompt to the model and returns its raw
// text. Exactly one invocation is performed; transport failures propagate
// to the caller for classification.
func (c *Client) Generate(ctx context.Context, req AnalysisRequest) (RawModelResponse, error) {
	if len(req.ImageBytes) == 0 {
		return RawModelResponse{}, errors.New("gemini: image bytes are empty")
	}

	mime := strings.TrimSpace(req.MimeType)
	if mime == "" {
		mime = "image/jpeg"
	}

	m := c.client.GenerativeModel(c.model)

	resp, err := m.GenerateContent(ctx,
		&genai.Blob{MIMEType: mime, Data: req.ImageBytes},
		genai.Text(req.Prompt),
	)
	if err != nil {
		return RawModelResponse{}, fmt.Errorf("gemini: generate content: %w", err)
	}

	text := firstText(resp)
	logger.WithFields(logrus.Fields{
		"model":    c.model,
		"text_len": len(text),
	}).Debug("Model response received")

	// Empty text is a valid (if useless) response; the recovery pipeline
	// classifies it downstream.
	return RawModelResponse{Text: text}, nil
}

// ListModels enumerates the upstream models and whether each supports
// image input via generateContent. Informational tooling only.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo

	it := c.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", err)
		}
		models = append(models, ModelInfo{
			Name:           m.Name,
			DisplayName:    m.DisplayName,
			Description:    m.Description,
			SupportsVision: slices.Contains(m.SupportedGenerationMethods, "generateContent"),
		})
	}
	return models, nil
}

// firstText walks the candidate/part shape of the SDK response and returns
// the first text part, or "" when none is present.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
