package validation

import (
	"encoding/base64"
	"net/url"
	"strings"

	apperrors "go-vision-analyzer/internal/errors"
)

// Image MIME types the upstream model accepts
var supportedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/heic",
	"image/heif",
}

// RequestValidator handles analyze-request validation logic
type RequestValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewRequestValidator creates a validator with default settings
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewRequestValidatorWithOptions creates a validator with custom options
func NewRequestValidatorWithOptions(schemes []string, hosts []string) *RequestValidator {
	return &RequestValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidatePrompt checks the analysis prompt is usable
func (v *RequestValidator) ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return apperrors.NewValidationError("prompt cannot be empty", nil)
	}
	return nil
}

// ValidateMimeType checks an explicitly supplied MIME type against the
// supported image types. An empty value is allowed; a default is applied
// at the invoker boundary.
func (v *RequestValidator) ValidateMimeType(mimeType string) error {
	if strings.TrimSpace(mimeType) == "" {
		return nil
	}
	for _, supported := range supportedMimeTypes {
		if mimeType == supported {
			return nil
		}
	}
	return apperrors.NewValidationError("unsupported image MIME type: "+mimeType, nil)
}

// ValidateImageURL validates if the provided URL is acceptable for image fetching
func (v *RequestValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("invalid URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if len(v.allowedHosts) > 0 && !v.isHostAllowed(parsedURL.Host) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// DecodeImagePayload decodes an inline base64 image. data: URLs are
// accepted, in which case the MIME type from the prefix is returned as a
// hint. Standard encoding is tried first, then the URL-safe alphabet.
func DecodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", apperrors.NewValidationError("image payload is empty", nil)
	}

	var hintMime string
	if strings.HasPrefix(payload, "data:") {
		// data:<mime>;base64,<payload>
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, "", apperrors.NewValidationError("malformed data URL", nil)
		}
		meta := payload[len("data:"):idx]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			hintMime = meta[:semi]
		} else {
			hintMime = meta
		}
		payload = payload[idx+1:]
	}

	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, hintMime, nil
	}
	b, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.NewValidationError("image payload is not valid base64", err)
	}
	return b, hintMime, nil
}

// isSchemeAllowed checks if the URL scheme is in the allowed list
func (v *RequestValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the URL host is in the allowed list.
// Returns true if no host restrictions are set.
func (v *RequestValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
