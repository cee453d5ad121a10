package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ImageFetcher retrieves raw image bytes from a URL. The generative model
// consumes encoded bytes directly, so no local decoding happens here; the
// returned content type comes from the response header or byte sniffing.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

// HTTPImageFetcher implements ImageFetcher over plain HTTP(S)
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPImageFetcher creates an HTTP image fetcher. maxBytes caps the
// downloaded body size; <= 0 disables the cap.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64) ImageFetcher {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes: maxBytes,
	}
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Vision-Analyzer/1.0")

	// 3 attempts; only transient failures are retried
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		resp, err = h.client.Do(req)
		if err != nil {
			lastErr = err
		}

		if err == nil && resp != nil && resp.StatusCode == http.StatusOK {
			break
		}

		if err == nil && resp != nil {
			resp.Body.Close()

			// 4xx client errors are non-retryable
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, "", fmt.Errorf("client error: status code %d", resp.StatusCode)
			}
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
			}
			resp = nil
		}

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	if resp == nil || resp.StatusCode != http.StatusOK {
		if lastErr != nil {
			return nil, "", fmt.Errorf("failed to fetch image after 3 attempts: %w", lastErr)
		}
		return nil, "", fmt.Errorf("failed to fetch image after 3 attempts: unknown error")
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if h.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, h.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return nil, "", fmt.Errorf("image exceeds size limit of %d bytes", h.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image body")
	}

	return data, PickContentType(resp.Header.Get("Content-Type"), data), nil
}
