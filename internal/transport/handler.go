package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-vision-analyzer/internal/config"
	apperrors "go-vision-analyzer/internal/errors"
	"go-vision-analyzer/internal/logger"
	"go-vision-analyzer/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxBatchItems bounds one batch request
const maxBatchItems = 16

// AnalysisRequest is the JSON body of POST /analyze. Exactly one of URL
// and ImageBase64 must be set.
type AnalysisRequest struct {
	URL         string `json:"url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Prompt      string `json:"prompt" binding:"required"`
}

// BatchAnalysisRequest is the JSON body of POST /analyze/batch
type BatchAnalysisRequest struct {
	Items []AnalysisRequest `json:"items" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the HTTP surface of the service
func NewHandler(svc service.AnalysisService, cfg *config.Config) http.Handler {
	r := gin.New()

	// Middleware order matters: request IDs first so everything after
	// can log them, then logging, timing, and body limits
	r.Use(
		gin.Recovery(),
		corsMiddleware(),
		requestIDMiddleware(),
		requestLoggerMiddleware(),
		timingMiddleware(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(svc))
	r.GET("/models", listModels(svc, cfg))
	r.POST("/analyze", analyzeImage(svc, cfg))
	r.POST("/analyze/batch", analyzeBatch(svc, cfg))

	return r
}

func analyzeImage(svc service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		input, err := bindAnalyzeInput(c)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid request", err)
			return
		}

		result, err := svc.Analyze(ctx, input)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
			return
		}

		// The recovered structure is the response body, verbatim
		c.JSON(http.StatusOK, result)
	}
}

func analyzeBatch(svc service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req BatchAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		if len(req.Items) == 0 {
			respondError(c, http.StatusBadRequest, "invalid request",
				apperrors.NewValidationError("items cannot be empty", nil))
			return
		}
		if len(req.Items) > maxBatchItems {
			respondError(c, http.StatusBadRequest, "invalid request",
				apperrors.NewValidationError(fmt.Sprintf("at most %d items per batch", maxBatchItems), nil))
			return
		}

		items := make([]service.AnalyzeInput, len(req.Items))
		for i, item := range req.Items {
			items[i] = service.AnalyzeInput{
				URL:         item.URL,
				ImageBase64: item.ImageBase64,
				MimeType:    item.MimeType,
				Prompt:      item.Prompt,
			}
		}

		results := svc.AnalyzeBatch(ctx, items)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func listModels(svc service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		models, err := svc.ListModels(ctx)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to list models", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"models": models})
	}
}

func healthCheck(svc service.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "available",
			"version": "1.0.0",
			"time":    time.Now().UTC().Format(time.RFC3339),
			"metrics": svc.Metrics(),
		})
	}
}

// bindAnalyzeInput accepts either a JSON body or a multipart form with an
// "image" file and a "prompt" field.
func bindAnalyzeInput(c *gin.Context) (service.AnalyzeInput, error) {
	contentType := c.GetHeader("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, err := c.FormFile("image")
		if err != nil {
			return service.AnalyzeInput{}, apperrors.NewValidationError("multipart request requires an image file", err)
		}

		f, err := file.Open()
		if err != nil {
			return service.AnalyzeInput{}, apperrors.NewValidationError("failed to open uploaded image", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return service.AnalyzeInput{}, apperrors.NewValidationError("failed to read uploaded image", err)
		}

		mimeType := c.PostForm("mime_type")
		if mimeType == "" {
			// Part headers are unreliable; only trust an image type and
			// let byte sniffing cover the rest
			if header := file.Header.Get("Content-Type"); strings.HasPrefix(header, "image/") {
				mimeType = header
			}
		}

		return service.AnalyzeInput{
			ImageBytes: data,
			MimeType:   mimeType,
			Prompt:     c.PostForm("prompt"),
		}, nil
	}

	var req AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return service.AnalyzeInput{}, apperrors.NewValidationError("invalid request format", err)
	}
	return service.AnalyzeInput{
		URL:         req.URL,
		ImageBase64: req.ImageBase64,
		MimeType:    req.MimeType,
		Prompt:      req.Prompt,
	}, nil
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
