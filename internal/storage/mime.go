package storage

import (
	"net/http"
	"strings"
)

// PickContentType takes an explicitly declared content type when it names
// an image, otherwise detects one from the leading bytes.
func PickContentType(declared string, data []byte) string {
	mediaType, _, _ := strings.Cut(declared, ";")
	mediaType = strings.TrimSpace(mediaType)
	if strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}
