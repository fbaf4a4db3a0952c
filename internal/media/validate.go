// Package media validates attachments before upload, fetches stored media
// through a Redis cache and renders thumbnail previews.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"strings"

	"feedsync/internal/models"

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxBytes applies when Limits.MaxBytes is zero.
const DefaultMaxBytes = 10 << 20

// Limits bounds attachment uploads.
type Limits struct {
	MaxBytes int64
}

func (l Limits) max() int64 {
	if l.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return l.MaxBytes
}

// ValidateImage checks an image attachment and returns its detected MIME type.
func (l Limits) ValidateImage(name string, data []byte) (string, error) {
	if err := l.checkSize(name, data); err != nil {
		return "", err
	}

	detected := normalizeContentType(http.DetectContentType(data))
	if !isAllowedImageMIME(detected) {
		return "", models.NewValidationError(fmt.Sprintf("%s: invalid image type %q", name, detected))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", models.NewValidationError(fmt.Sprintf("%s: invalid image file", name))
	}
	if decodedFormatToMime(format) != detected {
		return "", models.NewValidationError(fmt.Sprintf("%s: image content type mismatch", name))
	}
	return detected, nil
}

// ValidateVideo checks a video attachment and returns its detected MIME type.
func (l Limits) ValidateVideo(name string, data []byte) (string, error) {
	if err := l.checkSize(name, data); err != nil {
		return "", err
	}
	detected := normalizeContentType(http.DetectContentType(data))
	if !strings.HasPrefix(detected, "video/") {
		return "", models.NewValidationError(fmt.Sprintf("%s: invalid video type %q", name, detected))
	}
	return detected, nil
}

func (l Limits) checkSize(name string, data []byte) error {
	if len(data) == 0 {
		return models.NewValidationError(fmt.Sprintf("%s: file is empty", name))
	}
	if int64(len(data)) > l.max() {
		return models.NewValidationError(fmt.Sprintf("%s: file too large (max %dMB)", name, l.max()/(1024*1024)))
	}
	return nil
}

func normalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func decodedFormatToMime(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
