package services

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"strings"
)

const defaultContentType = "application/octet-stream"

// extensionTypes covers the types the depot has always recognised; anything
// else falls through to the mime package.
var extensionTypes = map[string]string{
	".json": "application/json",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".zip":  "application/zip",
	".bin":  defaultContentType,
}

// DefaultContentTypeDetector detects content types from keys, bytes and headers
type DefaultContentTypeDetector struct{}

// NewDefaultContentTypeDetector creates a new content type detector
func NewDefaultContentTypeDetector() *DefaultContentTypeDetector {
	return &DefaultContentTypeDetector{}
}

// Detect picks the type for an object: its key's extension first, then its bytes.
func (d *DefaultContentTypeDetector) Detect(key string, data []byte) string {
	if ct := d.DetectFromFilename(key); ct != defaultContentType {
		return ct
	}
	return d.DetectFromData(data)
}

// DetectFromData sniffs the leading bytes.
func (d *DefaultContentTypeDetector) DetectFromData(data []byte) string {
	if len(data) == 0 {
		return defaultContentType
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}

	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return defaultContentType
	}
	return sniffed
}

// DetectFromFilename detects content type from filename extension
func (d *DefaultContentTypeDetector) DetectFromFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return defaultContentType
	}
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	return defaultContentType
}

// DetectFromContentType normalizes a Content-Type header, dropping parameters
// such as charset.
func (d *DefaultContentTypeDetector) DetectFromContentType(contentType string) string {
	if contentType == "" {
		return defaultContentType
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultContentType
	}

	return mediaType
}
