package services

import (
	"mime"
	"path"
	"strings"
)

// DefaultFilenameExtractor extracts filenames from HTTP headers
type DefaultFilenameExtractor struct{}

// NewDefaultFilenameExtractor creates a new filename extractor
func NewDefaultFilenameExtractor() *DefaultFilenameExtractor {
	return &DefaultFilenameExtractor{}
}

// Extract returns the base name from a Content-Disposition header, or "" when
// the header carries none. Directory components are dropped.
func (e *DefaultFilenameExtractor) Extract(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}

	filename := params["filename"]
	if filename == "" {
		return ""
	}

	// Windows clients sometimes send full paths.
	filename = path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if filename == "." || filename == "/" {
		return ""
	}
	return filename
}
