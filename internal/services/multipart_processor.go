package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"
)

// MultipartProcessor splits a multipart/form-data body into one Part per file.
type MultipartProcessor struct {
	contentTypeDetector ContentTypeDetector
}

// NewMultipartProcessor creates a new multipart processor
func NewMultipartProcessor(detector ContentTypeDetector) *MultipartProcessor {
	return &MultipartProcessor{
		contentTypeDetector: detector,
	}
}

// Process returns the file parts of body. Each part's key is its filename,
// placed under prefix when one is given. Non-file form fields are skipped.
func (p *MultipartProcessor) Process(prefix string, data []byte, contentType string) ([]Part, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing media type: %v", ErrInvalidArgument, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: expected multipart body, got %s", ErrInvalidArgument, mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart body without boundary", ErrInvalidArgument)
	}
	mr := multipart.NewReader(bytes.NewReader(data), boundary)

	var parts []Part

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: error reading part: %v", ErrInvalidArgument, err)
		}

		receivedFileName := part.FileName()
		if receivedFileName == "" {
			continue
		}

		partData, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("%w: error reading part %s: %v", ErrInvalidArgument, receivedFileName, err)
		}

		// The part header wins over the extension when it names a real type.
		fileContentType := p.contentTypeDetector.DetectFromContentType(part.Header.Get("Content-Type"))
		if fileContentType == defaultContentType {
			fileContentType = p.contentTypeDetector.DetectFromFilename(receivedFileName)
		}

		parts = append(parts, Part{
			Key:         p.objectKey(prefix, receivedFileName),
			Data:        partData,
			ContentType: fileContentType,
			Filename:    receivedFileName,
		})
	}

	return parts, nil
}

func (p *MultipartProcessor) objectKey(prefix, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if prefix == "" {
		return base
	}
	return strings.TrimSuffix(prefix, "/") + "/" + base
}
