package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

// DefaultZipService handles creating zip archives
type DefaultZipService struct{}

// NewDefaultZipService creates a new zip service
func NewDefaultZipService() *DefaultZipService {
	return &DefaultZipService{}
}

// CreateZip writes every entry into a single archive. Names are made relative
// and free of ".." so extracting the archive cannot escape the target
// directory. Duplicate names are stored as-is; zip readers keep the last one.
func (z *DefaultZipService) CreateZip(entries []ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	for _, entry := range entries {
		f, err := zipWriter.CreateHeader(&zip.FileHeader{
			Name:     safeEntryName(entry.Name),
			Method:   zip.Deflate,
			Modified: time.Now().UTC(),
		})
		if err != nil {
			zipWriter.Close()
			return nil, fmt.Errorf("add %s to archive: %w", entry.Name, err)
		}
		if _, err := f.Write(entry.Data); err != nil {
			zipWriter.Close()
			return nil, fmt.Errorf("write %s to archive: %w", entry.Name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// safeEntryName turns an object key into a relative slash path with no ".."
// elements.
func safeEntryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	// Cleaning against the root drops any ".." that would climb above it.
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	if name == "" {
		return "unnamed"
	}
	return name
}
