package services

// ContentTypeDetector detects content types from data or filenames
type ContentTypeDetector interface {
	Detect(key string, data []byte) string
	DetectFromData(data []byte) string
	DetectFromFilename(filename string) string
	DetectFromContentType(contentType string) string
}

// FilenameExtractor extracts filenames from HTTP requests
type FilenameExtractor interface {
	Extract(contentDisposition string) string
}

// IDGenerator generates unique identifiers
type IDGenerator interface {
	Generate() string
}

// ZipService handles creating zip archives
type ZipService interface {
	CreateZip(entries []ArchiveEntry) ([]byte, error)
}

// ArchiveEntry is one file inside a zip archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// Part is a single file taken out of a multipart body.
type Part struct {
	Key         string
	Data        []byte
	ContentType string
	Filename    string
}

// UploadedFile reports one stored object back to the caller.
type UploadedFile struct {
	Container   string `json:"container"`
	Key         string `json:"key"`
	ETag        string `json:"etag"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}
