package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ahmad-alkadri/depot-dataservice/internal/services"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

// FormatUploadResponse formats the response for a single stored blob
func FormatUploadResponse(container, key string, result storage.UploadResult, at time.Time) map[string]any {
	response := map[string]any{
		"status":    "stored",
		"container": container,
		"key":       key,
		"etag":      result.Identifier(),
		"size":      result.Size,
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	if result.VersionID != "" {
		response["version_id"] = result.VersionID
	}
	return response
}

// FormatMultipartResponse formats the response for a multipart upload
func FormatMultipartResponse(container string, files []services.UploadedFile) map[string]any {
	return map[string]any{
		"status":    "stored",
		"container": container,
		"files":     files,
		"count":     len(files),
	}
}

// FormatListResponse formats the response for list endpoint
func FormatListResponse(container, prefix string, objects []storage.ObjectInfo) map[string]any {
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	return map[string]any{
		"container": container,
		"prefix":    prefix,
		"count":     len(objects),
		"objects":   objects,
	}
}

// ArchiveFilename names the zip returned for container/prefix.
func ArchiveFilename(container, prefix string) string {
	name := container
	if p := strings.Trim(prefix, "/"); p != "" {
		name += "_" + strings.ReplaceAll(p, "/", "_")
	}
	return name + ".zip"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorBody(r, message))
}

func errorBody(r *http.Request, message string) map[string]any {
	return map[string]any{
		"error":      message,
		"request_id": services.RequestIDFromContext(r.Context()),
	}
}
