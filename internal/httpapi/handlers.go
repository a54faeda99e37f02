package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/services"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

// Handler handles HTTP requests and responses
type Handler struct {
	service           DataService
	defaultContainer  string
	filenameExtractor services.FilenameExtractor
	idGenerator       services.IDGenerator
	detector          services.ContentTypeDetector
	logger            zerolog.Logger
}

// NewHandler creates a new HTTP handler with dependencies
func NewHandler(
	service DataService,
	opts Options,
	filenameExtractor services.FilenameExtractor,
	idGenerator services.IDGenerator,
	detector services.ContentTypeDetector,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		service:           service,
		defaultContainer:  opts.DefaultContainer,
		filenameExtractor: filenameExtractor,
		idGenerator:       idGenerator,
		detector:          detector,
		logger:            logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": h.service.Backend(),
	})
}

// Upload stores the request body at the key in the URL. ?overwrite=false
// refuses to replace an existing object.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	container, key, ok := h.location(w, r)
	if !ok {
		return
	}

	overwrite := true
	if v := r.URL.Query().Get("overwrite"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid overwrite parameter")
			return
		}
		overwrite = parsed
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	opts := storage.UploadOptions{Overwrite: overwrite}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		opts.ContentType = h.detector.DetectFromContentType(ct)
	}

	result, err := h.service.UploadDataWithOptions(r.Context(), container, key, body, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, FormatUploadResponse(container, key, result, time.Now()))
}

// Create accepts a POST to the blob collection. Multipart bodies store one
// object per file; any other body is stored under the Content-Disposition
// filename, or under a generated ID when none is given. ?prefix= is prepended
// to the key in both cases.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	container := h.container(r)
	prefix := strings.Trim(r.URL.Query().Get("prefix"), "/")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "multipart/") {
		files, err := h.service.UploadMultipart(r.Context(), container, prefix, contentType, body)
		if err != nil {
			status, response := h.serviceError(r, err)
			// Parts stored before the failure stay stored; tell the caller which.
			if len(files) > 0 {
				response["files"] = files
				response["count"] = len(files)
			}
			writeJSON(w, status, response)
			return
		}
		writeJSON(w, http.StatusCreated, FormatMultipartResponse(container, files))
		return
	}

	key := h.filenameExtractor.Extract(r.Header.Get("Content-Disposition"))
	if key == "" {
		key = h.idGenerator.Generate()
	}
	if prefix != "" {
		key = prefix + "/" + key
	}

	opts := storage.UploadOptions{Overwrite: true}
	if contentType != "" {
		opts.ContentType = h.detector.DetectFromContentType(contentType)
	}
	result, err := h.service.UploadDataWithOptions(r.Context(), container, key, body, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FormatUploadResponse(container, key, result, time.Now()))
}

// Download writes the stored bytes back.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	container, key, ok := h.location(w, r)
	if !ok {
		return
	}

	data, err := h.service.DownloadData(r.Context(), container, key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", h.detector.Detect(key, data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.URL.Query().Get("download") == "true" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": baseName(key)}))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Delete removes a blob.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	container, key, ok := h.location(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteData(r.Context(), container, key); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns the blobs in a container, optionally filtered by ?prefix=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	container := h.container(r)
	prefix := r.URL.Query().Get("prefix")

	objects, err := h.service.ListData(r.Context(), container, prefix)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FormatListResponse(container, prefix, objects))
}

// Archive streams a zip of every blob under ?prefix=.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	container := h.container(r)
	prefix := r.URL.Query().Get("prefix")

	data, err := h.service.ArchiveData(r.Context(), container, prefix)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": ArchiveFilename(container, prefix),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) container(r *http.Request) string {
	if c, err := pathParam(r, "container"); err == nil && c != "" {
		return c
	}
	return h.defaultContainer
}

// location resolves container and key for the blob routes, answering 400 when
// the key is missing or badly escaped.
func (h *Handler) location(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	key, err := blobKey(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid blob key")
		return "", "", false
	}
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "missing blob key")
		return "", "", false
	}
	return h.container(r), key, true
}

func blobKey(r *http.Request) (string, error) {
	key, err := pathParam(r, "*")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(key, "/"), nil
}

// pathParam returns the decoded URL parameter. chi matches against RawPath
// when the request has one, so escapes such as %2F are still present there.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// readBody reads the whole request body, answering 413 when it exceeds the limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
			return nil, false
		}
		h.logger.Warn().Err(err).Msg("error reading body")
		writeError(w, r, http.StatusBadRequest, "error reading request body")
		return nil, false
	}
	return body, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, response := h.serviceError(r, err)
	writeJSON(w, status, response)
}

// serviceError maps err to a status and an error body. Internal errors are
// logged and hidden from the client.
func (h *Handler) serviceError(r *http.Request, err error) (int, map[string]any) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("request_id", services.RequestIDFromContext(r.Context())).
			Msg("request failed")
		message = "storage operation failed"
	}
	return status, errorBody(r, message)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrContainerNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
