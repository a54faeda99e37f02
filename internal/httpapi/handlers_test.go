package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"gocloud.dev/blob/memblob"

	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
	"github.com/ahmad-alkadri/depot-dataservice/internal/services"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

func newTestServer(t *testing.T, opts Options) (*Server, *metrics.Metrics) {
	t.Helper()
	client := storage.NewGoCloudClientFromBucket(memblob.OpenBucket(nil), zerolog.Nop())
	t.Cleanup(func() { client.Close() })

	m := metrics.New(prometheus.NewRegistry())
	svc := services.NewDataService(client, nil, nil, m, zerolog.Nop())
	if opts.DefaultContainer == "" {
		opts.DefaultContainer = "depot-payloads"
	}
	return NewServer(svc, opts, m, zerolog.Nop()), m
}

func do(t *testing.T, srv http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return response
}

func TestHandler_UploadDownloadDelete(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	payload := []byte(`{"test": "data"}`)
	w := do(t, srv, http.MethodPut, "/containers/reports/blobs/2025/q1.json", payload, map[string]string{
		"Content-Type": "application/json",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	response := decode(t, w)
	if response["key"] != "2025/q1.json" {
		t.Errorf("Expected key 2025/q1.json, got %v", response["key"])
	}
	if response["etag"] == "" {
		t.Error("Expected an etag")
	}
	if response["size"] != float64(len(payload)) {
		t.Errorf("Expected size %d, got %v", len(payload), response["size"])
	}

	w = do(t, srv, http.MethodGet, "/containers/reports/blobs/2025/q1.json", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Errorf("Expected body %s, got %s", payload, w.Body.Bytes())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	w = do(t, srv, http.MethodDelete, "/containers/reports/blobs/2025/q1.json", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/containers/reports/blobs/2025/q1.json", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestHandler_UploadConflict(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	target := "/containers/reports/blobs/once.txt?overwrite=false"
	if w := do(t, srv, http.MethodPut, target, []byte("first"), nil); w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	w := do(t, srv, http.MethodPut, target, []byte("second"), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPut, "/containers/reports/blobs/once.txt?overwrite=maybe", []byte("x"), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad overwrite flag, got %d", w.Code)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, Options{MaxUploadBytes: 8})

	w := do(t, srv, http.MethodPut, "/containers/reports/blobs/big.bin", bytes.Repeat([]byte("x"), 64), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
}

func TestHandler_CreateWithFilename(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	w := do(t, srv, http.MethodPost, "/default/blobs?prefix=inbox", []byte("a,b\n1,2\n"), map[string]string{
		"Content-Type":        "text/csv",
		"Content-Disposition": `attachment; filename="data.csv"`,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	response := decode(t, w)
	if response["container"] != "depot-payloads" {
		t.Errorf("Expected default container, got %v", response["container"])
	}
	if response["key"] != "inbox/data.csv" {
		t.Errorf("Expected key inbox/data.csv, got %v", response["key"])
	}
}

func TestHandler_CreateGeneratesKey(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	w := do(t, srv, http.MethodPost, "/containers/raw/blobs", []byte("anonymous"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	key, _ := decode(t, w)["key"].(string)
	if len(key) != 36 {
		t.Errorf("Expected generated UUID key, got %q", key)
	}
}

func TestHandler_CreateMultipart(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "one.txt")
	part.Write([]byte("one"))
	part, _ = writer.CreateFormFile("file", "two.json")
	part.Write([]byte(`{"two":2}`))
	writer.Close()

	w := do(t, srv, http.MethodPost, "/containers/batch/blobs", body.Bytes(), map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	response := decode(t, w)
	if response["count"] != float64(2) {
		t.Errorf("Expected 2 files, got %v", response["count"])
	}

	w = do(t, srv, http.MethodGet, "/containers/batch/blobs", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	list := decode(t, w)
	if list["count"] != float64(2) {
		t.Errorf("Expected 2 listed objects, got %v", list["count"])
	}
}

// partialUploadService stores the first multipart file and then fails.
type partialUploadService struct {
	DataService
	err error
}

func (s *partialUploadService) UploadMultipart(_ context.Context, container, prefix, _ string, _ []byte) ([]services.UploadedFile, error) {
	return []services.UploadedFile{{Container: container, Key: prefix + "/one.txt", ETag: "e1", Size: 3}}, s.err
}

func (s *partialUploadService) Backend() string { return "stub" }

func TestHandler_CreateMultipartReportsStoredFilesOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"backend failure", fmt.Errorf("upload batch/in/two.txt: %w", storage.ErrContainerNotFound), http.StatusNotFound},
		{"internal failure", fmt.Errorf("upload batch/in/two.txt: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&partialUploadService{err: tt.err}, Options{DefaultContainer: "depot-payloads"}, nil, zerolog.Nop())

			w := do(t, srv, http.MethodPost, "/containers/batch/blobs?prefix=in", []byte("--x--"), map[string]string{
				"Content-Type": "multipart/form-data; boundary=x",
			})
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			response := decode(t, w)
			if response["error"] == nil || response["error"] == "" {
				t.Error("Expected an error message")
			}
			if response["count"] != float64(1) {
				t.Errorf("Expected count 1, got %v", response["count"])
			}
			files, ok := response["files"].([]any)
			if !ok || len(files) != 1 {
				t.Fatalf("Expected one stored file in the error body, got %v", response["files"])
			}
			if key := files[0].(map[string]any)["key"]; key != "in/one.txt" {
				t.Errorf("Expected stored key in/one.txt, got %v", key)
			}
		})
	}
}

func TestHandler_EscapedSlashInKey(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	w := do(t, srv, http.MethodPut, "/containers/c/blobs/a%2Fb.txt", []byte("escaped"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if key := decode(t, w)["key"]; key != "a/b.txt" {
		t.Errorf("Expected key a/b.txt, got %v", key)
	}

	w = do(t, srv, http.MethodGet, "/containers/c/blobs/a/b.txt", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "escaped" {
		t.Errorf("Expected body escaped, got %q", w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/containers/c/blobs/a%2Fb.txt", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected escaped GET to find the same blob, got %d", w.Code)
	}

	w = do(t, srv, http.MethodDelete, "/containers/c/blobs/a%2Fb.txt", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_ListEmpty(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	w := do(t, srv, http.MethodGet, "/containers/empty/blobs", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"objects":[]`) {
		t.Errorf("Expected empty objects array, got %s", w.Body.String())
	}
}

func TestHandler_Archive(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, key := range []string{"logs/a.log", "logs/b.log", "keep/c.log"} {
		if w := do(t, srv, http.MethodPut, "/containers/app/blobs/"+key, []byte(key), nil); w.Code != http.StatusCreated {
			t.Fatalf("Upload %s: expected 201, got %d", key, w.Code)
		}
	}

	w := do(t, srv, http.MethodGet, "/containers/app/archive?prefix=logs/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "app_logs.zip") {
		t.Errorf("Unexpected Content-Disposition %s", cd)
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("Expected 2 archived files, got %d", len(zr.File))
	}

	w = do(t, srv, http.MethodGet, "/containers/app/archive?prefix=none/", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for empty archive, got %d", w.Code)
	}
}

func TestHandler_RequestID(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	w := do(t, srv, http.MethodGet, "/containers/c/blobs/missing", nil, map[string]string{
		RequestIDHeader: "trace-123",
	})
	if got := w.Header().Get(RequestIDHeader); got != "trace-123" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
	if decode(t, w)["request_id"] != "trace-123" {
		t.Error("Expected request ID in error body")
	}

	w = do(t, srv, http.MethodGet, "/healthz", nil, nil)
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("Expected generated request ID, got %q", w.Header().Get(RequestIDHeader))
	}
}

func TestHandler_RateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	if w := do(t, srv, http.MethodGet, "/containers/c/blobs", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/containers/c/blobs", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected health check to bypass rate limit, got %d", w.Code)
	}

	srv.SetRateLimit(0, 0)
	if w := do(t, srv, http.MethodGet, "/containers/c/blobs", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected request to pass after removing limit, got %d", w.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	srv, m := newTestServer(t, Options{})

	do(t, srv, http.MethodGet, "/healthz", nil, nil)
	do(t, srv, http.MethodGet, "/containers/c/blobs/nope", nil, nil)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/healthz", "200")); got != 1 {
		t.Errorf("Expected 1 healthz request, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/containers/{container}/blobs/*", "404")); got != 1 {
		t.Errorf("Expected 1 not found download, got %v", got)
	}
}
