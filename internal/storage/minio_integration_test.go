//go:build integration
// +build integration

package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/config"
)

// Integration tests that require a real MinIO instance
// Run with: go test -tags=integration ./...

func newIntegrationMinio(t *testing.T) (*MinioClient, string) {
	t.Helper()
	if os.Getenv("MINIO_ENDPOINT") == "" {
		t.Skip("Skipping integration test: MINIO_ENDPOINT not set")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	client, err := NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create MinIO client: %v", err)
	}
	if err := client.EnsureContainer(context.Background(), cfg.DefaultContainer); err != nil {
		t.Fatalf("EnsureContainer() error = %v", err)
	}
	return client, cfg.DefaultContainer
}

func TestMinioClient_Integration(t *testing.T) {
	client, container := newIntegrationMinio(t)
	ctx := context.Background()
	stamp := time.Now().Format("20060102_150405")

	t.Run("UploadAndDownload_JSON", func(t *testing.T) {
		key := "it/json_" + stamp + ".json"
		data := []byte(`{"test": "integration", "timestamp": "` + time.Now().Format(time.RFC3339) + `"}`)

		result, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), UploadOptions{
			ContentType: "application/json",
			Overwrite:   true,
		})
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if result.Identifier() == "" {
			t.Error("Expected a non-empty identifier")
		}

		var buf bytes.Buffer
		if err := client.Download(ctx, container, key, &buf); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if !bytes.Equal(data, buf.Bytes()) {
			t.Errorf("Data mismatch. Expected %s, got %s", data, buf.Bytes())
		}
	})

	t.Run("NoOverwrite", func(t *testing.T) {
		key := "it/once_" + stamp + ".bin"
		data := []byte{0x00, 0x01, 0x02, 0x03, 0xFF}
		opts := UploadOptions{Overwrite: false}

		if _, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			t.Fatalf("first Upload() error = %v", err)
		}
		_, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), opts)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		prefix := "it/list_" + stamp + "/"
		keys := []string{prefix + "1.json", prefix + "2.txt", prefix + "3.bin"}
		for _, key := range keys {
			data := []byte("test data for " + key)
			if _, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), UploadOptions{Overwrite: true}); err != nil {
				t.Fatalf("Upload(%s) error = %v", key, err)
			}
		}

		objects, err := client.List(ctx, container, prefix)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(objects) != len(keys) {
			t.Errorf("Expected %d objects, got %d", len(keys), len(objects))
		}
	})

	t.Run("LargeObject", func(t *testing.T) {
		key := "it/large_" + stamp + ".bin"
		data := make([]byte, 1024*1024)
		for i := range data {
			data[i] = byte(i % 256)
		}

		if _, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), UploadOptions{Overwrite: true}); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		var buf bytes.Buffer
		if err := client.Download(ctx, container, key, &buf); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if buf.Len() != len(data) {
			t.Errorf("Size mismatch. Expected %d bytes, got %d bytes", len(data), buf.Len())
		}
	})

	t.Run("DeleteThenDownload", func(t *testing.T) {
		key := "it/delete_" + stamp + ".txt"
		data := []byte("short lived")
		if _, err := client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), UploadOptions{Overwrite: true}); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if err := client.Delete(ctx, container, key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		err := client.Download(ctx, container, key, &bytes.Buffer{})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMinioClient_Integration_InvalidCredentials(t *testing.T) {
	if os.Getenv("MINIO_ENDPOINT") == "" {
		t.Skip("Skipping integration test: MINIO_ENDPOINT not set")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	client, err := NewMinioClient(cfg.Minio.Endpoint, "invalid_key", "invalid_secret", cfg.Minio.UseSSL, zerolog.Nop())
	if err != nil {
		return
	}
	data := []byte("test")
	_, err = client.Upload(context.Background(), cfg.DefaultContainer, "test.txt", bytes.NewReader(data), int64(len(data)), UploadOptions{Overwrite: true})
	if err == nil {
		t.Error("Expected error with invalid credentials, but operation succeeded")
	}
}
