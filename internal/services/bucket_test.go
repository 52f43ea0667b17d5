package services_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
)

func TestLocalBucketService_RoundTrip(t *testing.T) {
	t.Setenv("LOCAL_STORAGE_DIR", t.TempDir())
	bucket, err := services.NewLocalBucketService(logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	key := "exports/u1/conversations.json"

	if err := bucket.UploadFile(ctx, key, strings.NewReader(`[{"id":"c1"}]`)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	r, err := bucket.DownloadFile(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	raw, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != `[{"id":"c1"}]` {
		t.Errorf("round-trip mismatch: %s", raw)
	}

	if err := bucket.DeleteFile(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := bucket.DownloadFile(ctx, key); err == nil {
		t.Error("download succeeded after delete")
	}
}

func TestLocalBucketService_TraversalKeysStayInsideStorageDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOCAL_STORAGE_DIR", dir)
	bucket, err := services.NewLocalBucketService(logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	// Rooting the key before cleaning strips the traversal, so the write
	// lands under the storage dir instead of escaping it.
	if err := bucket.UploadFile(ctx, "../../outside.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); err != nil {
		t.Errorf("file not confined to storage dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "outside.txt")); err == nil {
		t.Error("file escaped the storage dir")
	}
}
