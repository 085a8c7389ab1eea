package mirror

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func TestNew_InvalidEndpoint(t *testing.T) {
	cfg := Config{
		Endpoint:  "invalid-endpoint:port:scheme",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "antgrid-test",
	}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error with invalid endpoint, got nil")
	}
}

func loadConfigFromEnv(t *testing.T) Config {
	t.Helper()
	_ = godotenv.Load("../../../../.env.test")

	cfg := Config{
		Endpoint:  os.Getenv("ANTGRID_MIRROR_ENDPOINT"),
		AccessKey: os.Getenv("ANTGRID_MIRROR_ACCESS_KEY"),
		SecretKey: os.Getenv("ANTGRID_MIRROR_SECRET_KEY"),
		UseSSL:    os.Getenv("ANTGRID_MIRROR_USE_SSL") == "true",
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		t.Skip("ANTGRID_MIRROR_ENDPOINT, ANTGRID_MIRROR_ACCESS_KEY and ANTGRID_MIRROR_SECRET_KEY not set")
	}
	return cfg
}

func TestClient_PutGet_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := loadConfigFromEnv(t)
	cfg.Bucket = "antgrid-test-" + time.Now().Format("20060102-150405")

	ctx := context.Background()
	c, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to initialize mirror: %v", err)
	}

	found, err := c.Get(ctx, "missing/key.tif", &bytes.Buffer{})
	if err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}

	content := "bedmap2 archive bytes"
	if err := c.Put(ctx, "abc/bedmap2_tiff.zip", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var buf bytes.Buffer
	found, err = c.Get(ctx, "abc/bedmap2_tiff.zip", &buf)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if buf.String() != content {
		t.Errorf("expected %q, got %q", content, buf.String())
	}
}
