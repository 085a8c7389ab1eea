package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistry_RecordLookupListDelete(t *testing.T) {
	ctx := context.Background()
	reg, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reg.Close()

	if _, ok, err := reg.Lookup(ctx, "https://example.org/a.zip"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	fetched := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{
		URL:       "https://example.org/a.zip",
		Path:      "/cache/ab/a.zip",
		SHA256:    "deadbeef",
		Size:      42,
		FetchedAt: fetched,
		Members:   []string{"a/readme.txt", "a/bed.tif"},
	}
	if err := reg.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := reg.Record(ctx, Entry{URL: "https://example.org/b.nc", Path: "/cache/cd/b.nc", SHA256: "cafe", FetchedAt: fetched}); err != nil {
		t.Fatalf("Record b: %v", err)
	}

	got, ok, err := reg.Lookup(ctx, entry.URL)
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got.SHA256 != "deadbeef" || got.Size != 42 || !got.FetchedAt.Equal(fetched) {
		t.Errorf("unexpected entry %+v", got)
	}
	if len(got.Members) != 2 || got.Members[1] != "a/bed.tif" {
		t.Errorf("unexpected members %v", got.Members)
	}

	// Re-recording replaces the row.
	entry.Size = 43
	if err := reg.Record(ctx, entry); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Size != 43 || list[1].URL != "https://example.org/b.nc" {
		t.Errorf("unexpected list %+v", list)
	}
	if list[1].Members != nil && len(list[1].Members) != 0 {
		t.Errorf("expected no members, got %v", list[1].Members)
	}

	if err := reg.Delete(ctx, entry.URL); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := reg.Lookup(ctx, entry.URL); ok {
		t.Error("expected entry to be deleted")
	}
}
