package blob

import (
	"bytes"
	"context"
	"regexp"
	"testing"
)

func TestNewKey(t *testing.T) {
	key := NewKey("Scan 2024-03-01.pdf")

	// year/month/12-hex-chars.ext
	pattern := regexp.MustCompile(`^\d{4}/\d{2}/[0-9a-f]{12}\.pdf$`)
	if !pattern.MatchString(key) {
		t.Errorf("key = %q, want match for %s", key, pattern)
	}

	if NewKey("a.pdf") == NewKey("a.pdf") {
		t.Error("two keys for the same filename must differ")
	}
}

func TestNewKey_NoExtension(t *testing.T) {
	key := NewKey("README")
	if got := key[len(key)-4:]; got != ".bin" {
		t.Errorf("extension = %q, want .bin fallback", got)
	}
}

func TestPageKey(t *testing.T) {
	tests := []struct {
		source string
		page   int
		want   string
	}{
		{"2026/08/abcdef123456.pdf", 1, "2026/08/abcdef123456/pages/0001.png"},
		{"2026/08/abcdef123456.pdf", 12, "2026/08/abcdef123456/pages/0012.png"},
		{"nodot", 3, "nodot/pages/0003.png"},
	}
	for _, tt := range tests {
		if got := PageKey(tt.source, tt.page); got != tt.want {
			t.Errorf("PageKey(%q, %d) = %q, want %q", tt.source, tt.page, got, tt.want)
		}
	}
}

func TestFSStore_RoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()

	data := []byte("page raster bytes")
	if err := store.Put(ctx, "2026/08/abc/pages/0001.png", data, "image/png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "2026/08/abc/pages/0001.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestFSStore_MissingObject(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if _, err := store.Get(context.Background(), "does/not/exist.png"); err == nil {
		t.Error("Get of missing object succeeded, want error")
	}
}
