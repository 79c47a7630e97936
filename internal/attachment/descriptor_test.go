package attachment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromPayload_ShapeInvariance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo")
	if err := os.WriteFile(path, []byte("jpegdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	payloads := map[string]any{
		"legacy tuple": []any{"image/jpeg", "photo.jpg", "photo", int64(8)},
		"rich record": map[string]any{
			"file":        path,
			"contentType": "image/jpeg",
			"fileName":    "photo.jpg",
			"size":        int64(8),
		},
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			d, err := FromPayload(payload, dir)
			if err != nil {
				t.Fatalf("FromPayload: %v", err)
			}
			if got := d.Path(); got != path {
				t.Errorf("Path() = %q, want %q", got, path)
			}
			ct, err := d.ContentType()
			if err != nil || ct != "image/jpeg" {
				t.Errorf("ContentType() = %q, %v, want image/jpeg", ct, err)
			}
			size, err := d.Size()
			if err != nil || size != 8 {
				t.Errorf("Size() = %d, %v, want 8", size, err)
			}
			if got := d.RemoteName(); got != "photo.jpg" {
				t.Errorf("RemoteName() = %q, want photo.jpg", got)
			}
		})
	}
}

func TestFromPayload_BarePathDerivesFacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan")
	// PNG magic so the sniffer has something to recognize.
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 24)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := FromPayload(path, dir)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	if d.RemoteName() != "" {
		t.Errorf("bare path should have no remote name, got %q", d.RemoteName())
	}
	size, err := d.Size()
	if err != nil || size != int64(len(data)) {
		t.Errorf("Size() = %d, %v, want %d", size, err, len(data))
	}
	ct, err := d.ContentType()
	if err != nil {
		t.Fatalf("ContentType: %v", err)
	}
	if ct != "image/png" {
		t.Errorf("ContentType() = %q, want image/png", ct)
	}
}

func TestFromPayload_SniffFallback(t *testing.T) {
	d := BarePath(filepath.Join(t.TempDir(), "missing"))
	ct, err := d.ContentType()
	if err == nil {
		t.Error("expected error for unreadable file")
	}
	if ct != DefaultContentType {
		t.Errorf("ContentType() = %q, want %q", ct, DefaultContentType)
	}
}

func TestFromPayload_UnsupportedShape(t *testing.T) {
	cases := []any{
		42,
		[]any{"only", "three", "elems"},
		map[string]any{"contentType": "image/png"}, // no file key
		[]any{1, 2, 3, 4},
	}
	for _, payload := range cases {
		if _, err := FromPayload(payload, "/tmp"); !errors.Is(err, ErrUnsupportedShape) {
			t.Errorf("FromPayload(%#v) err = %v, want ErrUnsupportedShape", payload, err)
		}
	}
}

func TestFromPayload_IntegerWidths(t *testing.T) {
	for _, size := range []any{int64(7), uint64(7), int32(7), uint32(7), int(7), float64(7)} {
		d, err := FromPayload([]any{"text/plain", "a.txt", "a", size}, "/data")
		if err != nil {
			t.Fatalf("size %T: %v", size, err)
		}
		got, err := d.Size()
		if err != nil || got != 7 {
			t.Errorf("size %T: Size() = %d, %v", size, got, err)
		}
	}
}

func TestLegacyTuple_JoinsAttachmentDir(t *testing.T) {
	d := LegacyTuple("text/plain", "note.txt", "12345", 10, "/var/attachments")
	want := filepath.Join("/var/attachments", "12345")
	if d.Path() != want {
		t.Errorf("Path() = %q, want %q", d.Path(), want)
	}
	if !strings.HasSuffix(d.Path(), "12345") {
		t.Errorf("path should end with the embedded relative name")
	}
}
