package connectors

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"bidintake/internal"
)

func TestArchiveStoreDedupes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "failed")
	archive := NewArchive(dir)
	msg := internal.FetchedMessage{UID: "7", Raw: []byte("Subject: broken\r\n\r\nbody")}

	first, err := archive.Store(msg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := archive.Store(msg)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("paths differ: %s %s", first, second)
	}

	blob, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, msg.Raw) {
		t.Fatal("archived bytes differ")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
}

func TestArchiveDisabled(t *testing.T) {
	path, err := NewArchive("").Store(internal.FetchedMessage{Raw: []byte("x")})
	if err != nil || path != "" {
		t.Fatalf("path=%q err=%v", path, err)
	}
}
