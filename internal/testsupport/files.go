package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Payload returns n deterministic bytes, handy as a fake media body.
func Payload(n int) []byte {
	if n <= 0 {
		return nil
	}
	return bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), n/26+1)[:n]
}

// WriteFile creates path with size bytes of Payload content and any missing
// parent directories. Sizes below one write a single byte so the file is
// never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size < 1 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, Payload(int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Backdate sets the access and modification time of every path to age ago,
// making entries look stale to the ephemeral sweeper.
func Backdate(t testing.TB, age time.Duration, paths ...string) {
	t.Helper()
	when := time.Now().Add(-age)
	for _, p := range paths {
		if err := os.Chtimes(p, when, when); err != nil {
			t.Fatalf("backdate %s: %v", p, err)
		}
	}
}
