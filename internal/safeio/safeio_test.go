package safeio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFS(t *testing.T) (*SafeFS, string) {
	t.Helper()
	root := t.TempDir()
	fs, err := NewSafeFS(root)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	return fs, root
}

func TestReadWriteRoundTrip(t *testing.T) {
	fs, _ := newFS(t)
	if err := fs.SafeWriteFile(filepath.Join("src", "lib.rs"), []byte("fn main() {}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := fs.SafeReadFile("src/lib.rs")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fn main() {}" {
		t.Fatalf("content = %q", data)
	}
}

func TestTraversalRejected(t *testing.T) {
	fs, _ := newFS(t)
	if _, err := fs.SafeReadFile("../outside.txt"); err == nil {
		t.Fatalf("read escaped the root")
	}
	if err := fs.SafeWriteFile("../outside.txt", []byte("x")); err == nil {
		t.Fatalf("write escaped the root")
	}
	if err := fs.SafeWriteFile("..", []byte("x")); err == nil {
		t.Fatalf("write to parent allowed")
	}
}

func TestSymlinkEscapeRejected(t *testing.T) {
	fs, root := newFS(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	if _, err := fs.SafeReadFile("link"); err == nil {
		t.Fatalf("symlink escaped the root")
	}
}

func TestReadDirRejectsFile(t *testing.T) {
	fs, _ := newFS(t)
	if err := fs.SafeWriteFile("plain.txt", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := fs.SafeReadDir("plain.txt"); err == nil {
		t.Fatalf("read dir of a file")
	}
}

func TestRootResolved(t *testing.T) {
	fs, root := newFS(t)
	got := fs.Root()
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != resolved {
		t.Fatalf("root = %q, want %q", got, resolved)
	}
	if strings.Contains(got, "..") {
		t.Fatalf("root not cleaned: %q", got)
	}
}
