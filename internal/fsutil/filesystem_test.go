package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_CreateAndOpen(t *testing.T) {
	var osfs OSFileSystem
	path := filepath.Join(t.TempDir(), "nested", "dir", "points.xyz")

	w, err := osfs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("1 2 3\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := osfs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 6 {
		t.Errorf("expected size 6, got %d", info.Size())
	}

	r, err := osfs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "1 2 3\n" {
		t.Errorf("expected %q, got %q", "1 2 3\n", data)
	}
}

func TestOSFileSystem_OpenMissing(t *testing.T) {
	_, err := OSFileSystem{}.Open(filepath.Join(t.TempDir(), "missing.xyz"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_CreateAndOpen(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/mesh.obj")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("v 0 0 0\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Content is not visible until Close.
	if _, ok := mfs.Bytes("/out/mesh.obj"); ok {
		t.Error("expected file to be absent before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("expected fs.ErrClosed on second Close, got %v", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("expected fs.ErrClosed on Write after Close, got %v", err)
	}

	r, err := mfs.Open("/out/../out/mesh.obj")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "v 0 0 0\n" {
		t.Errorf("expected %q, got %q", "v 0 0 0\n", data)
	}

	info, err := mfs.Stat("/out/mesh.obj")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "mesh.obj" || info.Size() != 8 || info.IsDir() {
		t.Errorf("unexpected file info: %s %d %v", info.Name(), info.Size(), info.IsDir())
	}
}

func TestMemoryFileSystem_PutCopies(t *testing.T) {
	mfs := NewMemoryFileSystem()
	data := []byte("abc")
	mfs.Put("b.txt", data)
	mfs.Put("a.txt", nil)
	data[0] = 'z'

	got, ok := mfs.Bytes("b.txt")
	if !ok || string(got) != "abc" {
		t.Errorf("expected stored copy %q, got %q", "abc", got)
	}
	got[1] = 'z'
	again, _ := mfs.Bytes("b.txt")
	if string(again) != "abc" {
		t.Errorf("expected Bytes to return a copy, got %q", again)
	}

	names := mfs.Names()
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Errorf("expected [a.txt b.txt], got %v", names)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if _, err := mfs.Open("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist from Open, got %v", err)
	}
	if _, err := mfs.Stat("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist from Stat, got %v", err)
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ FileSystem = OSFileSystem{}
	var _ FileSystem = NewMemoryFileSystem()
}
