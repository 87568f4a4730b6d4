package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	if _, err := NewFileStore("", nil); err == nil {
		t.Error("NewFileStore(\"\") should fail")
	}
}

func TestNewFileStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := NewFileStore(dir, nil); err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("storage dir was not created: %v", err)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	in := record{Name: "session", Count: 3}
	if err := fs.Save("session", in); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	var out record
	if err := fs.Load("session", &out); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if out != in {
		t.Errorf("Load() = %+v, want %+v", out, in)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	var out record
	if err := fs.Load("missing", &out); err != ErrNotFound {
		t.Errorf("Load() = %v, want ErrNotFound", err)
	}
}

func TestLoadCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("cannot seed corrupt file: %v", err)
	}

	var out record
	err = fs.Load("bad", &out)
	if err == nil || err == ErrNotFound {
		t.Errorf("Load() = %v, want corrupt-record error", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	if err := fs.Save("session", record{Count: 1}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := fs.Save("session", record{Count: 2}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	var out record
	if err := fs.Load("session", &out); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	if err := fs.Save("session", record{Count: 1}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("cannot list storage dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestDelete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	if err := fs.Save("session", record{Count: 1}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := fs.Delete("session"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	var out record
	if err := fs.Load("session", &out); err != ErrNotFound {
		t.Errorf("Load() after delete = %v, want ErrNotFound", err)
	}

	// Deleting a record twice is fine.
	if err := fs.Delete("session"); err != nil {
		t.Errorf("Delete() of missing record = %v, want nil", err)
	}
}
