package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	aqm "github.com/aquamarinepk/aqm/log"
)

// ErrNotFound is returned by Load when the record has never been saved.
var ErrNotFound = errors.New("record not found")

// FileStore is a durable key-value store with one JSON file per record,
// written atomically via rename. It backs the session and delivery-cart
// records across process restarts.
type FileStore struct {
	dir    string
	logger aqm.Logger
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger aqm.Logger) (*FileStore, error) {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if dir == "" {
		return nil, fmt.Errorf("storage dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create storage dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name+".json")
}

// Load reads the named record into out. Returns ErrNotFound when the record
// does not exist; a corrupt record is reported as an error so the caller can
// decide to start fresh.
func (fs *FileStore) Load(name string, out interface{}) error {
	data, err := os.ReadFile(fs.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("cannot read record %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("corrupt record %s: %w", name, err)
	}
	return nil
}

// Save writes the named record. The write goes to a temp file first and is
// renamed into place so readers never observe a partial record.
func (fs *FileStore) Save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode record %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(fs.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp record %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close record %s: %w", name, err)
	}
	if err := os.Rename(tmpName, fs.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot commit record %s: %w", name, err)
	}
	fs.logger.Debug("record saved", "name", name, "bytes", len(data))
	return nil
}

// Delete removes the named record. Missing records are not an error.
func (fs *FileStore) Delete(name string) error {
	err := os.Remove(fs.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot delete record %s: %w", name, err)
	}
	return nil
}
