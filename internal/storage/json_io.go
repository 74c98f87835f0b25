package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Snapshotter reads and writes the whole nomination map at once.
type Snapshotter interface {
	Load() (map[string]Record, error)
	Save(map[string]Record) error
}

// JSONFile keeps the snapshot in a single JSON document.
type JSONFile struct {
	path string
	mode os.FileMode
}

func NewJSONFile(path string, mode os.FileMode) *JSONFile {
	return &JSONFile{path: path, mode: mode}
}

// Load returns an empty map when the file does not exist yet.
func (f *JSONFile) Load() (map[string]Record, error) {
	out := make(map[string]Record)
	if err := readJSON(f.path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *JSONFile) Save(records map[string]Record) error {
	return writeJSON(f.path, records, f.mode)
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

// writeJSON writes to a temp file, syncs it and renames it over path.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := fh.Write(b); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

var _ Snapshotter = (*JSONFile)(nil)
