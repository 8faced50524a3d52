// Package store provides the durable backends for the ROI registry: a JSON
// document store for file-based deployments and a SQLite store sharing the
// same schema semantics. Both persist the full registry document on every
// save, matching the registry's write-through discipline.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timberline/sortline/internal/roi"
)

// FileStore persists the registry document as an indented JSON file. Writes
// go through a temp file and rename so a crash mid-write never leaves a
// truncated document behind.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the full document, replacing any previous contents.
func (s *FileStore) Save(doc roi.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal roi document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// Load reads the persisted document. ok is false when no document exists.
func (s *FileStore) Load() (roi.Document, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return roi.Document{}, false, nil
		}
		return roi.Document{}, false, fmt.Errorf("read registry file: %w", err)
	}

	var doc roi.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return roi.Document{}, false, fmt.Errorf("parse registry file: %w", err)
	}
	if doc.SchemaVersion > roi.SchemaVersion {
		return roi.Document{}, false, fmt.Errorf("registry schema version %d is newer than supported %d", doc.SchemaVersion, roi.SchemaVersion)
	}
	if doc.Cameras == nil {
		doc.Cameras = make(map[string]map[string]roi.Definition)
	}
	return doc, true, nil
}
