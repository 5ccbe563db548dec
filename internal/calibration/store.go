// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relabs-tech/inertial_rover/internal/orientation"
)

// Names of the persisted vectors.
const (
	NameGyro = "gyro"
	NameTilt = "tilt"
)

var (
	// ErrNotFound means no vector has been stored under the name yet.
	ErrNotFound = errors.New("calibration not found")
	// ErrInvalidData means the stored vector is unreadable or has the wrong length.
	ErrInvalidData = errors.New("calibration data invalid")
)

// Store maps a name to an ordered vector of floats.
type Store interface {
	Load(name string, n int) []float64
	Save(name string, values []float64) error
}

// fileContents is the JSON document on disk.
type fileContents struct {
	SchemaVersion int                  `json:"schema_version"`
	UpdatedAt     string               `json:"updated_at"` // RFC3339
	Vectors       map[string][]float64 `json:"vectors"`
}

// FileStore keeps all vectors in one JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// LoadChecked returns the vector stored under name. The returned slice is
// always usable: on any error it is n zeros, and the error says why.
func (s *FileStore) LoadChecked(name string, n int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	zeros := make([]float64, n)

	doc, err := s.readLocked()
	if err != nil {
		return zeros, err
	}
	v, ok := doc.Vectors[name]
	if !ok {
		return zeros, fmt.Errorf("%w: %q in %s", ErrNotFound, name, s.path)
	}
	if len(v) != n {
		return zeros, fmt.Errorf("%w: %q has %d values, want %d", ErrInvalidData, name, len(v), n)
	}
	return append([]float64(nil), v...), nil
}

// Load is LoadChecked with the fallback logged instead of returned.
// Missing calibration only degrades accuracy, so it is never fatal.
func (s *FileStore) Load(name string, n int) []float64 {
	v, err := s.LoadChecked(name, n)
	if err != nil {
		log.Printf("calibration: using zero %s offsets: %v", name, err)
	}
	return v
}

// Save stores values under name, keeping the other vectors in the file.
// The file is replaced atomically.
func (s *FileStore) Save(name string, values []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Warning: calibration: rewriting unreadable %s: %v", s.path, err)
		}
		doc = &fileContents{}
	}
	if doc.Vectors == nil {
		doc.Vectors = map[string][]float64{}
	}
	doc.SchemaVersion = 1
	doc.UpdatedAt = time.Now().Format(time.RFC3339)
	doc.Vectors[name] = append([]float64(nil), values...)

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".calibration-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) readLocked() (*fileContents, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	var doc fileContents
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidData, s.path, err)
	}
	return &doc, nil
}

// LoadOffsets reads both offset vectors, zero-filling what is missing.
func LoadOffsets(store Store) orientation.Offsets {
	var off orientation.Offsets
	copy(off.Gyro[:], store.Load(NameGyro, len(off.Gyro)))
	copy(off.Tilt[:], store.Load(NameTilt, len(off.Tilt)))
	return off
}
