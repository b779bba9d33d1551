// Package artifact persists generated workflow output (plans, code, figures,
// documents) under a workspace and maintains the authoritative JSON index of
// metadata records. Registration is versioned: re-registering a path bumps
// the version and keeps the record id stable.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"papermill/pkg/events"
	"papermill/pkg/logx"
)

// Kind classifies an artifact.
type Kind string

const (
	KindPlan           Kind = "plan"
	KindCode           Kind = "code"
	KindFigure         Kind = "figure"
	KindLatex          Kind = "latex"
	KindData           Kind = "data"
	KindDocument       Kind = "document"
	KindModel          Kind = "model"
	KindExperiments    Kind = "experiments"
	KindAnalysis       Kind = "analysis"
	KindVisualizations Kind = "visualizations"
)

// Record is one index entry.
type Record struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Path        string         `json:"path"`
	Description string         `json:"description,omitempty"`
	Producer    string         `json:"producer,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Version     int            `json:"version"`
}

// NotFoundError is returned when a named artifact has no index entry or its
// file is missing on disk.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Name)
}

const (
	artifactsDirName = "artifacts"
	indexFileName    = "index.json"
)

// Store owns a workspace's artifact directory and index. A workspace must
// have at most one active Store; the index file carries no lock.
type Store struct {
	dir       string
	indexPath string
	notifier  events.Notifier
	logger    *logx.Logger

	mu      sync.Mutex
	records []Record
}

// NewStore opens (or creates) the artifact store for a workspace. An
// existing index is loaded so versioning continues across runs.
func NewStore(workspaceDir string, notifier events.Notifier) (*Store, error) {
	if notifier == nil {
		notifier = events.Discard
	}

	dir := filepath.Join(workspaceDir, artifactsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	s := &Store{
		dir:       dir,
		indexPath: filepath.Join(dir, indexFileName),
		notifier:  notifier,
		logger:    logx.NewLogger("artifacts"),
	}

	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact index: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("failed to parse artifact index %s: %w", s.indexPath, err)
	}

	return s, nil
}

// Dir returns the artifact directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Register adds or updates the index entry for a storage path. A path
// already present is updated in place with version+1 and its original id;
// a new path gets a fresh id and version 1.
func (s *Store) Register(name string, kind Kind, path, description, producer string, metadata map[string]any) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("artifact name cannot be empty")
	}
	if path == "" {
		return Record{}, fmt.Errorf("artifact path cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.records {
		if s.records[i].Path != path {
			continue
		}
		s.records[i].Name = name
		s.records[i].Kind = kind
		s.records[i].Description = description
		s.records[i].Producer = producer
		s.records[i].Metadata = metadata
		s.records[i].UpdatedAt = now
		s.records[i].Version++

		if err := s.saveIndex(); err != nil {
			return Record{}, err
		}
		s.logger.Debug("artifact %s updated to version %d", name, s.records[i].Version)
		return s.records[i], nil
	}

	rec := Record{
		ID:          uuid.NewString(),
		Name:        name,
		Kind:        kind,
		Path:        path,
		Description: description,
		Producer:    producer,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	s.records = append(s.records, rec)

	if err := s.saveIndex(); err != nil {
		return Record{}, err
	}
	s.logger.Debug("artifact %s registered", name)
	return rec, nil
}

// Save writes content to a name-derived path inside the artifact directory,
// registers it, and emits the artifact-created notification.
func (s *Store) Save(name string, kind Kind, content []byte, description, producer string, metadata map[string]any) (Record, error) {
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Record{}, fmt.Errorf("failed to create artifact subdirectory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return Record{}, fmt.Errorf("failed to write artifact %s: %w", name, err)
	}

	rec, err := s.Register(name, kind, path, description, producer, metadata)
	if err != nil {
		return Record{}, err
	}

	eventMeta := map[string]any{"version": rec.Version}
	for k, v := range metadata {
		eventMeta[k] = v
	}
	s.notifier.Notify(events.NewArtifactCreated(string(kind), name, eventMeta))

	return rec, nil
}

// Read returns the raw content of the named artifact. Reads are side-effect
// free: repeated calls with no intervening write return identical bytes.
func (s *Store) Read(name string) ([]byte, error) {
	rec, ok := s.lookup(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	data, err := os.ReadFile(rec.Path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}

// Get returns the index record for a name.
func (s *Store) Get(name string) (Record, error) {
	rec, ok := s.lookup(name)
	if !ok {
		return Record{}, &NotFoundError{Name: name}
	}
	return rec, nil
}

func (s *Store) lookup(name string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Name == name {
			return s.records[i], true
		}
	}
	return Record{}, false
}

// List returns a copy of the index in registration order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ListByKind returns all records of one kind, in registration order.
func (s *Store) ListByKind(kind Kind) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Search returns records whose name or description contains the query,
// case-insensitively.
func (s *Store) Search(query string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	var out []Record
	for _, rec := range s.records {
		if strings.Contains(strings.ToLower(rec.Name), q) ||
			strings.Contains(strings.ToLower(rec.Description), q) {
			out = append(out, rec)
		}
	}
	return out
}

// Delete removes the named artifact's file and index entry.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Name != name {
			continue
		}
		if err := os.Remove(s.records[i].Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete artifact file %s: %w", s.records[i].Path, err)
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
		return s.saveIndex()
	}

	return &NotFoundError{Name: name}
}

// saveIndex writes the index; the caller holds the lock.
func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize artifact index: %w", err)
	}
	if err := os.WriteFile(s.indexPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact index: %w", err)
	}
	return nil
}
