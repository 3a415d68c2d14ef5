package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by UpdateStatus for an unknown document.
var ErrNotFound = errors.New("document not in history")

type historyFile struct {
	Documents []Record `yaml:"documents"`
}

// FileStore is a HistoryStore backed by a YAML file. It is safe for
// concurrent use within one process.
type FileStore struct {
	path      string
	retention time.Duration
	now       func() time.Time

	mu sync.Mutex
}

// NewFileStore creates a store at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, retention: DefaultRetention, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Put creates or replaces the record for rec.DocumentID.
func (s *FileStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	r := *rec
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = r.UpdatedAt
	}
	records[r.DocumentID] = r
	log.Debug().Int64("documentId", r.DocumentID).Str("status", r.Status).Msg("History record saved")
	return s.save(records)
}

// Get returns the record, or nil if it is not in the history.
func (s *FileStore) Get(ctx context.Context, documentID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	r, ok := records[documentID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// UpdateStatus sets Status and Message on an existing record.
func (s *FileStore) UpdateStatus(ctx context.Context, documentID int64, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	r, ok := records[documentID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, documentID)
	}
	r.Status = status
	r.Message = message
	r.UpdatedAt = s.now()
	records[documentID] = r
	return s.save(records)
}

// List returns all records, most recently updated first.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return sorted(records), nil
}

// Remove deletes a record. Removing an unknown record is not an error.
func (s *FileStore) Remove(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[documentID]; !ok {
		return nil
	}
	delete(records, documentID)
	return s.save(records)
}

func (s *FileStore) load() (map[int64]Record, error) {
	records := make(map[int64]Record)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var hf historyFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", s.path, err)
	}
	for _, r := range hf.Documents {
		records[r.DocumentID] = r
	}
	return records, nil
}

// save prunes expired records and atomically replaces the file.
func (s *FileStore) save(records map[int64]Record) error {
	if s.retention > 0 {
		cutoff := s.now().Add(-s.retention)
		for id, r := range records {
			if r.UpdatedAt.Before(cutoff) {
				delete(records, id)
				log.Debug().Int64("documentId", id).Msg("Pruned expired history record")
			}
		}
	}

	data, err := yaml.Marshal(historyFile{Documents: sorted(records)})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func sorted(records map[int64]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].DocumentID > out[j].DocumentID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
