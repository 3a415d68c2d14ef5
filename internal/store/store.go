// Package store keeps a local history of uploaded documents so an analysis
// can be resumed or inspected after the process that uploaded the file has
// exited. Records are keyed by the backend's document ID.
//
// The history lives in a single YAML file (default ~/.docflow/history.yaml).
// Writes replace the file atomically; records older than the retention
// window are pruned on every write.
package store

import (
	"context"
	"time"
)

// DefaultRetention is how long records are kept after their last update.
const DefaultRetention = 90 * 24 * time.Hour

// HistoryStore persists upload records.
//
// Get returns (nil, nil) when the record does not exist. Put performs
// full-record replacement (upsert semantics).
type HistoryStore interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, documentID int64) (*Record, error)
	// UpdateStatus changes only the status fields of an existing record.
	UpdateStatus(ctx context.Context, documentID int64, status, message string) error
	// List returns records, most recently updated first.
	List(ctx context.Context) ([]Record, error)
	Remove(ctx context.Context, documentID int64) error
}

// Record is one uploaded document.
type Record struct {
	DocumentID int64     `yaml:"documentId"`
	Title      string    `yaml:"title,omitempty"`
	FileName   string    `yaml:"fileName"`
	LocalPath  string    `yaml:"localPath,omitempty"`
	RemotePath string    `yaml:"remotePath"`
	Size       int64     `yaml:"size"`
	PageCount  int       `yaml:"pageCount,omitempty"`
	Checksum   string    `yaml:"checksum"`
	UploadedAt time.Time `yaml:"uploadedAt"`
	UpdatedAt  time.Time `yaml:"updatedAt"`
	// Status is the last known document_status, or an analysis phase for
	// outcomes the backend never reported (e.g. a timeout).
	Status  string `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`
	Deleted bool   `yaml:"deleted,omitempty"`
}
