// Package filehandler builds and validates the local PDF candidates that the
// upload session transfers.
//
// A CandidateFile is immutable once constructed. Its declared MIME type comes
// from content sniffing (gabriel-vasile/mimetype) when loaded from disk, so a
// renamed non-PDF is rejected before any network call.
package filehandler

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMIMEType is the only content type accepted for upload.
const PDFMIMEType = "application/pdf"

// CandidateFile is a file offered for upload.
type CandidateFile struct {
	Name     string
	Size     int64
	MIMEType string
	Path     string // empty for in-memory candidates

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the candidate's bytes.
func (f CandidateFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("candidate %q has no content source", f.Name)
	}
	return f.open()
}

// LoadCandidate stats the file at path and sniffs its MIME type from content.
// The bytes are not held in memory; Open re-reads from disk.
func LoadCandidate(path string) (CandidateFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return CandidateFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return CandidateFile{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return CandidateFile{}, fmt.Errorf("detect content type of %s: %w", path, err)
	}

	f := CandidateFile{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mt.String(),
		Path:     path,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}

	log.Debug().
		Str("path", path).
		Int64("size", f.Size).
		Str("mimeType", f.MIMEType).
		Msg("Loaded upload candidate")

	return f, nil
}

// NewCandidate builds an in-memory candidate with an explicit declared type.
func NewCandidate(name, mimeType string, data []byte) CandidateFile {
	return CandidateFile{
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
