// Package upload stores a validated PDF through the backend's three-step
// sequence: obtain a signed write target, transfer the bytes, then register
// the document record.
//
// Steps run strictly in order. Nothing is undone on partial failure: if the
// transfer succeeds but registration fails, the stored object is left for
// backend-side cleanup.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/filehandler"
)

// API is the subset of the backend client the session needs.
type API interface {
	RequestWriteLocation(ctx context.Context, token string, req docapi.WriteLocationRequest) (*docapi.WriteLocation, error)
	Transfer(ctx context.Context, loc *docapi.WriteLocation, body io.Reader, size int64) error
	RegisterDocument(ctx context.Context, token string, req docapi.RegisterRequest) (*docapi.Document, error)
}

// Outcome is the result of a successful upload.
type Outcome struct {
	RemotePath string
	DocumentID int64
	// Checksum is the hex SHA-256 of the transferred bytes.
	Checksum string
	Duration time.Duration
}

// Session runs upload attempts against an API.
type Session struct {
	api API
}

// NewSession creates an upload session.
func NewSession(api API) *Session {
	return &Session{api: api}
}

// Run uploads f and registers it under title (may be empty). Failures are
// returned as *Error.
func (s *Session) Run(ctx context.Context, f filehandler.CandidateFile, title, token string) (*Outcome, error) {
	startTime := time.Now()
	logger := log.With().Str("file", f.Name).Int64("size", f.Size).Logger()

	// 1. Write location
	loc, err := s.api.RequestWriteLocation(ctx, token, docapi.WriteLocationRequest{
		FileName:    f.Name,
		ContentType: filehandler.PDFMIMEType,
		FileSize:    f.Size,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to obtain write location")
		return nil, newError(KindStorageInit, err)
	}

	// 2. Transfer, hashing what is sent
	checksum, err := s.transfer(ctx, f, loc)
	if err != nil {
		logger.Error().Err(err).Str("path", loc.Path).Msg("Storage transfer failed")
		return nil, newError(KindTransfer, err)
	}
	logger.Debug().Str("path", loc.Path).Str("checksum", checksum).Msg("File transferred")

	// 3. Register
	doc, err := s.api.RegisterDocument(ctx, token, docapi.RegisterRequest{
		Title:        title,
		OriginalName: f.Name,
		FilePath:     loc.Path,
		FileSize:     f.Size,
		MIMEType:     filehandler.PDFMIMEType,
		Checksum:     checksum,
	})
	if err != nil {
		logger.Error().Err(err).Str("path", loc.Path).Msg("Document registration failed; stored object is orphaned")
		return nil, newError(KindRegistration, err)
	}

	out := &Outcome{
		RemotePath: loc.Path,
		DocumentID: doc.ID,
		Checksum:   checksum,
		Duration:   time.Since(startTime),
	}
	logger.Info().
		Int64("documentId", out.DocumentID).
		Str("path", out.RemotePath).
		Dur("duration", out.Duration).
		Msg("Upload complete")
	return out, nil
}

func (s *Session) transfer(ctx context.Context, f filehandler.CandidateFile, loc *docapi.WriteLocation) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	h := sha256.New()
	if err := s.api.Transfer(ctx, loc, io.TeeReader(rc, h), f.Size); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
