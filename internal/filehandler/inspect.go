package filehandler

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// PDFInfo is informational metadata shown before upload. It never gates
// the upload; the backend does its own parsing.
type PDFInfo struct {
	PageCount int
}

// Inspect reads the page count of the PDF at path.
func Inspect(path string) (*PDFInfo, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page count of %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("pageCount", pageCount).Msg("Inspected PDF")
	return &PDFInfo{PageCount: pageCount}, nil
}
