package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrNoFileSelected is returned when the user cancels file selection.
var ErrNoFileSelected = errors.New("no file selected")

// PickPDF opens the native file picker filtered to PDFs. If no dialog can
// be shown (headless session, missing helper), it falls back to a terminal
// prompt.
func PickPDF() (string, error) {
	path, err := zenity.SelectFile(
		zenity.Title("Select a PDF to analyze"),
		zenity.FileFilters{{Name: "PDF documents", Patterns: []string{"*.pdf", "*.PDF"}}},
	)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, zenity.ErrCanceled):
		return "", ErrNoFileSelected
	default:
		log.Debug().Err(err).Msg("File dialog unavailable, prompting on terminal")
		return PromptForFile(os.Stdin)
	}
}

// PromptForFile asks for a file path on the terminal.
func PromptForFile(in io.Reader) (string, error) {
	fmt.Print("PDF file: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to read input")
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNoFileSelected
	}
	return input, nil
}
