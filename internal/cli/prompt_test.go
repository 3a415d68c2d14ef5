package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestPromptForFile(t *testing.T) {
	got, err := PromptForFile(strings.NewReader("  /tmp/report.pdf \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/tmp/report.pdf" {
		t.Errorf("got %q", got)
	}

	if _, err := PromptForFile(strings.NewReader("\n")); !errors.Is(err, ErrNoFileSelected) {
		t.Errorf("empty input error = %v, want ErrNoFileSelected", err)
	}
}
