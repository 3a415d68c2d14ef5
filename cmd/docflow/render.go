package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fpang/docflow/internal/analysis"
	"github.com/fpang/docflow/internal/cli"
	"github.com/fpang/docflow/internal/orchestrator"
)

// renderer prints orchestrator state to a terminal. Progress redraws the
// current line; phase changes start a new one.
type renderer struct {
	out   io.Writer
	start time.Time
	now   func() time.Time

	mu           sync.Mutex
	lastUpload   orchestrator.UploadPhase
	lastAnalysis analysis.Phase
	lastProgress int
	inProgress   bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, start: time.Now(), now: time.Now}
}

func (r *renderer) render(s orchestrator.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Upload != r.lastUpload {
		r.lastUpload = s.Upload
		switch s.Upload {
		case orchestrator.UploadUploading:
			r.line("Uploading %s ...", s.FileName)
		case orchestrator.UploadSuccess:
			r.line("Uploaded as document %d", s.DocumentID)
		case orchestrator.UploadError:
			r.line("Upload failed: %s", s.ErrorMessage)
		}
	}

	if s.Analysis != r.lastAnalysis {
		r.lastAnalysis = s.Analysis
		switch s.Analysis {
		case analysis.PhasePosting:
			r.line("Starting analysis ...")
		case analysis.PhaseReady:
			r.bar(100)
			r.line("Analysis ready (%s)", cli.FormatDurationShort(r.now().Sub(r.start)))
		case analysis.PhaseFailed:
			r.line("Analysis failed: %s", s.ErrorMessage)
		}
	}

	if !s.AnalysisDone() && s.Analysis != analysis.PhaseIdle && s.Progress != r.lastProgress {
		r.bar(s.Progress)
	}
	r.lastProgress = s.Progress
}

func (r *renderer) bar(pct int) {
	fmt.Fprintf(r.out, "\r%s %s", cli.ProgressBar(pct, 30), cli.FormatDurationShort(r.now().Sub(r.start)))
	r.inProgress = true
}

func (r *renderer) line(format string, a ...any) {
	if r.inProgress {
		fmt.Fprintln(r.out)
		r.inProgress = false
	}
	fmt.Fprintf(r.out, format+"\n", a...)
}
