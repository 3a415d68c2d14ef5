package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/docflow/internal/analysis"
	"github.com/fpang/docflow/internal/cli"
	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/filehandler"
	"github.com/fpang/docflow/internal/metrics"
	"github.com/fpang/docflow/internal/orchestrator"
	"github.com/fpang/docflow/internal/store"
)

// Command flags
var (
	titleFlag         string
	discardFailedFlag bool
	quietFlag         bool
)

var runCmd = &cobra.Command{
	Use:   "run [file.pdf]",
	Short: "Upload a PDF and follow its analysis to completion",
	Long: `Upload a PDF, start the full analysis and wait for the result.
Without a path a file picker is shown. Ctrl-C stops waiting; the server
keeps working and "docflow analyze <id>" picks the document up again.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file.pdf]",
	Short: "Upload a PDF without starting analysis",
	Args:  cobra.MaximumNArgs(1),
	Run:   runUpload,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <document-id>",
	Short: "Analyze an uploaded document, or follow its running analysis, and wait for it",
	Args:  cobra.ExactArgs(1),
	Run:   runAnalyze,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, uploadCmd} {
		c.Flags().StringVarP(&titleFlag, "title", "t", "", "Document title (default: derived from file name)")
	}
	for _, c := range []*cobra.Command{runCmd, analyzeCmd} {
		c.Flags().BoolVar(&discardFailedFlag, "discard-failed", false, "Delete the document if analysis fails")
		c.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Do not print the analysis text")
	}
}

// app wires the client, history and orchestrator for one command.
type app struct {
	client  *docapi.Client
	history *store.FileStore
	orch    *orchestrator.Orchestrator
}

func newApp(ctx context.Context) *app {
	client := cli.InitClient(ctx, cfg.APIURL, resolver)
	a := &app{
		client:  client,
		history: store.NewFileStore(cfg.HistoryFile),
		orch:    orchestrator.New(client, &cliSession{resolver: resolver}, orchestrator.Options{Poll: cfg.Poll()}),
	}
	a.orch.Subscribe(newRenderer(os.Stdout).render)

	// Ctrl-C tears down timers; the deferred callbacks then see a stale
	// generation and leave state alone.
	context.AfterFunc(ctx, a.orch.Cancel)
	return a
}

func runRun(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := newApp(ctx)

	cand, rec := loadCandidate(args)
	if !a.upload(ctx, cand, rec) {
		os.Exit(1)
	}
	if !a.analyze(ctx, rec.DocumentID) {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := newApp(ctx)

	cand, rec := loadCandidate(args)
	if !a.upload(ctx, cand, rec) {
		os.Exit(1)
	}
	fmt.Printf("Run \"docflow analyze %d\" to analyze it.\n", rec.DocumentID)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	documentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || documentID <= 0 {
		log.Fatal().Str("arg", args[0]).Msg("Document ID must be a positive integer")
	}

	ctx := cmd.Context()
	a := newApp(ctx)

	if err := a.orch.Resume(ctx, documentID); err != nil {
		log.Fatal().Err(err).Int64("documentId", documentID).Msg("Failed to resume document")
	}
	if !a.analyze(ctx, documentID) {
		os.Exit(1)
	}
}

// loadCandidate resolves the file argument (or asks for one), sniffs it and
// prints a short header. The returned record is filled in by upload.
func loadCandidate(args []string) (filehandler.CandidateFile, *store.Record) {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		picked, err := cli.PickPDF()
		if err != nil {
			log.Fatal().Err(err).Msg("No file to upload")
		}
		path = picked
	}
	path = cli.ResolveFile(path)

	cand, err := filehandler.LoadCandidate(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read file")
	}

	title := titleFlag
	if title == "" {
		title = filehandler.TitleFromName(cand.Name)
	}
	rec := &store.Record{
		Title:     title,
		FileName:  cand.Name,
		LocalPath: path,
		Size:      cand.Size,
	}

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("docflow")
	fmt.Println("============================================")
	fmt.Printf("File:  %s\n", cand.Name)
	fmt.Printf("Title: %s\n", title)
	fmt.Printf("Size:  %s\n", filehandler.FormatBytes(cand.Size))
	fmt.Printf("Type:  %s\n", cand.MIMEType)
	if cand.MIMEType == filehandler.PDFMIMEType {
		if info, err := filehandler.Inspect(path); err == nil {
			rec.PageCount = info.PageCount
			fmt.Printf("Pages: %d\n", info.PageCount)
		} else {
			log.Warn().Err(err).Msg("Could not read page count")
		}
	}
	fmt.Println("--------------------------------------------")

	return cand, rec
}

// upload submits the file and records it in the history. It reports
// whether the upload succeeded.
func (a *app) upload(ctx context.Context, cand filehandler.CandidateFile, rec *store.Record) bool {
	start := time.Now()
	err := a.orch.SubmitFile(ctx, cand, rec.Title)
	elapsed := time.Since(start)
	st := a.orch.State()

	m := metrics.New(metrics.Namespace).
		Dimension("Command", "upload").
		Metric("UploadMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("FileBytes", float64(cand.Size), metrics.UnitBytes)

	if err != nil {
		m.Dimension("Outcome", st.ErrorKind.String()).Count("UploadFailed").Flush()
		if errors.Is(err, orchestrator.ErrCanceled) {
			log.Warn().Msg("Upload canceled")
		}
		return false
	}
	m.Dimension("Outcome", "success").Property("documentId", st.DocumentID).Count("UploadSucceeded").Flush()

	rec.DocumentID = st.DocumentID
	rec.RemotePath = st.RemotePath
	rec.Checksum = st.Checksum
	rec.Status = string(docapi.StatusUploaded)
	if err := a.history.Put(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to save upload history")
	}
	return true
}

// analyze submits the job if nothing is running yet, waits for the result
// and prints it. It reports whether analysis ended Ready.
func (a *app) analyze(ctx context.Context, documentID int64) bool {
	start := time.Now()

	// Resume may already be following a running job; only submit when idle.
	if a.orch.State().Analysis == analysis.PhaseIdle {
		if err := a.orch.StartAnalysis(ctx); err != nil && !errors.Is(err, orchestrator.ErrCanceled) {
			log.Debug().Err(err).Msg("Analysis submission failed")
		}
	}

	st, err := a.orch.Wait(ctx)
	elapsed := time.Since(start)

	outcome := st.Analysis.String()
	if st.Analysis == analysis.PhaseFailed {
		outcome = st.ErrorKind.String()
	}
	metrics.New(metrics.Namespace).
		Dimension("Command", "analyze").
		Dimension("Outcome", outcome).
		Metric("AnalysisMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("PollAttempts", float64(st.PollAttempts), metrics.UnitCount).
		Metric("TransientErrors", float64(st.TransientErrors), metrics.UnitCount).
		Property("documentId", documentID).
		Flush()

	if err != nil {
		// Interrupted: the job keeps running server-side.
		fmt.Printf("\nStopped waiting. Resume with \"docflow analyze %d\".\n", documentID)
		return false
	}

	status := st.Analysis.String()
	if st.Snapshot != nil {
		status = string(st.Snapshot.Document.DocumentStatus)
	}
	if err := a.history.UpdateStatus(ctx, documentID, status, st.ErrorMessage); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Msg("Failed to update history")
	}

	if st.Analysis == analysis.PhaseFailed {
		if discardFailedFlag && st.ErrorKind != orchestrator.ErrorUnauthorized {
			if err := a.orch.Delete(ctx); err == nil {
				fmt.Printf("Deleted document %d.\n", documentID)
				markDeleted(ctx, a.history, documentID)
			}
		}
		return false
	}

	if !quietFlag && st.Snapshot != nil && st.Snapshot.Analysis != nil {
		printAnalysis(os.Stdout, st.Snapshot.Analysis)
	}
	return true
}

func markDeleted(ctx context.Context, history store.HistoryStore, documentID int64) {
	rec, err := history.Get(ctx, documentID)
	if err != nil || rec == nil {
		return
	}
	rec.Deleted = true
	rec.UpdatedAt = time.Time{}
	if err := history.Put(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to update history")
	}
}

func printAnalysis(w io.Writer, out *docapi.AnalysisOutput) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, out.AnalysisText)
	if suggestions := out.Suggestions(); len(suggestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Suggestions:")
		for _, s := range suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
