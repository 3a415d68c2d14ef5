// Package orchestrator sequences a PDF upload and the analysis of the
// uploaded document behind one observable State.
//
// The orchestrator owns every timer involved: the progress ticker and the
// poll chain. Cancel stops both before returning, and every deferred
// completion (timer callback or network response) checks a generation
// counter under the state lock before mutating, so nothing from a cancelled
// run can change State afterwards.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/analysis"
	"github.com/fpang/docflow/internal/clock"
	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/filehandler"
	"github.com/fpang/docflow/internal/progress"
	"github.com/fpang/docflow/internal/upload"
)

var (
	// ErrNotUploaded is returned by StartAnalysis before a successful upload.
	ErrNotUploaded = errors.New("no uploaded document to analyze")
	// ErrBusy is returned by SubmitFile while another upload is running.
	ErrBusy = errors.New("an upload is already in progress")
	// ErrCanceled is returned when Cancel interrupts an operation.
	ErrCanceled = errors.New("orchestrator canceled")
	// ErrNotStarted is returned by Wait when no analysis has been started.
	ErrNotStarted = errors.New("analysis not started")
)

// API is every backend call the orchestrator makes.
type API interface {
	upload.API
	analysis.API
	DeleteDocument(ctx context.Context, token string, documentID int64) error
}

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	Clock clock.Clock
	Poll  analysis.Config
}

// run is one analysis attempt: a progress ticker and a poll chain.
type run struct {
	sim    *progress.Simulator
	poller *analysis.Poller
	done   chan struct{}
	// release detaches the run from the caller's context.
	release func() bool
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	api      API
	session  Session
	clock    clock.Clock
	pollCfg  analysis.Config
	uploader *upload.Session

	mu           sync.Mutex
	state        State
	gen          uint64 // analysis generation
	uploadGen    uint64
	uploadCancel context.CancelFunc
	run          *run
	canceled     bool

	subs      []subscriber
	nextSubID int
	queue     []notification
	flushing  bool
}

// New creates an idle orchestrator.
func New(api API, session Session, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Poll == (analysis.Config{}) {
		opts.Poll = analysis.DefaultConfig()
	}
	return &Orchestrator{
		api:      api,
		session:  session,
		clock:    opts.Clock,
		pollCfg:  opts.Poll,
		uploader: upload.NewSession(api),
	}
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SubmitFile validates f and uploads it. Submitting starts over: any
// running analysis is stopped and the previous document is forgotten.
// Failures are recorded in State and also returned.
func (o *Orchestrator) SubmitFile(ctx context.Context, f filehandler.CandidateFile, title string) error {
	logger := log.With().Str("file", f.Name).Logger()

	o.mu.Lock()
	if o.uploadCancel != nil {
		o.mu.Unlock()
		return ErrBusy
	}
	o.stopRunLocked()
	o.uploadGen++
	ugen := o.uploadGen
	o.canceled = false

	if err := filehandler.Validate(f); err != nil {
		var rejected *filehandler.RejectedError
		msg := err.Error()
		if errors.As(err, &rejected) {
			msg = rejected.Message()
		}
		logger.Warn().Err(err).Str("mimeType", f.MIMEType).Int64("size", f.Size).Msg("File rejected")
		o.state = State{Upload: UploadError, ErrorKind: ErrorValidation, ErrorMessage: msg, FileName: f.Name}
		o.publishLocked(&Event{Kind: EventUploadFailed, Message: msg})
		o.mu.Unlock()
		o.flush()
		return err
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.uploadCancel = cancel
	o.state = State{Upload: UploadUploading, FileName: f.Name}
	o.publishLocked(nil)
	o.mu.Unlock()
	o.flush()

	token, err := o.session.AccessToken()
	if err != nil {
		logger.Warn().Err(err).Msg("No access token")
		if !o.finishUpload(ugen, nil, &upload.Error{Kind: upload.KindUnauthorized, Message: analysis.MsgUnauthorized, Err: err}) {
			return ErrCanceled
		}
		return err
	}

	out, err := o.uploader.Run(uploadCtx, f, title, token)
	if !o.finishUpload(ugen, out, err) {
		return ErrCanceled
	}
	return err
}

// finishUpload records an upload result. It returns false if the attempt
// was superseded or cancelled.
func (o *Orchestrator) finishUpload(ugen uint64, out *upload.Outcome, err error) bool {
	o.mu.Lock()
	if ugen != o.uploadGen {
		o.mu.Unlock()
		return false
	}
	o.uploadCancel = nil

	if err != nil {
		kind, msg := ErrorTransfer, err.Error()
		var upErr *upload.Error
		if errors.As(err, &upErr) {
			kind, msg = uploadErrorKind(upErr.Kind), upErr.Message
		}
		o.state.Upload = UploadError
		o.state.ErrorKind = kind
		o.state.ErrorMessage = msg
		ev := &Event{Kind: EventUploadFailed, Message: msg}
		if kind == ErrorUnauthorized {
			ev.Kind = EventUnauthorized
		}
		o.publishLocked(ev)
		o.mu.Unlock()
		o.flush()
		return true
	}

	o.state.Upload = UploadSuccess
	o.state.DocumentID = out.DocumentID
	o.state.RemotePath = out.RemotePath
	o.state.Checksum = out.Checksum
	o.publishLocked(&Event{Kind: EventUploadSucceeded, DocumentID: out.DocumentID})
	o.mu.Unlock()
	o.flush()
	return true
}

func uploadErrorKind(k upload.Kind) ErrorKind {
	switch k {
	case upload.KindUnauthorized:
		return ErrorUnauthorized
	case upload.KindStorageInit:
		return ErrorStorageInit
	case upload.KindRegistration:
		return ErrorRegistration
	default:
		return ErrorTransfer
	}
}

// Resume adopts an already-uploaded document so analysis can start without
// re-uploading. It fetches the document's current status once: if the
// analysis is already complete the state goes straight to Ready.
func (o *Orchestrator) Resume(ctx context.Context, documentID int64) error {
	o.mu.Lock()
	if o.uploadCancel != nil {
		o.mu.Unlock()
		return ErrBusy
	}
	o.stopRunLocked()
	o.uploadGen++
	o.canceled = false
	gen := o.gen
	o.state = State{Upload: UploadSuccess, DocumentID: documentID}
	o.publishLocked(nil)
	o.mu.Unlock()
	o.flush()

	token, err := o.session.AccessToken()
	if err != nil {
		return err
	}
	resp, err := o.api.AnalysisStatus(ctx, token, documentID)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return ErrCanceled
	}
	switch {
	case err != nil && docapi.IsUnauthorized(err):
		o.state.ErrorKind = ErrorUnauthorized
		o.state.ErrorMessage = analysis.MsgUnauthorized
		o.publishLocked(&Event{Kind: EventUnauthorized, DocumentID: documentID, Message: analysis.MsgUnauthorized})
	case err != nil:
		log.Warn().Err(err).Int64("documentId", documentID).Msg("Could not fetch status of resumed document")
		o.mu.Unlock()
		return nil
	case resp.Document.DocumentStatus.IsReady():
		o.state.Snapshot = resp
		o.state.Analysis = analysis.PhaseReady
		o.state.Progress = 100
		o.publishLocked(&Event{Kind: EventAnalysisReady, DocumentID: documentID})
	case resp.Document.DocumentStatus == docapi.StatusPending || resp.Document.DocumentStatus == docapi.StatusProcessing:
		// A job is already running: follow it instead of submitting another.
		o.state.Snapshot = resp
		r := o.newRunLocked(ctx, gen)
		o.state.Analysis = analysis.PhasePolling
		o.state.Progress = progress.StartValue
		r.sim.Start()
		o.publishLocked(nil)
		o.mu.Unlock()
		o.flush()

		log.Info().Int64("documentId", documentID).Str("status", string(resp.Document.DocumentStatus)).Msg("Following running analysis")
		r.poller.Follow(ctx, documentID, token)
		o.dropIfStale(gen, r)
		return nil
	default:
		o.state.Snapshot = resp
		o.publishLocked(nil)
	}
	o.mu.Unlock()
	o.flush()
	return err
}

// newRunLocked creates the run for generation gen and makes it current.
// Cancelling ctx tears the run down as Cancel would.
func (o *Orchestrator) newRunLocked(ctx context.Context, gen uint64) *run {
	r := &run{done: make(chan struct{})}
	r.sim = progress.New(o.clock, func(v int) { o.onProgress(gen, v) })
	r.poller = analysis.NewPoller(o.api, o.clock, o.pollCfg, func(u analysis.Update) { o.onAnalysis(gen, u) })
	r.release = context.AfterFunc(ctx, func() { o.abandonRun(gen) })
	o.run = r
	return r
}

// dropIfStale stops r's poller if the run was replaced or cancelled while
// its chain was being started outside the lock.
func (o *Orchestrator) dropIfStale(gen uint64, r *run) {
	o.mu.Lock()
	stale := gen != o.gen
	o.mu.Unlock()
	if stale {
		r.poller.Cancel()
	}
}

// abandonRun stops the run of generation gen after its context ended.
func (o *Orchestrator) abandonRun(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.run == nil || o.state.Analysis.Terminal() {
		return
	}
	log.Debug().Int64("documentId", o.state.DocumentID).Msg("Analysis context ended")
	o.stopRunLocked()
	o.canceled = true
}

// StartAnalysis submits the analysis job for the uploaded document and
// starts polling. It may be called again after a failure, or while a run is
// active to restart it; the upload is never repeated. It returns once the
// submission has resolved.
func (o *Orchestrator) StartAnalysis(ctx context.Context) error {
	token, tokenErr := o.session.AccessToken()

	o.mu.Lock()
	if o.state.Upload != UploadSuccess || o.state.DocumentID == 0 {
		o.mu.Unlock()
		return ErrNotUploaded
	}
	o.stopRunLocked()
	o.canceled = false
	gen := o.gen
	documentID := o.state.DocumentID

	o.state.ErrorKind = ErrorNone
	o.state.ErrorMessage = ""
	o.state.Snapshot = nil
	o.state.PollAttempts = 0
	o.state.TransientErrors = 0

	if tokenErr != nil {
		log.Warn().Err(tokenErr).Msg("No access token")
		o.state.Analysis = analysis.PhaseFailed
		o.state.Progress = 0
		o.state.ErrorKind = ErrorUnauthorized
		o.state.ErrorMessage = analysis.MsgUnauthorized
		o.publishLocked(&Event{Kind: EventUnauthorized, DocumentID: documentID, Message: analysis.MsgUnauthorized})
		o.mu.Unlock()
		o.flush()
		return tokenErr
	}

	r := o.newRunLocked(ctx, gen)
	o.state.Analysis = analysis.PhasePosting
	o.state.Progress = progress.StartValue
	r.sim.Start()
	o.publishLocked(nil)
	o.mu.Unlock()
	o.flush()

	log.Info().Int64("documentId", documentID).Msg("Starting analysis")

	err := r.poller.Start(ctx, documentID, token)
	o.dropIfStale(gen, r)
	if errors.Is(err, analysis.ErrCanceled) {
		return ErrCanceled
	}
	return err
}

// onProgress applies a tick from the current run's simulator.
func (o *Orchestrator) onProgress(gen uint64, v int) {
	o.mu.Lock()
	if gen != o.gen || o.state.Analysis.Terminal() || v <= o.state.Progress {
		o.mu.Unlock()
		return
	}
	o.state.Progress = v
	o.publishLocked(nil)
	o.mu.Unlock()
	o.flush()
}

// onAnalysis applies an update from the current run's poller.
func (o *Orchestrator) onAnalysis(gen uint64, u analysis.Update) {
	o.mu.Lock()
	if gen != o.gen || o.run == nil {
		o.mu.Unlock()
		return
	}
	r := o.run

	if u.Snapshot != nil {
		o.state.Snapshot = u.Snapshot
	}
	o.state.PollAttempts = u.Attempts
	o.state.TransientErrors = u.TransientErrors

	var ev *Event
	switch u.Phase {
	case analysis.PhasePosting, analysis.PhasePolling:
		o.state.Analysis = u.Phase

	case analysis.PhaseReady:
		r.sim.Stop(100)
		o.state.Analysis = analysis.PhaseReady
		o.state.Progress = 100
		ev = &Event{Kind: EventAnalysisReady, DocumentID: u.DocumentID}
		r.finish()

	case analysis.PhaseFailed:
		// A job that never got submitted shows no progress.
		final := 100
		if u.Attempts == 0 {
			final = 0
		}
		r.sim.Stop(final)
		o.state.Analysis = analysis.PhaseFailed
		o.state.Progress = final
		o.state.ErrorKind = failureKind(u.Failure)
		o.state.ErrorMessage = u.Message
		ev = &Event{Kind: EventAnalysisFailed, DocumentID: u.DocumentID, Message: u.Message}
		if u.Failure == analysis.FailureUnauthorized {
			ev.Kind = EventUnauthorized
		}
		r.finish()
	}

	o.publishLocked(ev)
	o.mu.Unlock()
	o.flush()
}

func failureKind(f analysis.Failure) ErrorKind {
	switch f {
	case analysis.FailureUnauthorized:
		return ErrorUnauthorized
	case analysis.FailureServer:
		return ErrorServer
	case analysis.FailureTimeout:
		return ErrorTimeout
	default:
		return ErrorSubmission
	}
}

// Wait blocks until the current analysis reaches Ready or Failed, Cancel is
// called, or ctx ends. A restarted run is followed to its end. It returns
// the state at that point.
func (o *Orchestrator) Wait(ctx context.Context) (State, error) {
	for {
		o.mu.Lock()
		r, st, canceled := o.run, o.state, o.canceled
		o.mu.Unlock()

		switch {
		case st.AnalysisDone():
			return st, nil
		case canceled:
			return st, ErrCanceled
		case r == nil:
			return st, ErrNotStarted
		}

		select {
		case <-r.done:
		case <-ctx.Done():
			return o.State(), ctx.Err()
		}
	}
}

// Cancel stops the progress ticker and the poll chain, and aborts an
// in-flight upload. Pending timers are stopped before Cancel returns; any
// request still in flight resolves into nothing. State is left as it was.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopRunLocked()
	o.uploadGen++
	if o.uploadCancel != nil {
		o.uploadCancel()
		o.uploadCancel = nil
	}
	o.canceled = true
	log.Debug().Int64("documentId", o.state.DocumentID).Msg("Orchestrator canceled")
}

// stopRunLocked tears down the current analysis run and invalidates its
// callbacks.
func (o *Orchestrator) stopRunLocked() {
	o.gen++
	r := o.run
	if r == nil {
		return
	}
	o.run = nil
	r.poller.Cancel()
	r.sim.Stop(o.state.Progress)
	r.finish()
}

func (r *run) finish() {
	if r.release != nil {
		r.release()
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Delete soft-deletes the current document on the backend. It does not
// touch State; callers typically Cancel first.
func (o *Orchestrator) Delete(ctx context.Context) error {
	o.mu.Lock()
	documentID := o.state.DocumentID
	o.mu.Unlock()
	if documentID == 0 {
		return ErrNotUploaded
	}

	token, err := o.session.AccessToken()
	if err != nil {
		return err
	}
	if err := o.api.DeleteDocument(ctx, token, documentID); err != nil {
		log.Warn().Err(err).Int64("documentId", documentID).Msg("Delete failed")
		return err
	}
	log.Info().Int64("documentId", documentID).Msg("Document deleted")
	return nil
}
