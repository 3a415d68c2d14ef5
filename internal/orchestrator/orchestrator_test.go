package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fpang/docflow/internal/analysis"
	"github.com/fpang/docflow/internal/clock"
	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/filehandler"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSession struct {
	mu       sync.Mutex
	token    string
	tokenErr error
	events   []Event
}

func (s *fakeSession) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.tokenErr
}

func (s *fakeSession) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSession) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

// fakeAPI is an in-memory backend. Status answers come from a queue and
// default to PROCESSING. If block is set, status calls wait for a value on
// release after signalling entered.
type fakeAPI struct {
	mu          sync.Mutex
	calls       []string
	registerErr error
	submitErr   error
	statuses    []docapi.DocumentStatus
	deleted     []int64

	block   bool
	entered chan struct{}
	release chan docapi.DocumentStatus
}

func (a *fakeAPI) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *fakeAPI) count(call string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (a *fakeAPI) RequestWriteLocation(ctx context.Context, token string, req docapi.WriteLocationRequest) (*docapi.WriteLocation, error) {
	a.record("location")
	return &docapi.WriteLocation{Path: "u1/" + req.FileName, SignedURL: "https://storage.test/u1"}, nil
}

func (a *fakeAPI) Transfer(ctx context.Context, loc *docapi.WriteLocation, body io.Reader, size int64) error {
	a.record("transfer")
	_, err := io.Copy(io.Discard, body)
	return err
}

func (a *fakeAPI) RegisterDocument(ctx context.Context, token string, req docapi.RegisterRequest) (*docapi.Document, error) {
	a.record("register")
	if a.registerErr != nil {
		return nil, a.registerErr
	}
	return &docapi.Document{ID: 77, FilePath: req.FilePath}, nil
}

func (a *fakeAPI) StartAnalysis(ctx context.Context, token string, id int64) (*docapi.StartAnalysisResponse, error) {
	a.record("submit")
	if a.submitErr != nil {
		return nil, a.submitErr
	}
	return &docapi.StartAnalysisResponse{Status: 202}, nil
}

func (a *fakeAPI) AnalysisStatus(ctx context.Context, token string, id int64) (*docapi.StatusResponse, error) {
	a.record("status")

	a.mu.Lock()
	block := a.block
	st := docapi.StatusProcessing
	if len(a.statuses) > 0 {
		st, a.statuses = a.statuses[0], a.statuses[1:]
	}
	a.mu.Unlock()

	if block {
		a.entered <- struct{}{}
		st = <-a.release
	}
	return &docapi.StatusResponse{Document: docapi.DocumentSnapshot{ID: id, DocumentStatus: st}}, nil
}

func (a *fakeAPI) DeleteDocument(ctx context.Context, token string, id int64) error {
	a.record("delete")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, id)
	return nil
}

type harness struct {
	orch    *Orchestrator
	api     *fakeAPI
	session *fakeSession
	clock   *clock.Fake

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{
		api:     api,
		session: &fakeSession{token: "tok"},
		clock:   clock.NewFake(epoch),
	}
	h.orch = New(api, h.session, Options{Clock: h.clock})
	h.orch.Subscribe(func(s State) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.states = append(h.states, s)
	})
	return h
}

func (h *harness) observed() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func pdf(size int) filehandler.CandidateFile {
	data := make([]byte, size)
	copy(data, "%PDF-1.7\n")
	return filehandler.NewCandidate("report.pdf", filehandler.PDFMIMEType, data)
}

func (h *harness) upload(t *testing.T) {
	t.Helper()
	if err := h.orch.SubmitFile(context.Background(), pdf(1024), "Report"); err != nil {
		t.Fatalf("SubmitFile() error = %v", err)
	}
}

func TestSubmitFile_RejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name    string
		file    filehandler.CandidateFile
		message string
	}{
		{
			name:    "wrong type",
			file:    filehandler.NewCandidate("notes.txt", "text/plain", []byte("hello")),
			message: "Only PDF files are allowed.",
		},
		{
			name:    "too large",
			file:    filehandler.CandidateFile{Name: "big.pdf", Size: filehandler.MaxUploadSize + 1, MIMEType: filehandler.PDFMIMEType},
			message: "File size must be less than 50MB.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			h := newHarness(t, api)

			err := h.orch.SubmitFile(context.Background(), tt.file, "")
			var rejected *filehandler.RejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("SubmitFile() error = %v, want *RejectedError", err)
			}

			st := h.orch.State()
			if st.Upload != UploadError || st.ErrorKind != ErrorValidation {
				t.Errorf("state = %v/%v, want error/validation", st.Upload, st.ErrorKind)
			}
			if st.ErrorMessage != tt.message {
				t.Errorf("ErrorMessage = %q, want %q", st.ErrorMessage, tt.message)
			}
			if len(api.calls) != 0 {
				t.Errorf("network calls = %v, want none", api.calls)
			}
		})
	}
}

func TestSubmitFile_Success(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.upload(t)

	st := h.orch.State()
	if st.Upload != UploadSuccess || st.DocumentID != 77 {
		t.Errorf("state = %v id=%d, want success id=77", st.Upload, st.DocumentID)
	}
	if st.Analysis != analysis.PhaseIdle {
		t.Errorf("Analysis = %v, want idle", st.Analysis)
	}
	if len(st.Checksum) != 64 {
		t.Errorf("Checksum = %q, want hex sha256", st.Checksum)
	}

	states := h.observed()
	if len(states) < 2 || states[0].Upload != UploadUploading || states[len(states)-1].Upload != UploadSuccess {
		t.Errorf("unexpected state sequence: %+v", states)
	}
	if got := h.session.kinds(); len(got) != 1 || got[0] != EventUploadSucceeded {
		t.Errorf("events = %v, want [upload-succeeded]", got)
	}
}

func TestSubmitFile_UnauthorizedRegistration(t *testing.T) {
	api := &fakeAPI{registerErr: &docapi.APIError{Op: "register", StatusCode: http.StatusUnauthorized}}
	h := newHarness(t, api)

	if err := h.orch.SubmitFile(context.Background(), pdf(10), ""); err == nil {
		t.Fatal("SubmitFile() expected error")
	}

	st := h.orch.State()
	if st.Upload != UploadError || st.ErrorKind != ErrorUnauthorized {
		t.Errorf("state = %v/%v, want error/unauthorized", st.Upload, st.ErrorKind)
	}
	if got := h.session.kinds(); len(got) != 1 || got[0] != EventUnauthorized {
		t.Errorf("events = %v, want [unauthorized]", got)
	}
}

func TestSubmitFile_MissingToken(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.session.tokenErr = errors.New("no token configured")

	if err := h.orch.SubmitFile(context.Background(), pdf(10), ""); err == nil {
		t.Fatal("SubmitFile() expected error")
	}
	if st := h.orch.State(); st.ErrorKind != ErrorUnauthorized {
		t.Errorf("ErrorKind = %v, want unauthorized", st.ErrorKind)
	}
	if len(api.calls) != 0 {
		t.Errorf("network calls = %v, want none", api.calls)
	}
}

func TestStartAnalysis_RequiresUpload(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	if err := h.orch.StartAnalysis(context.Background()); !errors.Is(err, ErrNotUploaded) {
		t.Errorf("StartAnalysis() error = %v, want ErrNotUploaded", err)
	}
	if st := h.orch.State(); st.Analysis != analysis.PhaseIdle {
		t.Errorf("Analysis = %v, want idle", st.Analysis)
	}
}

func TestStartAnalysis_SubmissionFailure(t *testing.T) {
	api := &fakeAPI{submitErr: &docapi.APIError{Op: "start", StatusCode: 500, Detail: "Analysis service unavailable."}}
	h := newHarness(t, api)
	h.upload(t)

	if err := h.orch.StartAnalysis(context.Background()); err == nil {
		t.Fatal("StartAnalysis() expected error")
	}

	st := h.orch.State()
	if st.Analysis != analysis.PhaseFailed || st.ErrorKind != ErrorSubmission {
		t.Errorf("state = %v/%v, want failed/submission", st.Analysis, st.ErrorKind)
	}
	if st.Progress != 0 {
		t.Errorf("Progress = %d, want 0", st.Progress)
	}
	if st.ErrorMessage != "Analysis service unavailable." {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if n := h.clock.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
}

func TestStartAnalysis_ProgressMonotonicThenPinned(t *testing.T) {
	api := &fakeAPI{statuses: []docapi.DocumentStatus{
		docapi.StatusProcessing, docapi.StatusProcessing, docapi.StatusProcessing, docapi.StatusReady,
	}}
	h := newHarness(t, api)
	h.upload(t)

	if err := h.orch.StartAnalysis(context.Background()); err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	h.clock.Advance(time.Minute)

	prev := -1
	for _, s := range h.observed() {
		if s.Analysis == analysis.PhaseIdle {
			continue
		}
		if s.Progress < prev {
			t.Fatalf("progress decreased from %d to %d", prev, s.Progress)
		}
		if !s.AnalysisDone() && s.Progress > 90 {
			t.Fatalf("progress %d above 90 before completion", s.Progress)
		}
		prev = s.Progress
	}

	st := h.orch.State()
	if st.Analysis != analysis.PhaseReady || st.Progress != 100 {
		t.Errorf("final = %v/%d, want ready/100", st.Analysis, st.Progress)
	}
	if st.PollAttempts != 4 {
		t.Errorf("PollAttempts = %d, want 4", st.PollAttempts)
	}
	if n := h.clock.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
}

func TestStartAnalysis_ServerFailureThenRetry(t *testing.T) {
	api := &fakeAPI{statuses: []docapi.DocumentStatus{docapi.StatusFailed, docapi.StatusReady}}
	h := newHarness(t, api)
	h.upload(t)

	h.orch.StartAnalysis(context.Background())
	h.clock.Advance(10 * time.Second)

	st := h.orch.State()
	if st.Analysis != analysis.PhaseFailed || st.Progress != 100 {
		t.Fatalf("after FAILED: %v/%d, want failed/100", st.Analysis, st.Progress)
	}
	if st.ErrorMessage != analysis.MsgServerFailed {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}

	if err := h.orch.StartAnalysis(context.Background()); err != nil {
		t.Fatalf("retry StartAnalysis() error = %v", err)
	}
	st = h.orch.State()
	if st.Analysis != analysis.PhasePolling || st.ErrorMessage != "" || st.Progress != 5 {
		t.Errorf("after retry: %v msg=%q progress=%d", st.Analysis, st.ErrorMessage, st.Progress)
	}

	h.clock.Advance(10 * time.Second)
	if st := h.orch.State(); st.Analysis != analysis.PhaseReady {
		t.Errorf("Analysis = %v, want ready", st.Analysis)
	}
	if n := api.count("location"); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
	if n := api.count("submit"); n != 2 {
		t.Errorf("submissions = %d, want 2", n)
	}

	want := []EventKind{EventUploadSucceeded, EventAnalysisFailed, EventAnalysisReady}
	got := h.session.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCancel_MidPollDropsLateResult(t *testing.T) {
	api := &fakeAPI{
		block:   true,
		entered: make(chan struct{}),
		release: make(chan docapi.DocumentStatus),
	}
	h := newHarness(t, api)
	h.upload(t)
	h.orch.StartAnalysis(context.Background())

	advanced := make(chan struct{})
	go func() {
		h.clock.Advance(10 * time.Second)
		close(advanced)
	}()

	<-api.entered
	h.orch.Cancel()
	before := h.orch.State()
	seen := len(h.observed())

	if n := h.clock.Pending(); n != 0 {
		t.Errorf("pending timers after Cancel = %d, want 0", n)
	}

	api.release <- docapi.StatusReady
	<-advanced
	h.clock.Advance(time.Minute)

	after := h.orch.State()
	if after.Analysis != before.Analysis || after.Progress != before.Progress {
		t.Errorf("state changed after Cancel: %v/%d -> %v/%d",
			before.Analysis, before.Progress, after.Analysis, after.Progress)
	}
	if len(h.observed()) != seen {
		t.Errorf("observers notified after Cancel")
	}
	if n := api.count("status"); n != 1 {
		t.Errorf("status fetches = %d, want 1", n)
	}

	if _, err := h.orch.Wait(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Errorf("Wait() error = %v, want ErrCanceled", err)
	}
}

func TestStartAnalysis_ContextCancelTearsDownRun(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.upload(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.orch.StartAnalysis(ctx); err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if _, err := h.orch.Wait(waitCtx); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Wait() error = %v, want ErrCanceled", err)
	}
	if n := h.clock.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}

	before := h.orch.State()
	h.clock.Advance(time.Minute)
	after := h.orch.State()

	if after.Analysis != before.Analysis || after.Progress != before.Progress {
		t.Errorf("state changed after context ended: %v/%d -> %v/%d",
			before.Analysis, before.Progress, after.Analysis, after.Progress)
	}
	if n := api.count("status"); n != 0 {
		t.Errorf("status fetches = %d, want 0", n)
	}
}

func TestWait(t *testing.T) {
	api := &fakeAPI{statuses: []docapi.DocumentStatus{docapi.StatusReady}}
	h := newHarness(t, api)

	if _, err := h.orch.Wait(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Wait() before start error = %v, want ErrNotStarted", err)
	}

	h.upload(t)
	h.orch.StartAnalysis(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.orch.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}

	h.clock.Advance(10 * time.Second)
	st, err := h.orch.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st.Analysis != analysis.PhaseReady {
		t.Errorf("Analysis = %v, want ready", st.Analysis)
	}
}

func TestResume(t *testing.T) {
	t.Run("already ready", func(t *testing.T) {
		api := &fakeAPI{statuses: []docapi.DocumentStatus{docapi.StatusReady}}
		h := newHarness(t, api)

		if err := h.orch.Resume(context.Background(), 12); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		st := h.orch.State()
		if st.Upload != UploadSuccess || st.Analysis != analysis.PhaseReady || st.Progress != 100 {
			t.Errorf("state = %v/%v/%d, want success/ready/100", st.Upload, st.Analysis, st.Progress)
		}
		if api.count("submit") != 0 {
			t.Error("resume of a ready document should not submit a job")
		}
	})

	t.Run("analysis running", func(t *testing.T) {
		api := &fakeAPI{statuses: []docapi.DocumentStatus{docapi.StatusProcessing, docapi.StatusReady}}
		h := newHarness(t, api)

		if err := h.orch.Resume(context.Background(), 12); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		st := h.orch.State()
		if st.Analysis != analysis.PhasePolling || st.Progress != 5 {
			t.Fatalf("state = %v/%d, want polling/5", st.Analysis, st.Progress)
		}

		h.clock.Advance(5 * time.Second)
		st = h.orch.State()
		if st.Analysis != analysis.PhaseReady || st.Progress != 100 {
			t.Errorf("state = %v/%d, want ready/100", st.Analysis, st.Progress)
		}
		if n := api.count("submit"); n != 0 {
			t.Errorf("submissions = %d, want 0 for a job already running", n)
		}
		if n := api.count("status"); n != 2 {
			t.Errorf("status fetches = %d, want 2", n)
		}
		if n := h.clock.Pending(); n != 0 {
			t.Errorf("pending timers = %d, want 0", n)
		}
	})

	t.Run("not analyzed yet", func(t *testing.T) {
		api := &fakeAPI{statuses: []docapi.DocumentStatus{docapi.StatusUploaded, docapi.StatusReady}}
		h := newHarness(t, api)

		if err := h.orch.Resume(context.Background(), 12); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if st := h.orch.State(); st.Analysis != analysis.PhaseIdle || st.DocumentID != 12 {
			t.Errorf("state = %v id=%d, want idle id=12", st.Analysis, st.DocumentID)
		}

		h.orch.StartAnalysis(context.Background())
		h.clock.Advance(10 * time.Second)
		if st := h.orch.State(); st.Analysis != analysis.PhaseReady {
			t.Errorf("Analysis = %v, want ready", st.Analysis)
		}
		if api.count("location") != 0 {
			t.Error("resume should not upload")
		}
	})
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)

	if err := h.orch.Delete(context.Background()); !errors.Is(err, ErrNotUploaded) {
		t.Errorf("Delete() before upload error = %v, want ErrNotUploaded", err)
	}

	h.upload(t)
	before := h.orch.State()
	if err := h.orch.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != 77 {
		t.Errorf("deleted = %v, want [77]", api.deleted)
	}
	if after := h.orch.State(); after.Upload != before.Upload || after.DocumentID != before.DocumentID {
		t.Errorf("Delete changed state")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t, &fakeAPI{})

	var n int
	unsubscribe := h.orch.Subscribe(func(State) { n++ })
	h.upload(t)
	got := n
	unsubscribe()
	h.upload(t)

	if got == 0 {
		t.Fatal("subscriber not notified")
	}
	if n != got {
		t.Errorf("notified %d times after unsubscribe", n-got)
	}
}

func TestSubscribe_ObserverMayCallBack(t *testing.T) {
	h := newHarness(t, &fakeAPI{})

	var phases []UploadPhase
	h.orch.Subscribe(func(s State) {
		phases = append(phases, h.orch.State().Upload)
	})
	h.upload(t)

	if len(phases) == 0 {
		t.Fatal("observer not called")
	}
}
