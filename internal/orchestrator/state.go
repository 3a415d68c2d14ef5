package orchestrator

import (
	"github.com/fpang/docflow/internal/analysis"
	"github.com/fpang/docflow/internal/docapi"
)

// UploadPhase is the upload sub-state.
type UploadPhase int

const (
	UploadIdle UploadPhase = iota
	UploadUploading
	UploadSuccess
	UploadError
)

func (p UploadPhase) String() string {
	switch p {
	case UploadIdle:
		return "idle"
	case UploadUploading:
		return "uploading"
	case UploadSuccess:
		return "success"
	case UploadError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies the last error recorded in State.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorValidation
	ErrorUnauthorized
	ErrorStorageInit
	ErrorTransfer
	ErrorRegistration
	ErrorSubmission
	ErrorServer
	ErrorTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorValidation:
		return "validation"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorStorageInit:
		return "storage-init"
	case ErrorTransfer:
		return "transfer"
	case ErrorRegistration:
		return "registration"
	case ErrorSubmission:
		return "submission"
	case ErrorServer:
		return "server-failure"
	case ErrorTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// State is the observable state of an Orchestrator. Values handed to
// observers are copies; Snapshot must be treated as read-only.
type State struct {
	Upload   UploadPhase
	Analysis analysis.Phase
	// Progress is the displayed completion percentage, 0..100.
	Progress     int
	ErrorMessage string
	ErrorKind    ErrorKind

	FileName   string
	DocumentID int64
	RemotePath string
	Checksum   string

	Snapshot        *docapi.StatusResponse
	PollAttempts    int
	TransientErrors int
}

// AnalysisDone reports whether the analysis phase is terminal.
func (s State) AnalysisDone() bool {
	return s.Analysis.Terminal()
}

// EventKind identifies a terminal event reported to the Session.
type EventKind int

const (
	EventUploadSucceeded EventKind = iota + 1
	EventUploadFailed
	EventAnalysisReady
	EventAnalysisFailed
	// EventUnauthorized asks the session owner to end the session and
	// re-authenticate.
	EventUnauthorized
)

func (k EventKind) String() string {
	switch k {
	case EventUploadSucceeded:
		return "upload-succeeded"
	case EventUploadFailed:
		return "upload-failed"
	case EventAnalysisReady:
		return "analysis-ready"
	case EventAnalysisFailed:
		return "analysis-failed"
	case EventUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Event is a terminal outcome reported to the Session.
type Event struct {
	Kind       EventKind
	DocumentID int64
	Message    string
}

// Session is the orchestrator's view of the surrounding application: it
// supplies the bearer token and receives terminal events.
type Session interface {
	AccessToken() (string, error)
	Emit(Event)
}
