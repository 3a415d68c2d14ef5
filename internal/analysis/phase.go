package analysis

// Phase is the analysis sub-state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePosting
	PhasePolling
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePosting:
		return "posting"
	case PhasePolling:
		return "polling"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a poll chain.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed
}

// Failure says why a chain ended in PhaseFailed.
type Failure int

const (
	FailureNone Failure = iota
	// FailureSubmission: the job could not be started.
	FailureSubmission
	// FailureServer: the backend reported FAILED.
	FailureServer
	// FailureUnauthorized: a request was rejected with 401.
	FailureUnauthorized
	// FailureTimeout: the poll budget ran out.
	FailureTimeout
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureSubmission:
		return "submission"
	case FailureServer:
		return "server"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// User-facing failure messages.
const (
	MsgSubmissionFallback = "Failed to start analysis."
	MsgServerFailed       = "Analysis failed on the server."
	MsgUnauthorized       = "Your session has expired. Please sign in again."
	MsgTimedOut           = "Analysis timed out."
)
