package filehandler

// MaxUploadSize is the largest accepted candidate, 50 MiB.
const MaxUploadSize int64 = 50 * 1024 * 1024

// Rejection reasons reported by Validate.
const (
	ReasonUnsupportedType = "unsupported type"
	ReasonTooLarge        = "too large"
)

// RejectedError reports why a candidate cannot be uploaded.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "file rejected: " + e.Reason
}

// Message returns the user-facing description of the rejection.
func (e *RejectedError) Message() string {
	switch e.Reason {
	case ReasonUnsupportedType:
		return "Only PDF files are allowed."
	case ReasonTooLarge:
		return "File size must be less than 50MB."
	default:
		return "File rejected: " + e.Reason
	}
}

// Validate checks the declared type first, then the size.
func Validate(f CandidateFile) error {
	if f.MIMEType != PDFMIMEType {
		return &RejectedError{Reason: ReasonUnsupportedType}
	}
	if f.Size > MaxUploadSize {
		return &RejectedError{Reason: ReasonTooLarge}
	}
	return nil
}
