package upload

import (
	"fmt"

	"github.com/fpang/docflow/internal/docapi"
)

// Kind classifies why an upload attempt failed.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindStorageInit
	KindTransfer
	KindRegistration
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindStorageInit:
		return "storage-init"
	case KindTransfer:
		return "transfer"
	case KindRegistration:
		return "registration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// fallback messages shown when the server does not provide one.
var fallbackMessages = map[Kind]string{
	KindUnauthorized: "Your session has expired. Please sign in again.",
	KindStorageInit:  "Failed to initiate upload.",
	KindTransfer:     "Upload to storage failed.",
	KindRegistration: "Failed to create document record.",
}

// Error is a failed upload step. Message is human-readable and safe to show;
// Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError classifies err for the given step. A 401 from any step wins over
// the step's own kind.
func newError(step Kind, err error) *Error {
	kind := step
	if docapi.IsUnauthorized(err) {
		kind = KindUnauthorized
	}
	return &Error{
		Kind:    kind,
		Message: docapi.ServerMessage(err, fallbackMessages[kind]),
		Err:     err,
	}
}
