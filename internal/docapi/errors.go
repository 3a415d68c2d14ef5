package docapi

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ErrUnauthorized matches any API error caused by a 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForeignHost is returned for a pagination link that points away from
// the API host. Such links are never followed, so the token stays put.
var ErrForeignHost = errors.New("link points to a different host")

// APIError is a non-2xx response from the backend or storage.
type APIError struct {
	Op         string
	StatusCode int
	// Detail is the server-provided message (detail or message field), if any.
	Detail string
	Body   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Detail)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is makes errors.Is(err, ErrUnauthorized) true for 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err was caused by a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ServerMessage returns the server-provided message carried by err, or
// fallback if there is none.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// truncate cuts s to at most n bytes on a rune boundary, appending "..."
// if anything was dropped.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
