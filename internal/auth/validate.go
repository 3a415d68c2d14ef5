package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/metrics"
)

// ValidationError represents a specific type of token validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoToken indicates no token was found.
	ErrTypeNoToken ValidationErrorType = iota
	// ErrTypeInvalidToken indicates the token is invalid or expired.
	ErrTypeInvalidToken
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// OverviewReader is the cheapest authenticated call the API offers.
type OverviewReader interface {
	Overview(ctx context.Context, token string) (*docapi.OverviewStats, error)
}

// ValidateToken checks the token against the API with one overview call.
// It returns nil if accepted, or a *ValidationError.
func ValidateToken(ctx context.Context, api OverviewReader, token string) error {
	if token == "" {
		return &ValidationError{Type: ErrTypeNoToken, Message: "no access token configured"}
	}

	log.Debug().Msg("Validating access token")

	start := time.Now()
	_, err := api.Overview(ctx, token)
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	if err != nil {
		valErr = classifyError(err)
		switch valErr.Type {
		case ErrTypeInvalidToken:
			result = "invalid"
		case ErrTypeNetworkError:
			result = "network_error"
		default:
			result = "unknown"
		}
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Metric("TokenValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("TokenValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("Token validation result")

	if valErr != nil {
		return valErr
	}
	return nil
}

// classifyError analyzes an error and returns a ValidationError with the appropriate type.
func classifyError(err error) *ValidationError {
	var apiErr *docapi.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		log.Error().Err(err).Msg("Network error during token validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "Network error - check your connection and API URL",
			Err:     err,
		}

	default:
		log.Error().Err(err).Msg("Unknown error during token validation")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "Failed to validate access token",
			Err:     err,
		}
	}
}

// classifyAPIError categorizes a document API error.
func classifyAPIError(err *docapi.APIError) *ValidationError {
	switch err.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		log.Error().Int("code", err.StatusCode).Msg("Authentication failed - invalid token")
		return &ValidationError{
			Type:    ErrTypeInvalidToken,
			Message: "Access token is invalid, expired, or lacks permissions",
			Err:     err,
		}

	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		log.Error().Int("code", err.StatusCode).Msg("Server error during validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "Document API server error - try again later",
			Err:     err,
		}

	default:
		log.Error().Int("code", err.StatusCode).Str("detail", err.Detail).Msg("Document API error")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: docapi.ServerMessage(err, "Failed to validate access token"),
			Err:     err,
		}
	}
}
