package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/auth"
)

// ResolveFile checks that path exists and is a regular file, then returns
// its absolute path. Exits fatally on failure.
func ResolveFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", path).Msg("File not found")
		}
		log.Fatal().Err(err).Str("path", path).Msg("Failed to access file")
	}
	if info.IsDir() {
		log.Fatal().Str("path", path).Msg("Path is a directory")
	}

	if absPath, err := filepath.Abs(path); err == nil {
		path = absPath
	}
	return path
}

// HandleValidationError processes auth.ValidationError and exits with appropriate messaging.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoToken:
			log.Fatal().Msgf("No access token configured. Set %s or store it in ~/.docflow/credentials.gpg", auth.EnvToken)
		case auth.ErrTypeInvalidToken:
			log.Fatal().Err(err).Msg("Access token rejected. Sign in again and update your token")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Check your connection and the API URL")
		default:
			log.Fatal().Err(err).Msg("Access token validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during access token validation")
	}
	os.Exit(1)
}
