// Package auth resolves the bearer token used against the document API.
//
// Sources, in priority order:
//  1. DOCFLOW_TOKEN environment variable
//  2. GPG-encrypted file at ~/.docflow/credentials.gpg
//  3. SSM Parameter Store, when a parameter name is configured
//
// The token is only read, never refreshed. When the backend rejects it the
// caller invalidates the cached value and the user re-authenticates out of
// band.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// EnvToken names the environment variable holding the token.
	EnvToken = "DOCFLOW_TOKEN"

	credentialDir  = ".docflow"
	credentialFile = "credentials.gpg"
)

// ErrNoToken is returned when no source yields a token.
var ErrNoToken = errors.New("access token not found")

// GetAccessToken retrieves the token from the environment or the GPG file.
func GetAccessToken() (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		log.Debug().Msg("Using access token from environment variable")
		return token, nil
	}

	token, err := getFromGPG()
	if err == nil && token != "" {
		log.Debug().Msg("Using access token from GPG encrypted file")
		return token, nil
	}

	log.Debug().Err(err).Msg("No local access token")
	return "", fmt.Errorf("%w: set %s or store it in ~/%s/%s", ErrNoToken, EnvToken, credentialDir, credentialFile)
}

// getFromGPG decrypts the token from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}

	if passphrasePath, ok := passphraseFile(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
	}

	args = append(args, credPath)
	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// passphraseFile returns ~/.docflow/.gpg-passphrase if it exists and is
// readable by the owner only.
func passphraseFile() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, credentialDir, ".gpg-passphrase")
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if mode := fi.Mode().Perm(); mode&0077 != 0 {
		log.Warn().
			Str("passphraseFile", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return "", false
	}
	log.Debug().Str("passphraseFile", path).Msg("Using passphrase file for GPG decryption")
	return path, true
}
