package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const ssmTimeout = 10 * time.Second

// Resolver caches the token from the first source that yields one.
// It is safe for concurrent use.
type Resolver struct {
	ssmParam string

	mu        sync.Mutex
	ssm       ParameterReader
	token     string
	source    string
	newClient func(ctx context.Context) (ParameterReader, error)
}

// NewResolver creates a resolver. ssmParam may be empty to disable the SSM
// fallback.
func NewResolver(ssmParam string) *Resolver {
	return &Resolver{
		ssmParam: ssmParam,
		newClient: func(ctx context.Context) (ParameterReader, error) {
			return NewSSMClient(ctx)
		},
	}
}

// WithParameterReader replaces the SSM client, mainly for tests.
func (r *Resolver) WithParameterReader(pr ParameterReader) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ssm = pr
	return r
}

// AccessToken returns the cached token, resolving it on first use.
func (r *Resolver) AccessToken() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != "" {
		return r.token, nil
	}

	token, err := GetAccessToken()
	if err == nil {
		r.token, r.source = token, "local"
		return token, nil
	}
	if r.ssmParam == "" {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()

	if r.ssm == nil {
		client, cerr := r.newClient(ctx)
		if cerr != nil {
			return "", errors.Join(err, cerr)
		}
		r.ssm = client
	}

	token, serr := LoadFromSSM(ctx, r.ssm, r.ssmParam)
	if serr != nil {
		log.Warn().Err(serr).Str("param", r.ssmParam).Msg("SSM token lookup failed")
		return "", fmt.Errorf("%w: %w", ErrNoToken, serr)
	}
	r.token, r.source = token, "ssm"
	return token, nil
}

// Source names where the cached token came from ("local", "ssm"), or ""
// if none is cached.
func (r *Resolver) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// Invalidate drops the cached token so the next call resolves it again.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token, r.source = "", ""
}
