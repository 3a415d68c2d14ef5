package main

import (
	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/auth"
	"github.com/fpang/docflow/internal/orchestrator"
)

// cliSession hands the resolved token to the orchestrator and reacts to
// its terminal events.
type cliSession struct {
	resolver *auth.Resolver
}

func (s *cliSession) AccessToken() (string, error) {
	return s.resolver.AccessToken()
}

func (s *cliSession) Emit(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventUnauthorized:
		s.resolver.Invalidate()
		log.Warn().Int64("documentId", ev.DocumentID).Msg("Session expired; update your access token and sign in again")
	case orchestrator.EventUploadFailed, orchestrator.EventAnalysisFailed:
		log.Debug().Str("event", ev.Kind.String()).Int64("documentId", ev.DocumentID).Str("message", ev.Message).Msg("Terminal event")
	default:
		log.Debug().Str("event", ev.Kind.String()).Int64("documentId", ev.DocumentID).Msg("Terminal event")
	}
}
