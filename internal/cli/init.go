package cli

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/auth"
	"github.com/fpang/docflow/internal/docapi"
)

// InitClient creates the API client and resolves and validates the token.
// Exits fatally on failure.
func InitClient(ctx context.Context, apiURL string, resolver *auth.Resolver) *docapi.Client {
	client := docapi.NewClient(apiURL)

	token, err := resolver.AccessToken()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to retrieve access token")
	}

	if err := auth.ValidateToken(ctx, client, token); err != nil {
		HandleValidationError(err)
	}

	log.Debug().Str("api", client.BaseURL()).Str("tokenSource", resolver.Source()).Msg("Access token validated")
	return client
}
