package auth

import (
	"context"

	"github.com/rs/zerolog/log"
)

// tokenProvider returns the token given in YADISK_TOKEN.
type tokenProvider struct {
	token string
}

func (p *tokenProvider) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.token == "" {
		log.Debug().
			Str("action", "auth_acquire").
			Str("method", "token").
			Msg("YADISK_TOKEN is not set")
		return "", ErrNoToken
	}
	log.Debug().
		Str("action", "auth_acquire").
		Str("method", "token").
		Int("length", len(p.token)).
		Msg("token taken from environment")
	return p.token, nil
}
