package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
)

var (
	ErrNoToken = errors.New("no OAuth token available for remote storage")
)

// Provider abstracts how we obtain the OAuth token (no refresh here).
type Provider interface {
	Acquire(ctx context.Context) (string, error)
}

// New selects the provider based on cfg.Auth.Method.
// NOTE: This package never initializes logging; main() does via logx.InitFromEnv().
func New(cfg config.Config) (Provider, error) {
	method := strings.ToLower(strings.TrimSpace(cfg.Auth.Method))
	switch method {
	case "token":
		log.Debug().
			Str("action", "auth_new").
			Str("method", "token").
			Msg("auth provider selected")
		return &tokenProvider{token: strings.TrimSpace(cfg.Auth.Token)}, nil

	case "file":
		log.Debug().
			Str("action", "auth_new").
			Str("method", "file").
			Str("path", cfg.Auth.TokenFile).
			Msg("auth provider selected")
		return newFileProvider(cfg)

	default:
		return nil, errors.New("unsupported auth method: " + method)
	}
}

// AcquireToken resolves the configured method and returns the token.
func AcquireToken(ctx context.Context, cfg config.Config) (string, error) {
	p, err := New(cfg)
	if err != nil {
		return "", err
	}
	return p.Acquire(ctx)
}
