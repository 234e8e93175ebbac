package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
)

// fileProvider reads the token from a mounted secret file on every Acquire.
type fileProvider struct {
	path string
}

func newFileProvider(cfg config.Config) (*fileProvider, error) {
	if strings.TrimSpace(cfg.Auth.TokenFile) == "" {
		return nil, errors.New("file auth requires token file path")
	}
	return &fileProvider{path: cfg.Auth.TokenFile}, nil
}

func (p *fileProvider) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		log.Debug().
			Str("action", "auth_acquire").
			Str("method", "file").
			Str("path", p.path).
			Msg("token file is empty")
		return "", ErrNoToken
	}

	// Never log the token content.
	log.Debug().
		Str("action", "auth_acquire").
		Str("method", "file").
		Str("path", p.path).
		Msg("token read")
	return token, nil
}
