package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/localfs"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/reconcile"
)

// Deps are the collaborators of a run. The caller owns the remote session
// and closes it.
type Deps struct {
	Local    *localfs.Dir
	Remote   provider.Provider
	Progress io.Writer
}

// Run prepares both directories and reconciles them once. The returned error
// is always nil, ErrUserCancelled or *OperationFailedError.
func Run(ctx context.Context, cfg config.Config, deps Deps) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &OperationFailedError{Cause: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	start := time.Now()
	log.Info().
		Str("action", "sync").
		Str("provider", deps.Remote.Name()).
		Str("local", deps.Local.Path()).
		Str("remote", cfg.RemoteDir).
		Bool("dry_run", cfg.DryRun).
		Msg("Synchronization is running.")

	if err := bootstrap(ctx, cfg, deps); err != nil {
		return classify(ctx, err)
	}

	sum, err := reconcile.New(deps.Local, deps.Remote, reconcile.Options{
		RemoteDir:       cfg.RemoteDir,
		Ext:             cfg.ArchiveExt,
		DryRun:          cfg.DryRun,
		DuplicatePolicy: cfg.DuplicatePolicy,
		Progress:        deps.Progress,
	}).Run(ctx)
	if err != nil {
		return classify(ctx, err)
	}

	log.Info().
		Str("action", "sync").
		Int("deleted", sum.Deleted).
		Int("kept", sum.Kept).
		Int("uploaded", sum.Uploaded).
		Int64("bytes", sum.BytesUploaded).
		Int("duplicates", sum.Duplicates).
		Bool("dry_run", sum.DryRun).
		Dur("elapsed_ms", time.Since(start)).
		Msg("Synchronization is finished.")
	return nil
}

// classify prefers the context state over the error chain.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrUserCancelled
	}
	return Classify(err)
}

// bootstrap creates the local backup directory and every missing component
// of the remote folder, top down.
func bootstrap(ctx context.Context, cfg config.Config, deps Deps) error {
	created, err := deps.Local.EnsureDir()
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("action", "mkdir").Str("path", deps.Local.Path()).
			Msgf("The %q directory is created on the local drive.", deps.Local.Path())
	}

	for _, dir := range provider.Chain(cfg.RemoteDir) {
		ok, err := deps.Remote.Exists(ctx, dir)
		if err != nil {
			return fmt.Errorf("check %q: %w", dir, err)
		}
		if ok {
			continue
		}
		if err := deps.Remote.Mkdir(ctx, dir); err != nil {
			if errors.Is(err, provider.ErrAlreadyExists) {
				continue
			}
			return fmt.Errorf("create %q: %w", dir, err)
		}
		log.Info().Str("action", "mkdir").Str("path", dir).Str("provider", deps.Remote.Name()).
			Msgf("The %q directory is created on remote storage.", dir)
	}
	return nil
}
