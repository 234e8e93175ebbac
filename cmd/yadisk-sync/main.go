package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/auth"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/localfs"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/logx"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/runner"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/version"

	_ "github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider/azure"
	_ "github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider/gdrive"
	_ "github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider/s3"
	_ "github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider/yadisk"
)

// Test seams, overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig   func() (config.Config, error)                                  = config.Load
	acquireToken func(context.Context, config.Config) (string, error)           = auth.AcquireToken
	newProvider  func(string, config.Config, string) (provider.Provider, error) = provider.New
	runSync      func(context.Context, config.Config, runner.Deps) error        = runner.Run
	localFS      afero.Fs                                                       = afero.NewOsFs()
	exit         func(int)                                                      = os.Exit

	notifySignals = signal.NotifyContext
)

const usage = `
Usage:
  yadisk-sync [sync]
  yadisk-sync version | --version | -v
  yadisk-sync help    | --help    | -h

Notes:
  - Local files in BACKUPS_DIR (default: backups) are mirrored to REMOTE_DIR
    (default: app:/mc/backups) without the ARCHIVE_EXT suffix (default: .tgz).
  - Remote files with no local counterpart are deleted permanently.
  - Backend is selected with SYNC_PROVIDER (yadisk, azure, s3, gdrive; default: yadisk).
  - Yandex.Disk token: YADISK_TOKEN or YADISK_TOKEN_FILE.
  - SYNC_DRY_RUN=true logs the plan without changing anything.
`

// main wires CLI -> config -> auth -> provider -> runner.
// Exit codes: 0 success, 1 interrupted or failed run, 2 usage error.
func main() {
	exit(run())
}

func run() int {
	_ = godotenv.Load() // best-effort
	closer, err := logx.InitFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	args := os.Args[1:]
	action := "sync"
	if len(args) > 0 {
		action = strings.ToLower(args[0])
	}
	if len(args) > 1 {
		fmt.Print(usage)
		return 2
	}

	switch action {
	case "version", "--version", "-v":
		fmt.Println(version.Info())
		return 0
	case "help", "--help", "-h":
		fmt.Print(usage)
		return 0
	case "sync":
		return syncCommand()
	default:
		fmt.Print(usage)
		return 2
	}
}

func syncCommand() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Str("action", "config").Msg("config error")
		return 1
	}

	ctx := withSignals(context.Background())

	// Only yadisk takes its token from the auth provider.
	token := ""
	if cfg.Provider == "yadisk" {
		token, err = acquireToken(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Str("action", "auth").Str("method", cfg.Auth.Method).Msg("auth failed")
			return 1
		}
	}

	p, err := newProvider(cfg.Provider, cfg, token)
	if err != nil {
		log.Error().Err(err).Str("action", "provider").Str("provider", cfg.Provider).Msg("provider init error")
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Str("action", "provider").Str("provider", cfg.Provider).Msg("provider close error")
		}
	}()

	return report(runSync(ctx, cfg, runner.Deps{
		Local:    localfs.New(localFS, cfg.BackupsDir),
		Remote:   p,
		Progress: os.Stderr,
	}))
}

// report logs the outcome of a run and maps it to an exit code.
func report(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, runner.ErrUserCancelled) {
		log.Warn().Str("action", "sync").Msg("Synchronization is cancelled by user.")
		return 1
	}

	ev := log.Error().Err(err).Str("action", "sync").Strs("cause", causeChain(err))
	var opErr *runner.OperationFailedError
	if errors.As(err, &opErr) && len(opErr.Stack) > 0 {
		ev = ev.Str("stack", string(opErr.Stack))
	}
	ev.Msg("Synchronization failed.")
	return 1
}

// causeChain lists the messages of err and every error it wraps.
func causeChain(err error) []string {
	var out []string
	for err != nil {
		out = append(out, err.Error())
		err = errors.Unwrap(err)
	}
	return out
}

// withSignals cancels the context on the first SIGINT or SIGTERM and then
// restores default handling, so a second signal terminates the process.
func withSignals(parent context.Context) context.Context {
	ctx, stop := notifySignals(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}
