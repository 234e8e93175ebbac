package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/localfs"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/progress"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// ErrDuplicateCanonical aborts a run before any mutation when the duplicate
// policy is "error" and two local files map to one remote name.
var ErrDuplicateCanonical = errors.New("local files share a canonical name")

// Options controls one reconciliation.
type Options struct {
	// RemoteDir is the remote backup folder (e.g. app:/mc/backups).
	RemoteDir string
	// Ext is stripped from local names (default: .tgz).
	Ext string
	// DryRun logs the plan and mutates nothing.
	DryRun bool
	// DuplicatePolicy is config.DuplicatesWarn (default) or config.DuplicatesError.
	DuplicatePolicy string
	// Progress receives upload progress; nil disables reporting.
	Progress io.Writer
}

// Summary counts what a run did (or would do, in dry-run mode).
type Summary struct {
	Deleted       int
	Kept          int
	Uploaded      int
	BytesUploaded int64
	Duplicates    int
	DryRun        bool
}

// Reconciler makes the remote folder mirror the local backup directory.
type Reconciler struct {
	local  *localfs.Dir
	remote provider.Provider
	opts   Options
}

// New builds a Reconciler. An empty Ext falls back to DefaultExt and an empty
// DuplicatePolicy to config.DuplicatesWarn.
func New(local *localfs.Dir, remote provider.Provider, opts Options) *Reconciler {
	if opts.Ext == "" {
		opts.Ext = DefaultExt
	}
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicatesWarn
	}
	return &Reconciler{local: local, remote: remote, opts: opts}
}

// Run deletes remote orphans while walking the remote listing once, then
// uploads every local file whose canonical name was not kept. The first
// failure stops the run; mutations already done are not rolled back.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	local, err := r.localFiles()
	if err != nil {
		return sum, err
	}

	dups := duplicates(local, r.opts.Ext)
	sum.Duplicates = len(dups)
	if err := r.checkDuplicates(dups); err != nil {
		return sum, err
	}

	if r.opts.DryRun {
		return r.plan(ctx, local, sum)
	}

	canon := canonicalSet(local, r.opts.Ext)
	keep := make(map[string]struct{})
	for e, err := range r.remote.List(ctx, r.opts.RemoteDir) {
		if err != nil {
			return sum, fmt.Errorf("list %q: %w", r.opts.RemoteDir, err)
		}
		if e.Type != provider.TypeFile {
			continue
		}
		if _, ok := canon[e.Name]; ok {
			keep[e.Name] = struct{}{}
			sum.Kept++
			continue
		}
		if err := r.delete(ctx, e.Name); err != nil {
			return sum, err
		}
		sum.Deleted++
	}

	for _, u := range uploads(local, keep, r.opts.Ext) {
		n, err := r.upload(ctx, u)
		if err != nil {
			return sum, err
		}
		sum.Uploaded++
		sum.BytesUploaded += n
	}
	return sum, nil
}

// localFiles lists the backup directory, skipping subdirectories and files
// without a canonical name.
func (r *Reconciler) localFiles() ([]string, error) {
	entries, err := r.local.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			log.Debug().Str("action", "skip").Str("name", e.Name).Msg("skipping directory in backup dir")
			continue
		}
		names = append(names, e.Name)
	}
	names, skipped := named(names, r.opts.Ext)
	for _, name := range skipped {
		log.Warn().Str("action", "skip").Str("name", name).Str("ext", r.opts.Ext).
			Msgf("File %q has an empty name once the extension is removed, skipping.", name)
	}
	return names, nil
}

func (r *Reconciler) checkDuplicates(dups map[string][]string) error {
	if len(dups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dups))
	for c := range dups {
		keys = append(keys, c)
	}
	sort.Strings(keys)

	for _, c := range keys {
		log.Warn().
			Str("action", "duplicate").
			Str("name", c).
			Strs("files", dups[c]).
			Msgf("Files %s share the remote name %q, the last upload wins.", strings.Join(dups[c], ", "), c)
	}
	if r.opts.DuplicatePolicy == config.DuplicatesError {
		return fmt.Errorf("%w: %s", ErrDuplicateCanonical, strings.Join(keys, ", "))
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if err := r.remote.Remove(ctx, provider.Join(r.opts.RemoteDir, name)); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	log.Info().
		Str("action", "delete").
		Str("name", name).
		Dur("elapsed_ms", time.Since(start)).
		Msgf("File %q deleted.", name)
	return nil
}

func (r *Reconciler) upload(ctx context.Context, u Upload) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size, err := r.local.Size(u.Local)
	if err != nil {
		return 0, err
	}
	f, err := r.local.Open(u.Local)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var body io.Reader = f
	var rep *progress.Reporter
	if r.opts.Progress != nil {
		rep = progress.NewReporter(u.Target, size, r.opts.Progress)
		body = progress.NewReader(f, size, rep.Add)
	}

	start := time.Now()
	err = r.remote.Upload(ctx, body, size, provider.Join(r.opts.RemoteDir, u.Target))
	if rep != nil {
		rep.Finish()
	}
	if err != nil {
		return 0, fmt.Errorf("upload %q: %w", u.Local, err)
	}

	log.Info().
		Str("action", "upload").
		Str("name", u.Target).
		Str("size", humanize.Bytes(uint64(size))).
		Dur("elapsed_ms", time.Since(start)).
		Msgf("File %q uploaded.", u.Target)
	return size, nil
}

// plan lists the remote folder fully and logs the decisions only.
func (r *Reconciler) plan(ctx context.Context, local []string, sum Summary) (Summary, error) {
	var remote []provider.Entry
	for e, err := range r.remote.List(ctx, r.opts.RemoteDir) {
		if err != nil {
			return sum, fmt.Errorf("list %q: %w", r.opts.RemoteDir, err)
		}
		remote = append(remote, e)
	}

	p := MakePlan(local, remote, r.opts.Ext)
	for _, name := range p.Delete {
		log.Info().Str("action", "plan_delete").Str("name", name).Msgf("File %q would be deleted.", name)
	}
	for _, u := range p.Upload {
		log.Info().Str("action", "plan_upload").Str("name", u.Target).Str("local", u.Local).
			Msgf("File %q would be uploaded.", u.Target)
	}

	sum.DryRun = true
	sum.Deleted = len(p.Delete)
	sum.Kept = len(p.Keep)
	sum.Uploaded = len(p.Upload)
	return sum, nil
}
