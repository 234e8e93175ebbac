package provider

import (
	"context"
	"errors"
	"io"
	"iter"
)

// Sentinel errors shared by all backends. Implementations wrap them so callers
// can use errors.Is regardless of the storage service.
var (
	ErrNotFound      = errors.New("remote path not found")
	ErrAlreadyExists = errors.New("remote path already exists")
	ErrUnauthorized  = errors.New("remote storage rejected credentials")
	ErrQuotaExceeded = errors.New("remote storage quota exceeded")
)

// EntryType tags a remote listing entry.
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Name string
	Type EntryType
}

// Provider is a remote storage session. It is opened once per process and
// closed on exit; paths are slash separated and may carry a backend scheme
// prefix (e.g. "app:/mc/backups").
type Provider interface {
	// Name returns the provider identifier (e.g. "yadisk", "azure").
	Name() string

	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Mkdir creates a single directory. It fails with ErrAlreadyExists if
	// path is present, so callers check Exists first.
	Mkdir(ctx context.Context, path string) error

	// List lazily yields the direct children of path. The sequence is finite
	// and may only be ranged over once; iteration stops at the first error.
	List(ctx context.Context, path string) iter.Seq2[Entry, error]

	// Remove deletes path permanently (no trash).
	Remove(ctx context.Context, path string) error

	// Upload streams size bytes from r to path, overwriting any existing file.
	Upload(ctx context.Context, r io.Reader, size int64, path string) error

	// Close releases the session.
	Close() error
}

// Join appends name to a remote directory path.
func Join(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}
