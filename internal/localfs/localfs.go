package localfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Entry is one item of the backup directory.
type Entry struct {
	Name  string
	IsDir bool
}

// Dir is the local backup directory.
type Dir struct {
	fs   afero.Fs
	path string
}

// New returns the directory at path on fs. Pass afero.NewOsFs() outside tests.
func New(fs afero.Fs, path string) *Dir {
	return &Dir{fs: fs, path: filepath.Clean(path)}
}

func (d *Dir) Path() string { return d.path }

// EnsureDir creates the directory (and parents) if missing and reports
// whether it had to be created.
func (d *Dir) EnsureDir() (bool, error) {
	fi, err := d.fs.Stat(d.path)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return false, fmt.Errorf("%q exists and is not a directory", d.path)
		}
		return false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat %q: %w", d.path, err)
	}
	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return false, fmt.Errorf("create %q: %w", d.path, err)
	}
	return true, nil
}

// List returns the directory entries sorted by name.
func (d *Dir) List() ([]Entry, error) {
	infos, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", d.path, err)
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, Entry{Name: fi.Name(), IsDir: fi.IsDir()})
	}
	return out, nil
}

// Open opens name for binary reading.
func (d *Dir) Open(name string) (io.ReadCloser, error) {
	f, err := d.fs.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return f, nil
}

// Size returns the byte size of name.
func (d *Dir) Size(name string) (int64, error) {
	fi, err := d.fs.Stat(filepath.Join(d.path, name))
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", name, err)
	}
	return fi.Size(), nil
}
