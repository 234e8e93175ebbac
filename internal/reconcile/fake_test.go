package reconcile

import (
	"context"
	"errors"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// memRemote is an in-memory provider.Provider rooted at one folder.
type memRemote struct {
	mu    sync.Mutex
	dir   string
	files map[string]string
	dirs  map[string]bool
	ops   []string // "delete:x", "upload:x" in call order

	failRemove error
	failUpload error
	failList   error
}

func newMemRemote(dir string, files ...string) *memRemote {
	m := &memRemote{dir: dir, files: map[string]string{}, dirs: map[string]bool{}}
	for _, f := range files {
		m.files[f] = "old"
	}
	return m
}

func (m *memRemote) name(path string) string {
	return strings.TrimPrefix(path, m.dir+"/")
}

func (m *memRemote) Name() string { return "mem" }

func (m *memRemote) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[m.name(path)]
	return ok || m.dirs[path], nil
}

func (m *memRemote) Mkdir(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[path] {
		return provider.ErrAlreadyExists
	}
	m.dirs[path] = true
	return nil
}

func (m *memRemote) List(_ context.Context, path string) iter.Seq2[provider.Entry, error] {
	return func(yield func(provider.Entry, error) bool) {
		if m.failList != nil {
			yield(provider.Entry{}, m.failList)
			return
		}
		m.mu.Lock()
		names := make([]string, 0, len(m.files))
		for n := range m.files {
			names = append(names, n)
		}
		subdirs := []string{}
		for d := range m.dirs {
			if rest, ok := strings.CutPrefix(d, path+"/"); ok && !strings.Contains(rest, "/") {
				subdirs = append(subdirs, rest)
			}
		}
		m.mu.Unlock()
		sort.Strings(names)

		for _, d := range subdirs {
			if !yield(provider.Entry{Name: d, Type: provider.TypeDir}, nil) {
				return
			}
		}
		for _, n := range names {
			if !yield(provider.Entry{Name: n, Type: provider.TypeFile}, nil) {
				return
			}
		}
	}
}

func (m *memRemote) Remove(_ context.Context, path string) error {
	if m.failRemove != nil {
		return m.failRemove
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.name(path)
	if _, ok := m.files[n]; !ok {
		return provider.ErrNotFound
	}
	delete(m.files, n)
	m.ops = append(m.ops, "delete:"+n)
	return nil
}

func (m *memRemote) Upload(_ context.Context, r io.Reader, size int64, path string) error {
	if m.failUpload != nil {
		return m.failUpload
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.name(path)
	m.files[n] = string(data)
	m.ops = append(m.ops, "upload:"+n)
	return nil
}

func (m *memRemote) Close() error { return nil }

func (m *memRemote) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for n := range m.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
