package yadisk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/retry"
)

/* ------------------------------ fake disk API ----------------------------- */

type fakeDisk struct {
	mu      sync.Mutex
	srv     *httptest.Server
	dirs    map[string]bool
	files   map[string][]byte
	asyncRm bool // answer DELETE with 202 + operation link
	polls   int
	quota   bool // answer upload link requests with 507
}

func newFakeDisk(t *testing.T) *fakeDisk {
	t.Helper()
	d := &fakeDisk{dirs: map[string]bool{}, files: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/disk/resources", d.resources)
	mux.HandleFunc("/v1/disk/resources/upload", d.uploadLink)
	mux.HandleFunc("/upload/", d.put)
	mux.HandleFunc("/v1/disk/operations/", d.operation)
	d.srv = httptest.NewServer(d.auth(mux))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *fakeDisk) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/upload/") && r.Header.Get("Authorization") != "OAuth secret" {
			writeErr(w, http.StatusUnauthorized, "UnauthorizedError")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": code, "description": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (d *fakeDisk) resources(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path := r.URL.Query().Get("path")

	switch r.Method {
	case http.MethodGet:
		if _, ok := d.files[path]; ok {
			writeJSON(w, http.StatusOK, map[string]string{"name": path[strings.LastIndex(path, "/")+1:], "type": "file"})
			return
		}
		if !d.dirs[path] {
			writeErr(w, http.StatusNotFound, "DiskNotFoundError")
			return
		}
		type item struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		var items []item
		prefix := path + "/"
		for f := range d.files {
			if rest, ok := strings.CutPrefix(f, prefix); ok && !strings.Contains(rest, "/") {
				items = append(items, item{rest, "file"})
			}
		}
		for dir := range d.dirs {
			if rest, ok := strings.CutPrefix(dir, prefix); ok && !strings.Contains(rest, "/") {
				items = append(items, item{rest, "dir"})
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		total := len(items)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if offset > len(items) {
			offset = len(items)
		}
		items = items[offset:]
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"items": items, "total": total}})

	case http.MethodPut:
		if d.dirs[path] {
			writeErr(w, http.StatusConflict, "DiskPathPointsToExistentDirectoryError")
			return
		}
		d.dirs[path] = true
		writeJSON(w, http.StatusCreated, Link{Href: d.srv.URL + "/v1/disk/resources?path=" + path, Method: "GET"})

	case http.MethodDelete:
		if r.URL.Query().Get("permanently") != "true" {
			writeErr(w, http.StatusBadRequest, "NotPermanent")
			return
		}
		if _, ok := d.files[path]; !ok {
			writeErr(w, http.StatusNotFound, "DiskNotFoundError")
			return
		}
		delete(d.files, path)
		if d.asyncRm {
			writeJSON(w, http.StatusAccepted, Link{Href: d.srv.URL + "/v1/disk/operations/op1", Method: "GET"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (d *fakeDisk) uploadLink(w http.ResponseWriter, r *http.Request) {
	if d.quota {
		writeErr(w, http.StatusInsufficientStorage, "DiskInsufficientStorageError")
		return
	}
	if r.URL.Query().Get("overwrite") != "true" {
		writeErr(w, http.StatusConflict, "DiskResourceAlreadyExistsError")
		return
	}
	writeJSON(w, http.StatusOK, Link{Href: d.srv.URL + "/upload/?path=" + r.URL.Query().Get("path"), Method: "PUT"})
}

func (d *fakeDisk) put(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	if r.ContentLength != int64(len(data)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	d.files[r.URL.Query().Get("path")] = data
	d.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (d *fakeDisk) operation(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.polls++
	n := d.polls
	d.mu.Unlock()
	status := "in-progress"
	if n >= 2 {
		status = "success"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func newTestProvider(t *testing.T, d *fakeDisk, token string) *Provider {
	t.Helper()
	p, err := New(Options{
		APIURL:  d.srv.URL + "/v1/disk",
		Token:   token,
		Timeout: 5 * time.Second,
		Poll:    retry.Options{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func collect(t *testing.T, p *Provider, path string) []provider.Entry {
	t.Helper()
	var out []provider.Entry
	for e, err := range p.List(context.Background(), path) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

/* --------------------------------- tests -------------------------------- */

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrNoToken)
}

func TestExistsAndMkdir(t *testing.T) {
	d := newFakeDisk(t)
	p := newTestProvider(t, d, "secret")
	ctx := context.Background()

	ok, err := p.Exists(ctx, "app:/mc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Mkdir(ctx, "app:/mc"))
	ok, err = p.Exists(ctx, "app:/mc")
	require.NoError(t, err)
	assert.True(t, ok)

	err = p.Mkdir(ctx, "app:/mc")
	require.ErrorIs(t, err, provider.ErrAlreadyExists)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DiskPathPointsToExistentDirectoryError", apiErr.Code)
}

func TestUnauthorized(t *testing.T) {
	d := newFakeDisk(t)
	p := newTestProvider(t, d, "wrong")
	_, err := p.Exists(context.Background(), "app:/mc")
	require.ErrorIs(t, err, provider.ErrUnauthorized)
}

func TestUploadListRemove(t *testing.T) {
	d := newFakeDisk(t)
	d.dirs["app:/b"] = true
	d.dirs["app:/b/sub"] = true
	p := newTestProvider(t, d, "secret")
	ctx := context.Background()

	require.NoError(t, p.Upload(ctx, strings.NewReader("hello"), 5, "app:/b/x"))
	require.NoError(t, p.Upload(ctx, strings.NewReader(""), 0, "app:/b/empty"))
	assert.Equal(t, []byte("hello"), d.files["app:/b/x"])

	entries := collect(t, p, "app:/b")
	assert.Equal(t, []provider.Entry{
		{Name: "empty", Type: provider.TypeFile},
		{Name: "sub", Type: provider.TypeDir},
		{Name: "x", Type: provider.TypeFile},
	}, entries)

	require.NoError(t, p.Remove(ctx, "app:/b/x"))
	_, still := d.files["app:/b/x"]
	assert.False(t, still)

	err := p.Remove(ctx, "app:/b/x")
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestRemove_PollsAsyncOperation(t *testing.T) {
	d := newFakeDisk(t)
	d.asyncRm = true
	d.files["app:/b/x"] = []byte("x")
	p := newTestProvider(t, d, "secret")

	require.NoError(t, p.Remove(context.Background(), "app:/b/x"))
	assert.Equal(t, 2, d.polls)
}

func TestUpload_QuotaExceeded(t *testing.T) {
	d := newFakeDisk(t)
	d.quota = true
	p := newTestProvider(t, d, "secret")
	err := p.Upload(context.Background(), strings.NewReader("x"), 1, "app:/b/x")
	require.ErrorIs(t, err, provider.ErrQuotaExceeded)
}

func TestList_PagesAndSurvivesRemovalsDuringIteration(t *testing.T) {
	d := newFakeDisk(t)
	d.dirs["app:/b"] = true
	for i := range listPageSize + 50 {
		d.files["app:/b/f"+strconv.Itoa(1000+i)] = nil
	}
	p := newTestProvider(t, d, "secret")
	ctx := context.Background()

	seen := 0
	for e, err := range p.List(ctx, "app:/b") {
		require.NoError(t, err)
		seen++
		// Delete every other entry while the listing is still in flight.
		if seen%2 == 0 {
			require.NoError(t, p.Remove(ctx, provider.Join("app:/b", e.Name)))
		}
	}
	assert.Equal(t, listPageSize+50, seen)
	assert.Len(t, d.files, (listPageSize+50)/2)
}

func TestList_MissingFolder(t *testing.T) {
	d := newFakeDisk(t)
	p := newTestProvider(t, d, "secret")
	for _, err := range p.List(context.Background(), "app:/none") {
		require.ErrorIs(t, err, provider.ErrNotFound)
	}
}

func TestParentDir(t *testing.T) {
	assert.Equal(t, "app:/mc/backups", parentDir("app:/mc/backups/a"))
	assert.Equal(t, "app:", parentDir("app:/a"))
	assert.Equal(t, "", parentDir("a"))
}
