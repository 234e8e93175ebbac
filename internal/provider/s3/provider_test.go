package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/progress"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// fakeBucket answers the path-style subset of the S3 API used by Provider.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   map[string]int
	failPut bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[r.Method]++
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/bkt"), "/")
	switch {
	case r.Method == http.MethodPut && b.failPut:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
	case r.Method == http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		b.list(w, r.URL.Query().Get("prefix"), r.URL.Query().Get("delimiter"))
	case r.Method == http.MethodHead:
		if _, ok := b.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (b *fakeBucket) list(w http.ResponseWriter, prefix, delimiter string) {
	var contents, prefixes strings.Builder
	seen := map[string]bool{}
	for k := range b.objects {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		if i := strings.Index(rest, "/"); delimiter == "/" && i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				fmt.Fprintf(&prefixes, "<CommonPrefixes><Prefix>%s</Prefix></CommonPrefixes>", cp)
			}
			continue
		}
		fmt.Fprintf(&contents, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
	}
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>bkt</Name><Prefix>%s</Prefix><Delimiter>%s</Delimiter><IsTruncated>false</IsTruncated>%s%s</ListBucketResult>`,
		prefix, delimiter, contents.String(), prefixes.String())
}

func newTestProvider(t *testing.T, objects ...string) (*Provider, *fakeBucket) {
	t.Helper()
	return newTestProviderTimeout(t, 5*time.Second, objects...)
}

func newTestProviderTimeout(t *testing.T, timeout time.Duration, objects ...string) (*Provider, *fakeBucket) {
	t.Helper()
	b := &fakeBucket{objects: map[string][]byte{}, calls: map[string]int{}}
	for _, o := range objects {
		b.objects[o] = []byte("x")
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	client, auth, err := newClient(context.Background(), config.S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "ak",
		SecretKey: "sk",
	}, timeout)
	require.NoError(t, err)
	assert.Equal(t, "static", auth)
	return New(client, "bkt"), b
}

func TestExists(t *testing.T) {
	p, _ := newTestProvider(t, "mc/backups/a", "mc/backups/sub/x")
	ctx := context.Background()

	ok, err := p.Exists(ctx, "app:/mc/backups/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(ctx, "app:/mc/backups")
	require.NoError(t, err)
	assert.True(t, ok, "prefix counts as a directory")

	ok, err = p.Exists(ctx, "app:/other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAndRemove(t *testing.T) {
	p, b := newTestProvider(t, "mc/backups/", "mc/backups/a", "mc/backups/b", "mc/backups/sub/x", "mc/other")
	ctx := context.Background()

	var files, dirs []string
	for e, err := range p.List(ctx, "app:/mc/backups") {
		require.NoError(t, err)
		if e.Type == provider.TypeDir {
			dirs = append(dirs, e.Name)
		} else {
			files = append(files, e.Name)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b"}, files)
	assert.Equal(t, []string{"sub"}, dirs)

	require.NoError(t, p.Remove(ctx, "app:/mc/backups/a"))
	assert.NotContains(t, b.objects, "mc/backups/a")
}

func TestMkdir(t *testing.T) {
	p, b := newTestProvider(t, "mc/backups/a")
	ctx := context.Background()

	require.NoError(t, p.Mkdir(ctx, "app:/mc/new"))
	assert.Contains(t, b.objects, "mc/new/")
	assert.Empty(t, b.objects["mc/new/"])

	err := p.Mkdir(ctx, "app:/mc/new")
	assert.ErrorIs(t, err, provider.ErrAlreadyExists)

	err = p.Mkdir(ctx, "app:/mc/backups")
	assert.ErrorIs(t, err, provider.ErrAlreadyExists, "implicit prefix is a directory")
}

func TestUpload_UnseekableBody(t *testing.T) {
	p, b := newTestProvider(t)

	body := progress.NewReader(strings.NewReader("payload"), 7, nil)
	require.NoError(t, p.Upload(context.Background(), body, 7, "app:/mc/backups/a"))

	assert.Equal(t, []byte("payload"), b.objects["mc/backups/a"])
	read, total := body.Progress()
	assert.Equal(t, int64(7), read)
	assert.Equal(t, int64(7), total)
}

// slowReader hands out one byte per read after a delay.
type slowReader struct {
	data  []byte
	delay time.Duration
}

func (s *slowReader) Read(b []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	time.Sleep(s.delay)
	if len(b) == 0 {
		return 0, nil
	}
	b[0] = s.data[0]
	s.data = s.data[1:]
	return 1, nil
}

func TestUpload_OutlastsHTTPTimeout(t *testing.T) {
	p, b := newTestProviderTimeout(t, 100*time.Millisecond)

	body := &slowReader{data: []byte("slowpoke"), delay: 40 * time.Millisecond}
	require.NoError(t, p.Upload(context.Background(), body, 8, "app:/mc/backups/slow"))
	assert.Equal(t, []byte("slowpoke"), b.objects["mc/backups/slow"])
}

func TestUpload_FailureIsNotRetried(t *testing.T) {
	p, b := newTestProvider(t)
	b.failPut = true

	err := p.Upload(context.Background(), strings.NewReader("payload"), 7, "app:/mc/backups/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put")
	assert.Equal(t, 1, b.calls[http.MethodPut])
	assert.NotContains(t, b.objects, "mc/backups/a")
}

func TestUpload_ContextCancelled(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := progress.NewReader(strings.NewReader("payload"), 7, nil)
	err := p.Upload(ctx, body, 7, "app:/mc/backups/a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "mc/backups", objectKey("app:/mc/backups/"))
	assert.Equal(t, "x", objectKey("/x"))
	assert.Equal(t, "", objectKey("disk:/"))
}

func TestMapError(t *testing.T) {
	notFound := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
	assert.ErrorIs(t, mapError(notFound), provider.ErrNotFound)

	denied := &smithy.GenericAPIError{Code: "AccessDenied"}
	assert.ErrorIs(t, mapError(denied), provider.ErrUnauthorized)

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, plain, mapError(plain))
}
