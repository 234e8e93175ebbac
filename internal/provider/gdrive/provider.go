package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	rootID         = "root"
	listPageSize   = 100
	fileFields     = "id,name,mimeType"
)

// ErrNoToken is returned when neither the config nor the auth provider supplied
// an OAuth access token.
var ErrNoToken = errors.New("gdrive: access token required")

// Provider resolves slash separated paths name by name from "My Drive".
type Provider struct {
	svc *drive.Service

	mu   sync.Mutex
	dirs map[string]string // path -> folder id
}

// New opens a Drive session with a static OAuth access token. Extra client
// options are appended, which lets tests point the service at a local server.
func New(ctx context.Context, accessToken string, opts ...option.ClientOption) (*Provider, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrNoToken
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	svc, err := drive.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: new service: %w", err)
	}
	return &Provider{svc: svc, dirs: map[string]string{"": rootID}}, nil
}

func init() {
	provider.Register("gdrive", func(cfg config.Config, token string) (provider.Provider, error) {
		if cfg.GDrive.AccessToken != "" {
			token = cfg.GDrive.AccessToken
		}
		p, err := New(context.Background(), token)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (p *Provider) Name() string { return "gdrive" }

func (p *Provider) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.resolve(ctx, path)
	if errors.Is(err, provider.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *Provider) Mkdir(ctx context.Context, path string) error {
	parent, name := split(path)
	parentID, err := p.dirID(ctx, parent)
	if err != nil {
		return fmt.Errorf("gdrive mkdir %q: %w", path, err)
	}
	if f, err := p.child(ctx, parentID, name); err != nil {
		return fmt.Errorf("gdrive mkdir %q: %w", path, err)
	} else if f != nil {
		return fmt.Errorf("gdrive mkdir %q: %w", path, provider.ErrAlreadyExists)
	}

	created, err := p.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gdrive mkdir %q: %w", path, mapError(err))
	}

	p.mu.Lock()
	p.dirs[clean(path)] = created.Id
	p.mu.Unlock()
	return nil
}

func (p *Provider) List(ctx context.Context, path string) iter.Seq2[provider.Entry, error] {
	return func(yield func(provider.Entry, error) bool) {
		id, err := p.dirID(ctx, path)
		if err != nil {
			yield(provider.Entry{}, fmt.Errorf("gdrive list %q: %w", path, err))
			return
		}

		pageToken := ""
		for {
			call := p.svc.Files.List().
				Q(fmt.Sprintf("'%s' in parents and trashed = false", id)).
				Fields("nextPageToken", "files("+fileFields+")").
				OrderBy("name").
				PageSize(listPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			res, err := call.Do()
			if err != nil {
				yield(provider.Entry{}, fmt.Errorf("gdrive list %q: %w", path, mapError(err)))
				return
			}
			for _, f := range res.Files {
				t := provider.TypeFile
				if f.MimeType == folderMimeType {
					t = provider.TypeDir
				}
				if !yield(provider.Entry{Name: f.Name, Type: t}, nil) {
					return
				}
			}
			if res.NextPageToken == "" {
				return
			}
			pageToken = res.NextPageToken
		}
	}
}

// Remove deletes permanently, bypassing the Drive trash.
func (p *Provider) Remove(ctx context.Context, path string) error {
	f, err := p.resolve(ctx, path)
	if err != nil {
		return fmt.Errorf("gdrive delete %q: %w", path, err)
	}
	if err := p.svc.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gdrive delete %q: %w", path, mapError(err))
	}
	p.mu.Lock()
	delete(p.dirs, clean(path))
	p.mu.Unlock()
	return nil
}

// Upload replaces the content of an existing file of the same name, so the
// folder never holds two entries with one name.
func (p *Provider) Upload(ctx context.Context, r io.Reader, size int64, path string) error {
	parent, name := split(path)
	parentID, err := p.dirID(ctx, parent)
	if err != nil {
		return fmt.Errorf("gdrive upload %q: %w", path, err)
	}
	existing, err := p.child(ctx, parentID, name)
	if err != nil {
		return fmt.Errorf("gdrive upload %q: %w", path, err)
	}

	if existing != nil {
		_, err = p.svc.Files.Update(existing.Id, &drive.File{}).Media(r).Fields(fileFields).Context(ctx).Do()
	} else {
		_, err = p.svc.Files.Create(&drive.File{Name: name, Parents: []string{parentID}}).
			Media(r).Fields(fileFields).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("gdrive upload %q: %w", path, mapError(err))
	}
	log.Debug().Str("action", "gdrive_upload").Str("path", path).Int64("size", size).
		Bool("replaced", existing != nil).Msg("upload OK")
	return nil
}

func (p *Provider) Close() error { return nil }

// resolve walks path from the root and returns the final item.
func (p *Provider) resolve(ctx context.Context, path string) (*drive.File, error) {
	path = clean(path)
	if path == "" {
		return &drive.File{Id: rootID, MimeType: folderMimeType}, nil
	}
	parent, name := split(path)
	parentID, err := p.dirID(ctx, parent)
	if err != nil {
		return nil, err
	}
	f, err := p.child(ctx, parentID, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%q: %w", path, provider.ErrNotFound)
	}
	return f, nil
}

// dirID resolves a folder path, caching every id it learns.
func (p *Provider) dirID(ctx context.Context, path string) (string, error) {
	path = clean(path)
	p.mu.Lock()
	id, ok := p.dirs[path]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	f, err := p.resolve(ctx, path)
	if err != nil {
		return "", err
	}
	if f.MimeType != folderMimeType {
		return "", fmt.Errorf("%q is not a folder: %w", path, provider.ErrNotFound)
	}
	p.mu.Lock()
	p.dirs[path] = f.Id
	p.mu.Unlock()
	return f.Id, nil
}

// child returns the item called name inside parentID, or nil.
func (p *Provider) child(ctx context.Context, parentID, name string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), parentID)
	res, err := p.svc.Files.List().Q(q).Fields("files(" + fileFields + ")").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	if len(res.Files) == 0 {
		return nil, nil
	}
	return res.Files[0], nil
}

// clean drops a backend scheme ("app:/", "disk:/") and surrounding slashes.
func clean(path string) string {
	if i := strings.Index(path, ":/"); i >= 0 {
		path = path[i+2:]
	}
	return strings.Trim(path, "/")
}

func split(path string) (parent, name string) {
	path = clean(path)
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func mapError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "storageQuotaExceeded" || item.Reason == "quotaExceeded" {
			return fmt.Errorf("%w: %w", provider.ErrQuotaExceeded, err)
		}
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	}
	return err
}
