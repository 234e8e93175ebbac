package yadisk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/imroc/req/v3"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/retry"
)

// listPageSize bounds a single listing request.
const listPageSize = 100

// Provider is a Yandex.Disk session.
type Provider struct {
	client *req.Client
	upload *http.Client
	poll   retry.Options

	mu sync.Mutex
	// removed counts deletions per parent directory so an in-flight listing
	// can shift its offset past entries that no longer exist.
	removed map[string]int
}

// Link is the API's pointer to a follow-up request (upload URL, async operation).
type Link struct {
	Href      string `json:"href"`
	Method    string `json:"method"`
	Templated bool   `json:"templated"`
}

type resource struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Embedded *struct {
		Items []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"items"`
		Total int `json:"total"`
	} `json:"_embedded"`
}

type operationStatus struct {
	Status string `json:"status"`
}

func (p *Provider) Name() string { return "yadisk" }

// Exists reports whether a resource is present at path.
func (p *Provider) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"path": path, "fields": "name,type"}).
		Get("/resources")
	if err := handleAPIError(resp, err, "exists"); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Mkdir creates a folder; 409 means it is already there.
func (p *Provider) Mkdir(ctx context.Context, path string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Put("/resources")
	if err := handleAPIError(resp, err, "mkdir"); err != nil {
		return err
	}
	log.Debug().Str("action", "yadisk_mkdir").Str("path", path).Msg("folder created")
	return nil
}

// List pages through the folder's children.
func (p *Provider) List(ctx context.Context, path string) iter.Seq2[provider.Entry, error] {
	return func(yield func(provider.Entry, error) bool) {
		dir := strings.TrimRight(path, "/")
		removedAtStart := p.removedUnder(dir)
		seen := 0

		for {
			offset := seen - (p.removedUnder(dir) - removedAtStart)
			var page resource
			resp, err := p.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"path":   path,
					"limit":  strconv.Itoa(listPageSize),
					"offset": strconv.Itoa(offset),
					"sort":   "name",
					"fields": "_embedded.items.name,_embedded.items.type,_embedded.total",
				}).
				SetSuccessResult(&page).
				Get("/resources")
			if err := handleAPIError(resp, err, "list"); err != nil {
				yield(provider.Entry{}, err)
				return
			}
			if page.Embedded == nil {
				return
			}

			for _, it := range page.Embedded.Items {
				if !yield(provider.Entry{Name: it.Name, Type: entryType(it.Type)}, nil) {
					return
				}
			}
			seen += len(page.Embedded.Items)
			if len(page.Embedded.Items) < listPageSize {
				return
			}
		}
	}
}

// Remove deletes permanently. Large deletions complete asynchronously and are polled.
func (p *Provider) Remove(ctx context.Context, path string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"path": path, "permanently": "true"}).
		Delete("/resources")
	if err := handleAPIError(resp, err, "remove"); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusAccepted {
		var op Link
		if err := resp.UnmarshalJson(&op); err != nil {
			return fmt.Errorf("yadisk remove: decode operation link: %w", err)
		}
		if err := p.waitOperation(ctx, op.Href); err != nil {
			return fmt.Errorf("yadisk remove: %w", err)
		}
	}

	p.mu.Lock()
	p.removed[parentDir(path)]++
	p.mu.Unlock()
	return nil
}

// Upload requests an upload URL and streams the body to it.
func (p *Provider) Upload(ctx context.Context, r io.Reader, size int64, path string) error {
	var link Link
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"path": path, "overwrite": "true"}).
		SetSuccessResult(&link).
		Get("/resources/upload")
	if err := handleAPIError(resp, err, "upload link"); err != nil {
		return err
	}
	if link.Href == "" {
		return fmt.Errorf("yadisk upload link: empty href for %q", path)
	}

	method := link.Method
	if method == "" {
		method = http.MethodPut
	}
	body := r
	if size == 0 {
		body = http.NoBody
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, link.Href, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.ContentLength = size
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	httpResp, err := p.upload.Do(httpReq)
	if err != nil {
		return fmt.Errorf("yadisk upload %q: %w", path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	switch httpResp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 1024))
		return fmt.Errorf("yadisk upload %q: %w", path, &APIError{StatusCode: httpResp.StatusCode, Message: httpResp.Status})
	}
}

// Close drops idle connections of both clients.
func (p *Provider) Close() error {
	p.client.GetClient().CloseIdleConnections()
	p.upload.CloseIdleConnections()
	return nil
}

// waitOperation polls an asynchronous operation until it leaves "in-progress".
func (p *Provider) waitOperation(ctx context.Context, href string) error {
	attempt := 0
	return retry.Until(ctx, p.poll, func(ctx context.Context) (bool, error) {
		attempt++
		var st operationStatus
		resp, err := p.client.R().
			SetContext(ctx).
			SetSuccessResult(&st).
			Get(href)
		if err := handleAPIError(resp, err, "operation status"); err != nil {
			return false, err
		}
		log.Debug().Str("action", "yadisk_operation").Str("status", st.Status).
			Int("attempt", attempt).Msg("operation status")

		switch st.Status {
		case "success":
			return true, nil
		case "failed":
			return false, fmt.Errorf("operation failed: %s", href)
		default:
			return false, nil
		}
	})
}

func (p *Provider) removedUnder(dir string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removed[dir]
}

func parentDir(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return strings.TrimRight(path[:i], "/")
	}
	return ""
}

func entryType(t string) provider.EntryType {
	if t == "dir" {
		return provider.TypeDir
	}
	return provider.TypeFile
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
