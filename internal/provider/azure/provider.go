package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// AzureProvider maps remote paths onto blob keys of one container.
// Directories are virtual: they exist while at least one blob sits below them.
type AzureProvider struct {
	client    *azblob.Client
	container string
}

// New wraps an existing blob client.
func New(client *azblob.Client, container string) *AzureProvider {
	return &AzureProvider{client: client, container: container}
}

func (p *AzureProvider) Name() string { return "azure" }

// Exists checks the exact blob first, then the virtual directory prefix.
func (p *AzureProvider) Exists(ctx context.Context, path string) (bool, error) {
	key := normalizeKey(path)
	if key == "" {
		if err := p.checkContainer(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	_, err := p.client.ServiceClient().NewContainerClient(p.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if err = mapError(err); !errors.Is(err, provider.ErrNotFound) {
		return false, err
	}
	return p.hasPrefix(ctx, key+"/")
}

// Mkdir is a no-op for virtual directories beyond the existence check.
func (p *AzureProvider) Mkdir(ctx context.Context, path string) error {
	ok, err := p.Exists(ctx, path)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("azure mkdir %q: %w", path, provider.ErrAlreadyExists)
	}
	log.Debug().Str("action", "azure_mkdir").Str("container", p.container).Str("path", path).
		Msg("virtual directory, nothing to create")
	return nil
}

// List walks one level of the blob hierarchy below path.
func (p *AzureProvider) List(ctx context.Context, path string) iter.Seq2[provider.Entry, error] {
	return func(yield func(provider.Entry, error) bool) {
		prefix := dirPrefix(path)
		pager := p.client.ServiceClient().NewContainerClient(p.container).
			NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: to.Ptr(prefix)})

		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(provider.Entry{}, mapError(err))
				return
			}
			for _, bp := range page.Segment.BlobPrefixes {
				if bp.Name == nil {
					continue
				}
				name := strings.TrimSuffix(strings.TrimPrefix(*bp.Name, prefix), "/")
				if !yield(provider.Entry{Name: name, Type: provider.TypeDir}, nil) {
					return
				}
			}
			for _, it := range page.Segment.BlobItems {
				if it.Name == nil {
					continue
				}
				if !yield(provider.Entry{Name: strings.TrimPrefix(*it.Name, prefix), Type: provider.TypeFile}, nil) {
					return
				}
			}
		}
	}
}

// Remove deletes the blob together with its snapshots.
func (p *AzureProvider) Remove(ctx context.Context, path string) error {
	key := normalizeKey(path)
	_, err := p.client.DeleteBlob(ctx, p.container, key, &azblob.DeleteBlobOptions{
		DeleteSnapshots: to.Ptr(azblob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil {
		return fmt.Errorf("azure delete %q: %w", key, mapError(err))
	}
	return nil
}

// Upload streams the body into a block blob, replacing any previous content.
func (p *AzureProvider) Upload(ctx context.Context, r io.Reader, size int64, path string) error {
	key := normalizeKey(path)
	start := time.Now()
	if _, err := p.client.UploadStream(ctx, p.container, key, r, nil); err != nil {
		return fmt.Errorf("azure upload %q: %w", key, mapError(err))
	}
	log.Debug().Str("action", "azure_upload").Str("container", p.container).Str("key", key).
		Int64("size", size).Dur("elapsed_ms", time.Since(start)).Msg("upload OK")
	return nil
}

func (p *AzureProvider) Close() error { return nil }

// normalizeKey drops a backend scheme ("app:/", "disk:/") and leading slashes.
func normalizeKey(k string) string {
	if i := strings.Index(k, ":/"); i >= 0 {
		k = k[i+2:]
	}
	return strings.Trim(k, "/")
}

func dirPrefix(path string) string {
	key := normalizeKey(path)
	if key == "" {
		return ""
	}
	return key + "/"
}
