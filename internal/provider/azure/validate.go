package azure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// checkContainer verifies access using a minimal list (SAS sr=c cannot create containers).
func (p *AzureProvider) checkContainer(ctx context.Context) error {
	pager := p.client.NewListBlobsFlatPager(p.container, &azblob.ListBlobsFlatOptions{
		MaxResults: to.Ptr(int32(1)),
	})
	if !pager.More() {
		return nil
	}
	if _, err := pager.NextPage(ctx); err != nil {
		return mapError(err)
	}
	log.Debug().Str("action", "azure_container_check").Str("container", p.container).Msg("container access OK")
	return nil
}

// hasPrefix reports whether at least one blob lives under prefix.
func (p *AzureProvider) hasPrefix(ctx context.Context, prefix string) (bool, error) {
	pager := p.client.NewListBlobsFlatPager(p.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(int32(1)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, mapError(err)
		}
		if len(page.Segment.BlobItems) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// mapError translates storage error codes into the shared provider sentinels.
func mapError(err error) error {
	var re *azcore.ResponseError
	if !errors.As(err, &re) {
		return err
	}
	switch re.ErrorCode {
	case string(bloberror.ContainerNotFound):
		return fmt.Errorf("%w: container (create it first, a container SAS cannot): %w", provider.ErrNotFound, err)
	case string(bloberror.BlobNotFound):
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case string(bloberror.AuthorizationFailure),
		string(bloberror.AuthorizationPermissionMismatch),
		string(bloberror.AuthenticationFailed):
		return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	case string(bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	}
	return err
}
