package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog"
)

// AzureClient implements Client on the Azure Blob Storage SDK.
type AzureClient struct {
	client *azblob.Client
	logger zerolog.Logger
}

var _ Client = (*AzureClient)(nil)

// NewAzureClient authenticates against endpoint with the default Azure
// credential chain (environment, workload identity, managed identity, CLI).
func NewAzureClient(endpoint string, logger zerolog.Logger) (*AzureClient, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure default credential: %w", err)
	}
	client, err := azblob.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}
	return newAzureClient(client, logger), nil
}

// NewAzureClientFromConnectionString builds the client from a storage account
// connection string.
func NewAzureClientFromConnectionString(connectionString string, logger zerolog.Logger) (*AzureClient, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client from connection string: %w", err)
	}
	return newAzureClient(client, logger), nil
}

func newAzureClient(client *azblob.Client, logger zerolog.Logger) *AzureClient {
	return &AzureClient{
		client: client,
		logger: logger.With().Str("backend", "azure").Logger(),
	}
}

func (a *AzureClient) Name() string { return "azure" }

func (a *AzureClient) EnsureContainer(ctx context.Context, container string) error {
	_, err := a.client.CreateContainer(ctx, container, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create container %s: %w", container, err)
	}
	a.logger.Info().Str("container", container).Msg("created container")
	return nil
}

func (a *AzureClient) Upload(ctx context.Context, container, key string, r io.Reader, size int64, opts UploadOptions) (UploadResult, error) {
	uploadOpts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentTypeOrDefault(opts.ContentType)),
		},
	}
	if !opts.Overwrite {
		etagAny := azcore.ETagAny
		uploadOpts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &etagAny},
		}
	}

	resp, err := a.client.UploadStream(ctx, container, key, r, uploadOpts)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload blob %s/%s: %w", container, key, mapAzureError(err))
	}

	result := UploadResult{Size: size, VersionID: stringValue(resp.VersionID)}
	if resp.ETag != nil {
		result.ETag = normalizeETag(string(*resp.ETag))
	}
	return result, nil
}

func (a *AzureClient) Download(ctx context.Context, container, key string, w io.Writer) error {
	resp, err := a.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return fmt.Errorf("download blob %s/%s: %w", container, key, mapAzureError(err))
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read blob %s/%s: %w", container, key, err)
	}
	return nil
}

func (a *AzureClient) Delete(ctx context.Context, container, key string) error {
	_, err := a.client.DeleteBlob(ctx, container, key, nil)
	if err != nil {
		return fmt.Errorf("delete blob %s/%s: %w", container, key, mapAzureError(err))
	}
	return nil
}

func (a *AzureClient) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	listOpts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		listOpts.Prefix = &prefix
	}

	var objects []ObjectInfo
	pager := a.client.NewListBlobsFlatPager(container, listOpts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs %s: %w", container, mapAzureError(err))
		}
		for _, item := range page.Segment.BlobItems {
			info := ObjectInfo{Key: stringValue(item.Name)}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					info.Size = *props.ContentLength
				}
				if props.ETag != nil {
					info.ETag = normalizeETag(string(*props.ETag))
				}
				if props.LastModified != nil {
					info.LastModified = props.LastModified.UTC()
				}
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

func mapAzureError(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return ErrNotFound
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return ErrContainerNotFound
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet):
		return ErrAlreadyExists
	}
	return err
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

