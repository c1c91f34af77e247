package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// azureTarget implements Target for Azure Blob Storage.
type azureTarget struct {
	client          *azblob.Client
	containerName   string
	prefix          string
	encryptionScope string
	name            string
}

// newAzureTarget constructs an Azure Blob Storage-backed Target.
func newAzureTarget(cfg Config) (Target, error) {
	if cfg.StorageAccount == "" || cfg.ContainerName == "" {
		return nil, errors.New("azure target requires storage_account and container_name")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.StorageAccount)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure blob client: %w", err)
	}

	return &azureTarget{
		client:          client,
		containerName:   cfg.ContainerName,
		prefix:          normalizePrefix(cfg.Prefix),
		encryptionScope: cfg.EncryptionScope,
		name:            cfg.Name,
	}, nil
}

func (t *azureTarget) Name() string {
	return t.name
}

func (t *azureTarget) fullKey(key string) string {
	return t.prefix + key
}

func (t *azureTarget) uploadOptions(opts PutOptions) *blockblob.UploadBufferOptions {
	uploadOpts := &blockblob.UploadBufferOptions{}

	if opts.ContentType != "" {
		ct := opts.ContentType
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &ct}
	}
	if len(opts.Metadata) > 0 {
		m := make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			v := v
			m[k] = &v
		}
		uploadOpts.Metadata = m
	}
	if t.encryptionScope != "" {
		scope := t.encryptionScope
		uploadOpts.CPKScopeInfo = &blob.CPKScopeInfo{EncryptionScope: &scope}
	}
	return uploadOpts
}

func (t *azureTarget) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	_, err := t.client.UploadBuffer(ctx, t.containerName, t.fullKey(key), data, t.uploadOptions(opts))
	if err != nil {
		return fmt.Errorf("azure UploadBuffer %q: %w", key, err)
	}
	return nil
}

func (t *azureTarget) PutIfAbsent(ctx context.Context, key string, data []byte, opts PutOptions) error {
	uploadOpts := t.uploadOptions(opts)
	star := azcore.ETagAny
	uploadOpts.AccessConditions = &blob.AccessConditions{
		ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &star},
	}

	_, err := t.client.UploadBuffer(ctx, t.containerName, t.fullKey(key), data, uploadOpts)
	if err != nil {
		if isAzureConflict(err) {
			return ErrExists
		}
		return fmt.Errorf("azure UploadBuffer (if-none-match) %q: %w", key, err)
	}
	return nil
}

func (t *azureTarget) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := t.client.DownloadStream(ctx, t.containerName, t.fullKey(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azure DownloadStream %q: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure read %q: %w", key, err)
	}
	return data, nil
}

func (t *azureTarget) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := t.client.ServiceClient().NewContainerClient(t.containerName).NewBlobClient(t.fullKey(key))
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("azure GetProperties %q: %w", key, err)
	}
	return true, nil
}

func (t *azureTarget) Delete(ctx context.Context, key string) error {
	if _, err := t.client.DeleteBlob(ctx, t.containerName, t.fullKey(key), nil); err != nil {
		if isAzureNotFound(err) {
			return nil
		}
		return fmt.Errorf("azure DeleteBlob %q: %w", key, err)
	}
	return nil
}

func (t *azureTarget) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := t.fullKey(prefix)
	var keys []string

	pager := t.client.NewListBlobsFlatPager(t.containerName, &container.ListBlobsFlatOptions{
		Prefix: &fullPrefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure ListBlobsFlat prefix %q: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			keys = append(keys, strings.TrimPrefix(*item.Name, t.prefix))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// isAzureNotFound returns true if the Azure error indicates a 404.
func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

// isAzureConflict returns true when an If-None-Match upload hit an existing
// blob.
func isAzureConflict(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 409 || respErr.StatusCode == 412
	}
	return false
}
