package storage

import (
	"context"
	"fmt"

	"tracker/pkg/exception"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/yanun0323/errors"
)

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureBlob writes objects as block blobs into one container.
type AzureBlob struct {
	client    blobUploader
	container string
}

// NewAzureBlob authenticates with the connection string when set, otherwise
// with the account shared key.
func NewAzureBlob(cfg Config) (*AzureBlob, error) {
	if cfg.Namespace == "" {
		return nil, errors.Wrap(exception.ErrStorageEmptyNamespace, "azure container")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.AzureConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.AzureConnectionString, nil)
		if err != nil {
			return nil, errors.Wrap(err, "create azure blob client from connection string")
		}
	case cfg.AzureAccountName != "" && cfg.AzureAccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, errors.Wrap(err, "create azure shared key credential")
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccountName)
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, errors.Wrap(err, "create azure blob client")
		}
	default:
		return nil, errors.Wrap(exception.ErrInvalidArgument, "azure credentials are not set")
	}

	return &AzureBlob{client: client, container: cfg.Namespace}, nil
}

func (a *AzureBlob) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	contentType := ContentType
	_, err := a.client.UploadBuffer(ctx, a.container, key, value, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s/%s", a.container, key)
	}
	return nil
}

func (a *AzureBlob) Close() error {
	return nil
}
