package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
)

type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

var _ service.BlobStore = (*CloudStorageClient)(nil)

func NewCloudStorageClient(ctx context.Context, bucketName string, credentialsPath string) (*CloudStorageClient, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	return &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// objectName keeps the original extension so downloads get a sensible name.
func objectName(folder, filename string) string {
	return fmt.Sprintf("%s/%s-%s%s", folder, uuid.New().String(), time.Now().UTC().Format("20060102150405"), path.Ext(filename))
}

func (c *CloudStorageClient) Put(ctx context.Context, file io.Reader, contentType, folder, filename string) (string, error) {
	name := objectName(folder, filename)

	wc := c.client.Bucket(c.bucketName).Object(name).NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "private, max-age=0"

	if _, err := io.Copy(wc, file); err != nil {
		wc.Close()
		return "", errors.Internal("Failed to upload attachment", err)
	}
	if err := wc.Close(); err != nil {
		return "", errors.Internal("Failed to upload attachment", err)
	}

	return name, nil
}

func (c *CloudStorageClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := c.client.Bucket(c.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, errors.NotFound("Attachment", err)
		}
		return nil, errors.Internal("Failed to read attachment", err)
	}
	return rc, nil
}

func (c *CloudStorageClient) Delete(ctx context.Context, key string) error {
	err := c.client.Bucket(c.bucketName).Object(key).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return errors.Internal("Failed to delete attachment", err)
	}
	return nil
}

// URL is empty: objects are private and streamed through the API.
func (c *CloudStorageClient) URL(string) string {
	return ""
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
