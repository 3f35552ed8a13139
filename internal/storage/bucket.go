package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
)

// Bucket adapts a portable gocloud bucket to ObjectWriter.
type Bucket struct {
	bucket *blob.Bucket
}

func NewBucket(b *blob.Bucket) *Bucket {
	return &Bucket{bucket: b}
}

func OpenAzureBucket(ctx context.Context, connectionString, containerName string) (*Bucket, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, errors.New("azure storage connection string is required")
	}

	client, err := container.NewClientFromConnectionString(connectionString, containerName, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure container client: %w", err)
	}

	b, err := azureblob.OpenBucket(ctx, client, nil)
	if err != nil {
		return nil, fmt.Errorf("open azure container %s: %w", containerName, err)
	}
	return NewBucket(b), nil
}

func OpenFileBucket(dir string) (*Bucket, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage directory is required")
	}

	b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open local bucket %s: %w", dir, err)
	}
	return NewBucket(b), nil
}

func OpenMemBucket() *Bucket {
	return NewBucket(memblob.OpenBucket(nil))
}

func (b *Bucket) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if err := b.bucket.WriteAll(ctx, objectKey, data, &blob.WriterOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (b *Bucket) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	return data, nil
}

func (b *Bucket) Close() error {
	return b.bucket.Close()
}
