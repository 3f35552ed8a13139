package storage

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverAzure = "azure"
	DriverMinio = "minio"
	DriverFile  = "file"
	DriverMem   = "mem"

	DefaultContainer = "datalake"
)

// ObjectWriter stores payloads under a key, replacing whatever was there.
type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	Close() error
}

type Config struct {
	Driver           string
	ConnectionString string
	Container        string
	LocalDir         string

	Endpoint string
	Access   string
	Secret   string
	Region   string
	UseSSL   bool
}

// Open returns a writer for the configured driver. Callers hold it for the
// whole run and close it once.
func Open(ctx context.Context, cfg Config) (ObjectWriter, error) {
	container := strings.TrimSpace(cfg.Container)
	if container == "" {
		container = DefaultContainer
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverAzure:
		return OpenAzureBucket(ctx, cfg.ConnectionString, container)
	case DriverMinio:
		client, err := NewMinioClient(MinioConfig{
			Endpoint: cfg.Endpoint,
			Access:   cfg.Access,
			Secret:   cfg.Secret,
			Bucket:   container,
			Region:   cfg.Region,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case DriverFile:
		return OpenFileBucket(cfg.LocalDir)
	case DriverMem:
		return OpenMemBucket(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
