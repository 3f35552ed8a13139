package landing

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/dunamismax/usageland/internal/domain"
	"github.com/dunamismax/usageland/internal/storage"
)

const (
	DefaultPrefix = "raw/product_usage"

	contentTypeJSON = "application/json"
)

type Publisher struct {
	Storage storage.ObjectWriter
	Prefix  string
}

// ObjectKey is the blob path a day's payload lands at.
func ObjectKey(prefix string, date domain.Date) string {
	return path.Join(defaultPrefix(prefix), date.String()+".json")
}

func (p Publisher) Publish(ctx context.Context, record domain.UsageRecord) (string, error) {
	if p.Storage == nil {
		return "", errors.New("storage writer is required")
	}
	if record.Date.IsZero() {
		return "", errors.New("usage record date is required")
	}

	objectKey := ObjectKey(p.Prefix, record.Date)
	if err := p.Storage.WriteObject(ctx, objectKey, []byte(record.Payload), contentTypeJSON); err != nil {
		return "", err
	}
	return objectKey, nil
}

func defaultPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
