package landing

import (
	"context"
	"testing"
	"time"

	"github.com/dunamismax/usageland/internal/domain"
	"github.com/dunamismax/usageland/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	d := domain.NewDate(2024, time.January, 1)

	assert.Equal(t, "raw/product_usage/2024-01-01.json", ObjectKey("", d))
	assert.Equal(t, "raw/product_usage/2024-01-01.json", ObjectKey("/raw/product_usage/", d))
	assert.Equal(t, "staging/usage/2024-01-01.json", ObjectKey("staging/usage", d))
}

func TestPublishWritesPayloadAsIs(t *testing.T) {
	ctx := context.Background()
	bucket := storage.OpenMemBucket()
	defer bucket.Close()

	p := Publisher{Storage: bucket}
	key, err := p.Publish(ctx, domain.UsageRecord{
		Date:    domain.NewDate(2024, time.January, 1),
		Payload: []byte(`{"count": 5}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "raw/product_usage/2024-01-01.json", key)

	data, err := bucket.ReadObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"count": 5}`, string(data))
}

func TestPublishRequiresDateAndStorage(t *testing.T) {
	_, err := Publisher{}.Publish(context.Background(), domain.UsageRecord{Date: domain.NewDate(2024, time.January, 1)})
	assert.Error(t, err)

	_, err = Publisher{Storage: storage.OpenMemBucket()}.Publish(context.Background(), domain.UsageRecord{})
	assert.Error(t, err)
}
