package usage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/usageland/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsDateAndBearerToken(t *testing.T) {
	var (
		gotPath  string
		gotDate  string
		gotAuth  string
		gotQuery string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 5}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret-token"})
	require.NoError(t, err)

	record, err := client.Fetch(context.Background(), domain.NewDate(2024, time.January, 1))
	require.NoError(t, err)

	assert.Equal(t, "/usage", gotPath)
	assert.Equal(t, "2024-01-01", gotDate)
	assert.Equal(t, "date=2024-01-01", gotQuery)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "2024-01-01", record.Date.String())
	assert.JSONEq(t, `{"count": 5}`, string(record.Payload))
}

func TestFetchNonOKNamesDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-05-03")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestFetchTreatsNonOKSuccessCodesAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNoContent, statusErr.StatusCode)
}

func TestFetchRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 3, InitialBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "2024-05-03")
}

func TestFetchDefaultsToSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesServerErrorsWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"count": 1}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:        srv.URL,
		Token:          "t",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	require.NoError(t, err)

	record, err := client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 1}`, string(record.Payload))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 5, InitialBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.NewDate(2024, time.May, 3))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Fetch(ctx, domain.NewDate(2024, time.May, 3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "2024-05-03")
}

func TestFetchCancelledDuringBackoffNamesDate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 3, InitialBackoff: time.Minute})
	require.NoError(t, err)

	_, err = client.Fetch(ctx, domain.NewDate(2024, time.May, 4))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "2024-05-04")
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://api.example.com"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not-a-url", Token: "t"})
	assert.Error(t, err)

	client, err := NewClient(Config{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.product.com/usage", client.Endpoint())

	client, err = NewClient(Config{BaseURL: "https://api.example.com/v2/", Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v2/usage", client.Endpoint())
}
