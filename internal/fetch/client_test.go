package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestClientGetSetsHeaders(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil, slog.Default())

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Contains(t, gotLang, "tr-TR")
}

func TestClientRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil, slog.Default())

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	client := NewClient(cfg, nil, slog.Default())

	_, err := client.Get(context.Background(), server.URL, nil)
	assert.Error(t, err)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil, slog.Default())

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientExtraHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil, slog.Default())

	_, err := client.Get(context.Background(), server.URL, &RequestOptions{
		Headers: map[string]string{"Authorization": "Basic abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Basic abc", gotAuth)
}

func TestResolveRedirect(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("final"))
	}))
	defer target.Close()

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/urun-p-123456", http.StatusMovedPermanently)
	}))
	defer short.Close()

	client := NewClient(testConfig(), nil, slog.Default())

	finalURL, err := client.ResolveRedirect(context.Background(), short.URL)
	require.NoError(t, err)
	assert.Equal(t, target.URL+"/urun-p-123456", finalURL)
}
