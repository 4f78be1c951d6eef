package webcontext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetch_EmptyAPIKeyNeverCallsNetwork(t *testing.T) {
	f := New("", "http://unreachable.invalid")
	got := f.Fetch(context.Background(), "anything")
	assert.Equal(t, "", got)
}

func TestFetch_ReturnsSnippetsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organic":[{"snippet":"first fact"},{"snippet":"second fact"}]}`))
	}))
	defer srv.Close()

	f := New("test-key", srv.URL)
	got := f.Fetch(context.Background(), "query")
	assert.Contains(t, got, "first fact")
	assert.Contains(t, got, "second fact")
}

func TestFetch_NeverFailsOnProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New("test-key", srv.URL)
	got := f.Fetch(context.Background(), "query")
	assert.Equal(t, "", got)
}

func TestFetch_EmptySnippetsReturnsEmptyString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	f := New("test-key", srv.URL)
	got := f.Fetch(context.Background(), "query")
	assert.Equal(t, "", got)
}
