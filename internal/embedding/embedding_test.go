package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProvider_AlwaysFails(t *testing.T) {
	p := NewNoopProvider(1024)
	_, err := p.Embed(context.Background(), "anything")
	assert.True(t, errors.Is(err, ErrNoProvider))
	assert.Equal(t, 1024, p.Dimensions())
}

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "model", 10)
	assert.Error(t, err)
}

func TestOllamaProvider_EmbedParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "mxbai-embed-large", 3)
	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaProvider_EmptyEmbeddingErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "mxbai-embed-large", 3)
	_, err := p.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestTruncateText_TruncatesLongInput(t *testing.T) {
	long := make([]rune, defaultMaxInputChars+100)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateText(string(long), defaultMaxInputChars)
	assert.Len(t, []rune(got), defaultMaxInputChars)
}
