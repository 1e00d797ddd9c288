package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points the API client at a stub embeddings endpoint that
// always returns vector.
func newTestClient(t *testing.T, dim int, vector []float32) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	client := NewClient("test-key", "text-embedding-3-small", dim, nil)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client.api = openai.NewClientWithConfig(cfg)
	return client
}

func TestEmbedReturnsVector(t *testing.T) {
	client := newTestClient(t, 4, []float32{0.1, 0.2, 0.3, 0.4})

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	// The service returns 6 dimensions but storage is declared with 4. A
	// mismatched vector would fail every remote insert, so Embed must
	// refuse it up front.
	client := newTestClient(t, 4, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	vec, err := client.Embed(context.Background(), "hello world")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Nil(t, vec)
}

func TestEmbedWithoutAPIKey(t *testing.T) {
	client := NewClient("", "text-embedding-3-small", 4, nil)

	_, err := client.Embed(context.Background(), "hello world")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
