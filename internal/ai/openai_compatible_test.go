package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/resilience"
)

func newTestClient(url string, exec *resilience.Executor) *OpenAICompatibleClient {
	return NewOpenAICompatibleClient(
		ChatConfig{BaseURL: url, APIKey: "sk-test", Model: "chat-model"},
		EmbeddingConfig{BaseURL: url + "/", APIKey: "sk-test", Model: "embed-model"},
		5*time.Second,
		exec,
	)
}

func TestCompleteSendsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chat-model", body.Model)
		assert.Len(t, body.Messages, 1)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  forty-two\n"}}]}`))
	}))
	defer srv.Close()

	answer, err := newTestClient(srv.URL, nil).Complete(context.Background(), []ChatMessage{{Role: "user", Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "  forty-two\n", answer)
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(srv.URL, nil).EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestRetriesServerErrorsButNotClientErrors(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte(`{"error":"busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	client := newTestClient(srv.URL, exec)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, vec)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	status.Store(http.StatusBadRequest)
	_, err = client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&ProviderError{StatusCode: 429}))
	assert.True(t, IsTransient(&ProviderError{StatusCode: 502}))
	assert.False(t, IsTransient(&ProviderError{StatusCode: 401}))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}
