package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqClient_GenerateContent(t *testing.T) {
	var got groqRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "llama-3.3-70b-versatile",
			"choices": [{"message": {"content": "{\"offerings\": []}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	c := NewGroqClient("test-key", WithGroqEndpoint(srv.URL))
	resp, err := c.GenerateContent(context.Background(), "be terse", "group these")
	require.NoError(t, err)

	assert.Equal(t, `{"offerings": []}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, "llama-3.3-70b-versatile", resp.Usage.Model)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "group these", got.Messages[1].Content)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestGroqClient_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewGroqClient("k", WithGroqEndpoint(srv.URL)).GenerateContent(context.Background(), "", "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}))
		defer srv.Close()

		_, err := NewGroqClient("k", WithGroqEndpoint(srv.URL)).GenerateContent(context.Background(), "", "p")
		assert.EqualError(t, err, "no content generated")
	})
}
