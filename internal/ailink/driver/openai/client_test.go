package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/content"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver"
)

func systemRequest(text string) *driver.Request {
	return &driver.Request{
		Model:    "deepseek-chat",
		Messages: []content.Message{content.Text(content.RoleSystem, text)},
	}
}

func TestClientDefaults(t *testing.T) {
	client := NewClient("  ", " key ")
	require.Equal(t, "https://api.deepseek.com", client.BaseURL)
	require.Equal(t, "key", client.APIKey)
	require.Equal(t, "openai", client.Name())
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Complete(context.Background(), systemRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientRequiresModelAndMessages(t *testing.T) {
	client := NewClient("", "test-key")

	_, err := client.Complete(context.Background(), &driver.Request{Messages: []content.Message{content.Text(content.RoleSystem, "hi")}})
	require.ErrorContains(t, err, "model")

	_, err = client.Complete(context.Background(), &driver.Request{Model: "m"})
	require.ErrorContains(t, err, "messages")
}

func TestClientSendsSingleSystemMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "deepseek-chat", payload.Model)
		require.False(t, payload.Stream)
		require.Len(t, payload.Messages, 1)
		require.Equal(t, "system", payload.Messages[0].Role)
		require.Equal(t, "what is go?", payload.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A language."},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	resp, err := client.Complete(context.Background(), systemRequest("what is go?"))
	require.NoError(t, err)
	require.Equal(t, "A language.", resp.Text())
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 3, resp.Usage.TotalTokens)
	require.NotEmpty(t, resp.Raw)
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), systemRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")

	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, `{"error":{"message":"invalid key"}}`, string(perr.RawBody()))
}

func TestClientMalformedBodyKeepsRaw(t *testing.T) {
	cases := map[string]string{
		"not json":   `<html>gateway</html>`,
		"no choices": `{"choices":[]}`,
		"no content": `{"choices":[{"message":{"role":"assistant"}}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key")
			client.HTTPClient = server.Client()

			_, err := client.Complete(context.Background(), systemRequest("hi"))
			var perr *driver.ProviderError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, body, string(perr.RawBody()))
		})
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()
	client.Timeout = 50 * time.Millisecond

	_, err := client.Complete(context.Background(), systemRequest("hi"))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
