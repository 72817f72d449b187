package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSON(t *testing.T) {
	var gotPath, gotAuth, gotForward string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotForward = r.Header.Get("Upstash-Forward-X-Business")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageId":"msg_123"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL + "/", Token: "tok"})
	require.NoError(t, err)

	id, err := client.PublishJSON(context.Background(), "https://workflows.example.com/appointments",
		map[string]string{"customer_name": "Ana"}, map[string]string{"X-Business": "coastal-bites"})
	require.NoError(t, err)

	assert.Equal(t, "msg_123", id)
	assert.Equal(t, "/v2/publish/https://workflows.example.com/appointments", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "coastal-bites", gotForward)
	assert.Equal(t, "Ana", gotBody["customer_name"])
}

func TestPublishJSONRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, Token: "bad"})
	require.NoError(t, err)
	_, err = client.PublishJSON(context.Background(), "https://example.com/hook", map[string]any{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPublishRejected))
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Config{URL: "https://qstash.upstash.io"})
	require.Error(t, err)

	_, err = NewClient(Config{URL: "://bad", Token: "x"})
	require.Error(t, err)
}
