package slackapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(logger, server.URL, "client-id", "client-secret", server.Client())
}

func TestClient_PostMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("OK", func(t *testing.T) {
		var gotAuth string
		var gotReq postMessageRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/chat.postMessage", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		})

		err := client.PostMessage(ctx, "xoxe-token", "C123", "hello")
		require.NoError(t, err)
		assert.Equal(t, "Bearer xoxe-token", gotAuth)
		assert.Equal(t, "C123", gotReq.Channel)
		assert.Equal(t, "hello", gotReq.Text)
	})

	t.Run("SlackError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
		})

		err := client.PostMessage(ctx, "xoxe-token", "C404", "hello")
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "channel_not_found", apiErr.Code)
		assert.Contains(t, err.Error(), "chat.postMessage")
	})

	t.Run("Non2xxStatus", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		err := client.PostMessage(ctx, "xoxe-token", "C123", "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestClient_RefreshAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("OK", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/oauth.v2.access", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "xoxe-refresh-1", r.PostForm.Get("refresh_token"))
			assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
			assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":            true,
				"access_token":  "xoxe-fresh",
				"refresh_token": "xoxe-refresh-2",
				"expires_in":    43200,
			})
		})

		token, err := client.RefreshAccessToken(ctx, "xoxe-refresh-1")
		require.NoError(t, err)
		assert.Equal(t, "xoxe-fresh", token.AccessToken)
		assert.Equal(t, "xoxe-refresh-2", token.RefreshToken)
		assert.Equal(t, 12*time.Hour, token.ExpiresIn)
	})

	t.Run("SlackError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_refresh_token"})
		})

		token, err := client.RefreshAccessToken(ctx, "xoxe-bad")
		require.Error(t, err)
		assert.Nil(t, token)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "invalid_refresh_token", apiErr.Code)
	})
}

func TestClient_AuthTest(t *testing.T) {
	ctx := context.Background()

	t.Run("OK", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/auth.test", r.URL.Path)
			assert.Equal(t, "Bearer xoxe-token", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		})

		require.NoError(t, client.AuthTest(ctx, "xoxe-token"))
	})

	t.Run("Revoked", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "token_revoked"})
		})

		err := client.AuthTest(ctx, "xoxe-dead")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "token_revoked", apiErr.Code)
	})
}
