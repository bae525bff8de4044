package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// APIError is a failure reported by Slack itself (ok:false in the response
// envelope). Transport-level failures are returned as ordinary wrapped errors.
type APIError struct {
	Method string // Slack API method, e.g. "chat.postMessage"
	Code   string // Slack error code, e.g. "channel_not_found"
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}

// TokenResponse is the useful subset of an oauth.v2.access response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string        // Empty if Slack did not rotate the refresh token
	ExpiresIn    time.Duration // Zero if Slack issued a non-expiring token
}

// Client is a minimal Slack Web API client covering the three methods the
// engine needs: posting a message, refreshing an access token, and probing
// token liveness. It never retries; retry policy belongs to callers.
type Client struct {
	logger       *slog.Logger
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

func NewClient(logger *slog.Logger, baseURL, clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		logger:       logger.With("component", "slack_client"),
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PostMessage posts text to a channel using the given bearer token. A
// Slack-reported failure comes back as *APIError.
func (c *Client) PostMessage(ctx context.Context, accessToken, channelID, text string) error {
	reqBody, err := json.Marshal(postMessageRequest{Channel: channelID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal chat.postMessage request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create chat.postMessage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	var envelope apiEnvelope
	if err := c.do(ctx, httpReq, "chat.postMessage", &envelope); err != nil {
		return err
	}
	if !envelope.OK {
		c.logger.WarnContext(ctx, "Slack rejected chat.postMessage", "slack_error", envelope.Error, "channel_id", channelID)
		return &APIError{Method: "chat.postMessage", Code: envelope.Error}
	}
	return nil
}

type refreshResponse struct {
	apiEnvelope
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshAccessToken exchanges a refresh token for a new access token via
// oauth.v2.access (grant_type=refresh_token).
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth.v2.access request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.do(ctx, httpReq, "oauth.v2.access", &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		c.logger.WarnContext(ctx, "Slack rejected token refresh", "slack_error", resp.Error)
		return nil, &APIError{Method: "oauth.v2.access", Code: resp.Error}
	}

	return &TokenResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// AuthTest probes whether the token is still accepted by Slack. Used by the
// connection-status endpoint, not by the delivery path.
func (c *Client) AuthTest(ctx context.Context, accessToken string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth.test", nil)
	if err != nil {
		return fmt.Errorf("failed to create auth.test request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	var envelope apiEnvelope
	if err := c.do(ctx, httpReq, "auth.test", &envelope); err != nil {
		return err
	}
	if !envelope.OK {
		return &APIError{Method: "auth.test", Code: envelope.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *http.Request, method string, out any) error {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Slack API request failed", "method", method, "error", err)
		return fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("slack %s: failed to read response body (status %d): %w", method, httpResp.StatusCode, err)
	}

	// Slack returns 200 with ok:false for method-level errors; anything
	// else is a transport/gateway problem.
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "Slack API returned non-2xx status", "method", method, "status_code", httpResp.StatusCode)
		return fmt.Errorf("slack %s: unexpected status %d", method, httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("slack %s: failed to decode response: %w", method, err)
	}
	return nil
}
