package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/repkit/brochuresync/internal/syncerr"
)

// HTTPClient implements Gateway against the brochure sync HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewHTTPClient creates a gateway client for the given base URL and
// bearer token. A nil httpClient gets a 30 second timeout default.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
	}
}

// do performs one JSON request. Transport failures are classified as
// network-unavailable (retryable); any non-2xx status as
// server-rejected, except 404 which reports not-found. When out is
// non-nil the response body is decoded into it.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, syncerr.ErrNetworkUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, syncerr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d (%s): %w",
			method, path, resp.StatusCode, bytes.TrimSpace(msg), syncerr.ErrServerRejected)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

// CheckStatus implements Gateway.CheckStatus.
func (c *HTTPClient) CheckStatus(ctx context.Context, userID, docID string, localTS time.Time) (Status, error) {
	path := fmt.Sprintf("/v1/users/%s/documents/%s/status?local_ts=%s",
		url.PathEscape(userID), url.PathEscape(docID),
		url.QueryEscape(localTS.UTC().Format(time.RFC3339Nano)))

	var status Status
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// pushResponse carries the server timestamp assigned to an upsert.
type pushResponse struct {
	Timestamp time.Time `json:"timestamp"`
}

// Push implements Gateway.Push.
func (c *HTTPClient) Push(ctx context.Context, userID string, req PushRequest) (time.Time, error) {
	path := fmt.Sprintf("/v1/users/%s/documents/%s",
		url.PathEscape(userID), url.PathEscape(req.DocID))

	var resp pushResponse
	if err := c.do(ctx, http.MethodPut, path, req, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Timestamp, nil
}

// Pull implements Gateway.Pull.
func (c *HTTPClient) Pull(ctx context.Context, userID, docID string) (PullResult, error) {
	path := fmt.Sprintf("/v1/users/%s/documents/%s",
		url.PathEscape(userID), url.PathEscape(docID))

	var result PullResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return PullResult{}, err
	}
	return result, nil
}

// savedListResponse wraps the saved-list payload.
type savedListResponse struct {
	Items []SavedItem `json:"items"`
}

// ListSaved implements Gateway.ListSaved.
func (c *HTTPClient) ListSaved(ctx context.Context, userID string) ([]SavedItem, error) {
	path := fmt.Sprintf("/v1/users/%s/saved", url.PathEscape(userID))

	var resp savedListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// SaveItem implements Gateway.SaveItem.
func (c *HTTPClient) SaveItem(ctx context.Context, userID string, item SavedItem) error {
	path := fmt.Sprintf("/v1/users/%s/saved/%s",
		url.PathEscape(userID), url.PathEscape(item.BrochureID))
	return c.do(ctx, http.MethodPut, path, item, nil)
}

// RemoveItem implements Gateway.RemoveItem.
func (c *HTTPClient) RemoveItem(ctx context.Context, userID, brochureID string) error {
	path := fmt.Sprintf("/v1/users/%s/saved/%s",
		url.PathEscape(userID), url.PathEscape(brochureID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// renameRequest carries a saved-item rename.
type renameRequest struct {
	CustomTitle string `json:"custom_title"`
}

// RenameItem implements Gateway.RenameItem.
func (c *HTTPClient) RenameItem(ctx context.Context, userID, brochureID, customTitle string) error {
	path := fmt.Sprintf("/v1/users/%s/saved/%s/rename",
		url.PathEscape(userID), url.PathEscape(brochureID))
	return c.do(ctx, http.MethodPost, path, renameRequest{CustomTitle: customTitle}, nil)
}

// TouchAccess implements Gateway.TouchAccess.
func (c *HTTPClient) TouchAccess(ctx context.Context, userID, brochureID string) error {
	path := fmt.Sprintf("/v1/users/%s/saved/%s/access",
		url.PathEscape(userID), url.PathEscape(brochureID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// sessionRequest registers a device as the user's active session.
type sessionRequest struct {
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	DeviceLabel string `json:"device_label,omitempty"`
}

// RegisterSession implements Gateway.RegisterSession.
func (c *HTTPClient) RegisterSession(ctx context.Context, userID, deviceID, deviceLabel string) (SessionResult, error) {
	var result SessionResult
	err := c.do(ctx, http.MethodPost, "/v1/sessions",
		sessionRequest{UserID: userID, DeviceID: deviceID, DeviceLabel: deviceLabel}, &result)
	if err != nil {
		return SessionResult{}, err
	}
	return result, nil
}
