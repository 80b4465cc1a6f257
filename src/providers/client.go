package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/sync"
)

// Error codes the aggregation API uses for credentials that need a
// re-link. Anything else is treated as transient.
var reauthErrorCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED":  true,
	"INVALID_ACCESS_TOKEN": true,
	"ITEM_LOCKED":          true,
	"INVALID_CREDENTIALS":  true,
}

type syncRequest struct {
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
}

type syncResponse struct {
	Added      []models.ProviderTransaction `json:"added"`
	Removed    []string                     `json:"removed"`
	NextCursor string                       `json:"next_cursor"`
}

type errorResponse struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Client talks to one bank-aggregation API's incremental sync endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sync implements sync.Provider: POST /transactions/sync with the access
// token and the cursor from the last completed attempt. Provider error
// codes that mean "re-link the account" are mapped onto
// sync.ErrReauthRequired so the engine can park the account.
func (c *Client) Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*sync.SyncResult, error) {
	body, err := json.Marshal(syncRequest{AccessToken: accessToken, Cursor: cursor})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions/sync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider sync endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.ErrorCode != "" {
			if reauthErrorCodes[apiErr.ErrorCode] {
				return nil, fmt.Errorf("%w: provider returned %s (%s)", sync.ErrReauthRequired, apiErr.ErrorCode, apiErr.ErrorMessage)
			}
			return nil, fmt.Errorf("provider error %s: %s", apiErr.ErrorCode, apiErr.ErrorMessage)
		}
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed syncResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return &sync.SyncResult{
		Added:      parsed.Added,
		Removed:    parsed.Removed,
		NextCursor: parsed.NextCursor,
	}, nil
}
