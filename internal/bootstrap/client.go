package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/appetiteclub/tableside/internal/protocol"
	"github.com/appetiteclub/tableside/internal/session"
)

// APIError is the typed failure of the bootstrap call. Pages branch on
// Status to pick a safe entry point.
type APIError struct {
	Status int
	Body   ErrorBody
}

// ErrorBody is the parsed error payload the venue API returns.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Body.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// JoinResponse is everything one request returns to bootstrap a page:
// table metadata, catalog, the current order and venue metadata.
type JoinResponse struct {
	Table      session.TableInfo      `json:"table"`
	Restaurant session.Restaurant     `json:"restaurant"`
	Catalog    []session.Product      `json:"catalog"`
	OrderID    int64                  `json:"orderId"`
	Order      protocol.OrderSnapshot `json:"order"`
}

// Client performs the bootstrap REST call against the venue API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a bootstrap client for the API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// JoinTable joins a table by token and returns the bootstrap bundle.
// Non-2xx responses come back as *APIError with the parsed body.
func (c *Client) JoinTable(ctx context.Context, token string) (*JoinResponse, error) {
	if token == "" {
		return nil, fmt.Errorf("table token required")
	}

	url := fmt.Sprintf("%s/tables/%s/join", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("join request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr == nil {
			// Best effort: an unparseable body still yields a typed error.
			_ = json.Unmarshal(data, &apiErr.Body)
		}
		return nil, apiErr
	}

	var out JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode join response: %w", err)
	}
	return &out, nil
}
