package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vaheed/fresco/pkg/types"
)

// Client is a thin typed wrapper over the Fresco HTTP API.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// New builds a client for the API at base. token is attached as a bearer
// credential when non-empty.
func New(base, token string) *Client {
	return &Client{base: trim(base), http: http.DefaultClient, token: token}
}

func trim(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

// APIError is a non-2xx response, decoded from the error envelope when the
// server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (c *Client) req(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var br io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		br = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, br)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Recommend fetches size recommendations for user.
func (c *Client) Recommend(ctx context.Context, user string, size int) (types.Recommendation, error) {
	req, err := c.req(ctx, http.MethodGet, fmt.Sprintf("/api/v2/recommend/%d/%s", size, user), nil)
	if err != nil {
		return types.Recommendation{}, err
	}
	var v types.Recommendation
	if err := c.do(req, &v); err != nil {
		return types.Recommendation{}, err
	}
	return v, nil
}

// UserItems lists the user's active inventory.
func (c *Client) UserItems(ctx context.Context, user string) ([]types.InventoryEntry, error) {
	req, err := c.req(ctx, http.MethodGet, "/api/v2/users/"+user+"/items", nil)
	if err != nil {
		return nil, err
	}
	var v []types.InventoryEntry
	if err := c.do(req, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// AddUserItem records that user acquired item. A zero acquired time lets the
// server stamp the current time.
func (c *Client) AddUserItem(ctx context.Context, user, item string, acquired time.Time) (types.InventoryEntry, error) {
	body := map[string]any{"item_id": item}
	if !acquired.IsZero() {
		body["acquired"] = acquired
	}
	req, err := c.req(ctx, http.MethodPost, "/api/v2/users/"+user+"/items", body)
	if err != nil {
		return types.InventoryEntry{}, err
	}
	var v types.InventoryEntry
	if err := c.do(req, &v); err != nil {
		return types.InventoryEntry{}, err
	}
	return v, nil
}

// DropUserItem marks item dropped from the user's inventory.
func (c *Client) DropUserItem(ctx context.Context, user, item string) error {
	req, err := c.req(ctx, http.MethodDelete, "/api/v2/users/"+user+"/items/"+item, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Item fetches one catalog item.
func (c *Client) Item(ctx context.Context, item string) (types.Item, error) {
	req, err := c.req(ctx, http.MethodGet, "/api/v2/items/"+item, nil)
	if err != nil {
		return types.Item{}, err
	}
	var v types.Item
	if err := c.do(req, &v); err != nil {
		return types.Item{}, err
	}
	return v, nil
}

// ItemUpsert is one row of an UpsertItems call.
type ItemUpsert struct {
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Locales    []string `json:"locales,omitempty"`
}

// UpsertItems bulk-writes catalog items and returns the written count.
// Requires an admin token.
func (c *Client) UpsertItems(ctx context.Context, items []ItemUpsert) (int, error) {
	req, err := c.req(ctx, http.MethodPut, "/api/v2/items", items)
	if err != nil {
		return 0, err
	}
	var v struct {
		Count int `json:"count"`
	}
	if err := c.do(req, &v); err != nil {
		return 0, err
	}
	return v.Count, nil
}

// Health reports whether the API is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.req(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := c.req(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := c.do(req, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}
