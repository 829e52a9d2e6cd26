package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal REST client for the two lookups the ingest pipeline
// needs (price, product). Enrichment traffic is tiny; the full SDK API client
// is not worth carrying for it.
type Client struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

type Price struct {
	ID         string `json:"id"`
	Product    string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GetPrice(ctx context.Context, id string) (Price, int, error) {
	var out Price
	status, err := c.get(ctx, "/v1/prices/"+id, &out)
	return out, status, err
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, int, error) {
	var out Product
	status, err := c.get(ctx, "/v1/products/"+id, &out)
	return out, status, err
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(b, &apiErr)
		if apiErr.Error.Message != "" {
			return resp.StatusCode, errors.New(apiErr.Error.Message)
		}
		return resp.StatusCode, errors.New("stripe lookup failed")
	}

	if err := json.Unmarshal(b, out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// Retry decision for transient errors
func ShouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		if httpStatus == 0 {
			return false
		}
	}
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	return false
}

func Backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
