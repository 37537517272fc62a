package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"munda-checkout/internal/models"
)

const (
	previewPath = "/orders/preview"
	ordersPath  = "/orders/"
)

// APIError is a non-2xx answer from the marketplace API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("marketplace API error (status %d)", e.Status)
	}
	return e.Detail
}

// IsAPIError reports whether err carries a marketplace API error.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is forwarded as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type authTokenKey struct{}

// WithAuthToken makes the request act on behalf of the buyer holding token
// instead of the configured service token.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, authTokenKey{}, token)
}

func (c *Client) bearer(ctx context.Context) string {
	if token, _ := ctx.Value(authTokenKey{}).(string); token != "" {
		return token
	}
	return c.serviceToken
}

// Client talks to the marketplace orders API.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
}

func NewClient(baseURL, serviceToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PreviewOrder prices an order without creating it. The endpoint is
// idempotent and side-effect free.
func (c *Client) PreviewOrder(ctx context.Context, req models.OrderRequest) (*models.OrderTotals, error) {
	respBody, err := c.post(ctx, previewPath, req)
	if err != nil {
		return nil, err
	}

	var result models.OrderTotals
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preview response: %w", err)
	}
	return &result, nil
}

// SubmitOrder creates the order. Not idempotent.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderConfirmation, error) {
	respBody, err := c.post(ctx, ordersPath, req)
	if err != nil {
		return nil, err
	}

	var result models.OrderConfirmation
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order response: %w", err)
	}
	if result.OrderNumber == "" {
		return nil, errors.New("marketplace returned no order number")
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := requestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Detail: extractDetail(respBody)}
	}

	return respBody, nil
}

// extractDetail pulls a readable message out of a FastAPI error body, where
// "detail" is either a string or a list of validation errors.
func extractDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
