// Package subgraph adapts GraphQL indexers of Uniswap-style venues to the
// source contract.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxRetries = 2
	defaultRetryDelay = 200 * time.Millisecond
	maxErrorBody      = 512
	maxResponseBody   = 32 << 20
)

// Client posts GraphQL queries to a single indexer endpoint. Rate limiting,
// server errors and transport failures are retried with exponential backoff.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxBody    int64
}

// NewClient creates a client for endpoint. Zero maxRetries and baseDelay
// select the defaults.
func NewClient(endpoint string, maxRetries int, baseDelay time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxBody:    maxResponseBody,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query runs query with vars and decodes the "data" member into dest.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, dest any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}

	var body []byte
	err = withRetry(ctx, c.maxRetries, c.baseDelay, func(ctx context.Context) error {
		var postErr error
		body, postErr = c.post(ctx, payload)
		return postErr
	})
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response from %s: %w", c.endpoint, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql errors from %s: %s", c.endpoint, strings.Join(msgs, "; "))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("empty data from %s", c.endpoint)
	}
	if err := json.Unmarshal(resp.Data, dest); err != nil {
		return fmt.Errorf("decoding data from %s: %w", c.endpoint, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, permanent(fmt.Errorf("response from %s exceeds %d bytes", c.endpoint, c.maxBody))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.endpoint)
	default:
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, permanent(fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, c.endpoint, string(body)))
	}
}
