// Package viem provides a small HTTP client for the batch submission REST API.
package viem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the batch submission REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// CallInput describes one call inside a batch. Raw calls populate To/Data/Value,
// structured calls populate ABI/Function/Args.
type CallInput struct {
	To       string `json:"to,omitempty"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	ABI      string `json:"abi,omitempty"`
	Function string `json:"function,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Chain    string `json:"chain,omitempty"`
	ChainID  uint64 `json:"chain_id,omitempty"`
}

// BatchSubmission represents the payload required to submit a batch.
type BatchSubmission struct {
	ID           string         `json:"id,omitempty"`
	Account      string         `json:"account,omitempty"`
	Chain        string         `json:"chain,omitempty"`
	Calls        []CallInput    `json:"calls"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Version      string         `json:"version,omitempty"`
}

// BatchRecord is the server side view of a submitted batch.
type BatchRecord struct {
	ID           string         `json:"id"`
	Account      string         `json:"account,omitempty"`
	Chain        string         `json:"chain,omitempty"`
	Calls        []CallInput    `json:"calls"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Version      string         `json:"version,omitempty"`
	Status       string         `json:"status"`
	BatchID      string         `json:"batch_id,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("viem api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("viem api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the batch submission API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitBatch submits a new batch of calls and returns the queued record.
func (c *Client) SubmitBatch(ctx context.Context, submission BatchSubmission) (BatchRecord, error) {
	var record BatchRecord
	if err := c.post(ctx, "/api/v1/batches", submission, &record); err != nil {
		return BatchRecord{}, err
	}
	return record, nil
}

// GetBatch fetches a batch record by identifier.
func (c *Client) GetBatch(ctx context.Context, id string) (BatchRecord, error) {
	var record BatchRecord
	if err := c.get(ctx, "/api/v1/batches/"+url.PathEscape(id), &record); err != nil {
		return BatchRecord{}, err
	}
	return record, nil
}

// ListBatches returns the most recent batch records.
func (c *Client) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	endpoint := "/api/v1/batches"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var records []BatchRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
