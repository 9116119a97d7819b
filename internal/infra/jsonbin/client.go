// Package jsonbin is a client for JSONBin-style hosted JSON document stores.
package jsonbin

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

	"quizsync/internal/domain"
)

// DefaultBaseURL is the public JSONBin v3 endpoint.
const DefaultBaseURL = "https://api.jsonbin.io/v3/b"

// ErrMalformedPayload is returned when a response body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusError reports a non-2xx response.
type StatusError struct {
	Op     string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jsonbin %s failed: HTTP %d: %s", e.Op, e.Code, e.Status)
}

type Config struct {
	BaseURL string
	APIKey  string
	BinName string
	Timeout time.Duration
}

// Client talks to the bin API. It satisfies app.RemoteStore.
type Client struct {
	baseURL string
	apiKey  string
	binName string
	http    *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		binName: cfg.BinName,
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Record   json.RawMessage `json:"record"`
	Metadata struct {
		ID string `json:"id"`
	} `json:"metadata"`
}

// Create stores doc as a new bin and returns its id.
func (c *Client) Create(ctx context.Context, doc domain.BinDocument) (string, error) {
	var env envelope
	if err := c.do(ctx, "create", http.MethodPost, c.baseURL, doc, &env); err != nil {
		return "", err
	}
	if env.Metadata.ID == "" {
		return "", fmt.Errorf("jsonbin create: %w: missing metadata.id", ErrMalformedPayload)
	}
	return env.Metadata.ID, nil
}

// Read returns the latest version of the bin. A record without results reads as empty.
func (c *Client) Read(ctx context.Context, binID string) (domain.BinDocument, error) {
	var env envelope
	if err := c.do(ctx, "read", http.MethodGet, c.baseURL+"/"+binID+"/latest", nil, &env); err != nil {
		return domain.BinDocument{}, err
	}
	var doc domain.BinDocument
	if len(env.Record) > 0 && string(env.Record) != "null" {
		if err := json.Unmarshal(env.Record, &doc); err != nil {
			return domain.BinDocument{}, fmt.Errorf("jsonbin read: %w: %v", ErrMalformedPayload, err)
		}
	}
	if doc.Results == nil {
		doc.Results = domain.ResultLog{}
	}
	return doc, nil
}

// Replace overwrites the bin with doc.
func (c *Client) Replace(ctx context.Context, binID string, doc domain.BinDocument) error {
	return c.do(ctx, "replace", http.MethodPut, c.baseURL+"/"+binID, doc, nil)
}

func (c *Client) do(ctx context.Context, op, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jsonbin %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("jsonbin %s: %w", op, err)
	}
	req.Header.Set("X-Master-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost && c.binName != "" {
		req.Header.Set("X-Bin-Name", c.binName)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jsonbin %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Op: op, Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jsonbin %s: %w: %v", op, ErrMalformedPayload, err)
	}
	return nil
}
