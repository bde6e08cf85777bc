package openai

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

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	providerName   = "openai"
	completionPath = "/chat/completions"
)

// Client speaks the OpenAI-compatible chat completions API over HTTP.
//
// DeepSeek exposes the same shape, so the default base URL points there.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	c := &Client{
		BaseURL: strings.TrimSpace(baseURL),
		APIKey:  strings.TrimSpace(apiKey),
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	return c
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return providerName
}

// Complete posts req to the chat completions endpoint. Non-2xx statuses and
// undecodable bodies come back as *driver.ProviderError carrying the body.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, errors.New("openai client not configured")
	}
	if c.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	status, raw, err := c.roundTrip(ctx, payload.Model, body)
	if err != nil {
		return nil, err
	}

	fail := func(status int, msg string) error {
		return &driver.ProviderError{Provider: providerName, StatusCode: status, Message: msg, RawResponse: raw}
	}
	if status/100 != 2 {
		return nil, fail(status, strings.TrimSpace(string(raw)))
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fail(0, "decode response: "+err.Error())
	}
	out, err := decoded.decode()
	if err != nil {
		return nil, fail(0, err.Error())
	}
	out.Raw = raw
	return out, nil
}

// roundTrip performs the POST and records one trace entry for it.
func (c *Client) roundTrip(ctx context.Context, model string, body []byte) (int, []byte, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") + completionPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	entry := driver.TraceEntry{
		Driver:      providerName,
		Endpoint:    endpoint,
		Method:      http.MethodPost,
		Model:       model,
		RequestBody: body,
	}
	started := time.Now()
	defer func() {
		entry.DurationMs = time.Since(started).Milliseconds()
		driver.Trace(entry)
	}()

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	entry.StatusCode = resp.StatusCode
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.Error = err.Error()
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	entry.Response = driver.RawJSON(raw)
	return resp.StatusCode, raw, nil
}
