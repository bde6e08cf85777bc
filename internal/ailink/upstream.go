package ailink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/content"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver/openai"
)

var (
	// ErrMissingAPIKey is returned when no upstream credential is configured.
	ErrMissingAPIKey = errors.New("ailink api key is required")

	// ErrEmptyCompletion is returned when the provider answered with no text.
	ErrEmptyCompletion = errors.New("completion contained no text")
)

// Upstream sends one instruction as a single system message and returns the
// model's text reply.
type Upstream struct {
	driver driver.Driver
	cfg    Config
}

// NewUpstream builds an Upstream backed by the OpenAI-compatible driver.
func NewUpstream(cfg Config, httpClient *http.Client) (*Upstream, error) {
	cfg = cfg.WithDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
	client.HTTPClient = httpClient
	client.Timeout = cfg.Timeout

	return NewUpstreamWithDriver(client, cfg), nil
}

// NewUpstreamWithDriver wraps an existing driver.
func NewUpstreamWithDriver(d driver.Driver, cfg Config) *Upstream {
	return &Upstream{driver: d, cfg: cfg.WithDefaults()}
}

// Model returns the configured model name.
func (u *Upstream) Model() string {
	if u == nil {
		return ""
	}
	return u.cfg.Model
}

// Complete sends instruction upstream. Failures that carry a response body
// expose it through RawBody.
func (u *Upstream) Complete(ctx context.Context, instruction string) (string, error) {
	if u == nil || u.driver == nil {
		return "", errors.New("ailink upstream not configured")
	}

	req := &driver.Request{
		Model:       u.cfg.Model,
		Messages:    []content.Message{content.Text(content.RoleSystem, instruction)},
		Temperature: u.cfg.Temperature,
	}

	resp, err := u.driver.Complete(ctx, req)
	if err != nil {
		var perr *driver.ProviderError
		if errors.As(err, &perr) && perr != nil {
			perr.RawResponse = truncateBytes(perr.RawResponse, rawLimit(u.cfg.Debug))
		}
		return "", fmt.Errorf("%s completion: %w", u.driver.Name(), err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &RawResponseError{Err: ErrEmptyCompletion, Raw: truncateBytes(resp.Raw, rawLimit(u.cfg.Debug))}
	}
	return text, nil
}
