package openai

import (
	"errors"
	"strings"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/content"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver"
)

var (
	errNilRequest     = errors.New("request is required")
	errNoModel        = errors.New("model is required")
	errNoMessages     = errors.New("messages are required")
	errNoChoices      = errors.New("empty response choices")
	errNoChoiceString = errors.New("response choice has no message content")
)

// wireRequest is the body of POST /chat/completions.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// wireMessage carries either a plain string or a list of text parts.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wirePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *driver.Usage `json:"usage,omitempty"`
}

func encodeRequest(req *driver.Request) (*wireRequest, error) {
	switch {
	case req == nil:
		return nil, errNilRequest
	case strings.TrimSpace(req.Model) == "":
		return nil, errNoModel
	case len(req.Messages) == 0:
		return nil, errNoMessages
	}

	out := &wireRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for i, msg := range req.Messages {
		body, err := encodeContent(msg.Content)
		if err != nil {
			return nil, err
		}
		out.Messages[i] = wireMessage{Role: msg.Role, Content: body}
	}
	return out, nil
}

// encodeContent collapses a single text block into a bare string.
func encodeContent(blocks []content.ContentBlock) (any, error) {
	parts := make([]wirePart, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != content.ContentTypeText {
			return nil, errors.New("unsupported content type: " + string(block.Type))
		}
		parts = append(parts, wirePart{Type: "text", Text: block.Text})
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0].Text, nil
	default:
		return parts, nil
	}
}

func (r *wireResponse) decode() (*driver.Response, error) {
	if r == nil || len(r.Choices) == 0 {
		return nil, errNoChoices
	}
	first := r.Choices[0]
	if first.Message == nil || first.Message.Content == nil {
		return nil, errNoChoiceString
	}
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: *first.Message.Content}},
		FinishReason: first.FinishReason,
		Usage:        r.Usage,
	}, nil
}
