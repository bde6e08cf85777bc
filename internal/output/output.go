// Package output renders ledger and relay results for the CLI.
package output

import (
	"fmt"
	"strings"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// UserView is one ledger row with its remaining quota.
type UserView struct {
	ID        int64  `json:"id" yaml:"id"`
	Requests  int    `json:"requests" yaml:"requests"`
	Remaining int    `json:"remaining" yaml:"remaining"`
	Note      string `json:"note,omitempty" yaml:"note,omitempty"`
}

// LedgerView is the ledger as shown to an operator.
type LedgerView struct {
	Location string     `json:"location,omitempty" yaml:"location,omitempty"`
	Limit    int        `json:"limit" yaml:"limit"`
	Users    []UserView `json:"users" yaml:"users"`
}

// ReplyView is the result of driving one message through the relay.
type ReplyView struct {
	UserID  int64  `json:"user_id" yaml:"user_id"`
	Reply   string `json:"reply" yaml:"reply"`
	Outcome string `json:"outcome" yaml:"outcome"`
	State   string `json:"state" yaml:"state"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Formatter renders views in one format.
type Formatter interface {
	FormatLedger(view *LedgerView) (string, error)
	FormatReply(view *ReplyView) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}

// NewLedgerView builds a view of records under limit.
func NewLedgerView(doc *core.LedgerDocument, limit int, location string) *LedgerView {
	view := &LedgerView{Location: location, Limit: limit, Users: []UserView{}}
	if doc == nil {
		return view
	}
	for _, record := range doc.Users {
		view.Users = append(view.Users, NewUserView(record, limit))
	}
	return view
}

// NewUserView computes the remaining quota for record.
func NewUserView(record core.UserRecord, limit int) UserView {
	remaining := limit - record.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return UserView{
		ID:        record.ID,
		Requests:  record.RequestCount,
		Remaining: remaining,
		Note:      record.Note,
	}
}
