// Package messaging defines the outbound chat channel used by the
// dispatcher and the reminder engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// Provider length limits for interactive elements.
const (
	MaxButtons        = 3
	MaxButtonTitle    = 20
	MaxRowTitle       = 24
	MaxRowDescription = 72
	MaxListRows       = 10
)

// Button is an inline reply button.
type Button struct {
	ID    string
	Title string
}

// Row is one selectable entry of an interactive list.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Section groups list rows under a heading.
type Section struct {
	Title string
	Rows  []Row
}

// Template is a pre-approved message sent outside the session window.
type Template struct {
	Name     string
	Language string
	Params   []string
}

// SendResult carries the provider's id for a sent message.
type SendResult struct {
	MessageID string
}

// Messenger sends messages to a user identified by phone number.
type Messenger interface {
	SendText(ctx context.Context, to, body string) (SendResult, error)
	SendButtons(ctx context.Context, to, body string, buttons []Button) (SendResult, error)
	SendList(ctx context.Context, to, body, buttonLabel string, sections []Section) (SendResult, error)
	SendTemplate(ctx context.Context, to string, tpl Template) (SendResult, error)
	React(ctx context.Context, to, messageID, emoji string) error
}

// SendError is a rejection reported by the messaging provider.
type SendError struct {
	Status  int
	Code    int
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("messaging provider error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

// IsAuthError reports whether err is a provider rejection of our
// credentials.
func IsAuthError(err error) bool {
	var se *SendError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusUnauthorized || se.Code == 190
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return strings.TrimRightFunc(string(r[:max-1]), unicode.IsSpace) + "…"
}
