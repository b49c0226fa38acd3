// Package whatsapp implements messaging.Messenger on the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/chattask/internal/messaging"
)

// Client is a thin HTTP client for the Cloud API messages endpoint. It
// handles Bearer token authentication and retries HTTP 429 responses.
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
	maxRetries    int
}

var _ messaging.Messenger = (*Client)(nil)

// NewClient creates a Cloud API client. baseURL is the Graph API root
// including its version (https://graph.facebook.com/v21.0).
func NewClient(baseURL, phoneNumberID, token string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (messaging.SendResult, error) {
	return c.send(ctx, outbound{
		To:   to,
		Type: "text",
		Text: &textBody{Body: body},
	})
}

// SendButtons sends an interactive message with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []messaging.Button) (messaging.SendResult, error) {
	if len(buttons) == 0 || len(buttons) > messaging.MaxButtons {
		return messaging.SendResult{}, fmt.Errorf("interactive buttons: need 1 to %d buttons, got %d", messaging.MaxButtons, len(buttons))
	}

	action := &interactiveAction{}
	for _, b := range buttons {
		action.Buttons = append(action.Buttons, replyButton{
			Type:  "reply",
			Reply: buttonReply{ID: b.ID, Title: messaging.Truncate(b.Title, messaging.MaxButtonTitle)},
		})
	}

	return c.send(ctx, outbound{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type:   "button",
			Body:   textOnly{Text: body},
			Action: action,
		},
	})
}

// SendList sends an interactive list message.
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []messaging.Section) (messaging.SendResult, error) {
	action := &interactiveAction{Button: messaging.Truncate(buttonLabel, messaging.MaxButtonTitle)}
	rows := 0
	for _, s := range sections {
		ls := listSection{Title: messaging.Truncate(s.Title, messaging.MaxRowTitle)}
		for _, r := range s.Rows {
			ls.Rows = append(ls.Rows, listRow{
				ID:          r.ID,
				Title:       messaging.Truncate(r.Title, messaging.MaxRowTitle),
				Description: messaging.Truncate(r.Description, messaging.MaxRowDescription),
			})
		}
		rows += len(ls.Rows)
		action.Sections = append(action.Sections, ls)
	}
	if rows == 0 || rows > messaging.MaxListRows {
		return messaging.SendResult{}, fmt.Errorf("interactive list: need 1 to %d rows, got %d", messaging.MaxListRows, rows)
	}

	return c.send(ctx, outbound{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type:   "list",
			Body:   textOnly{Text: body},
			Action: action,
		},
	})
}

// SendTemplate sends a pre-approved template with positional body
// parameters.
func (c *Client) SendTemplate(ctx context.Context, to string, tpl messaging.Template) (messaging.SendResult, error) {
	t := &template{Name: tpl.Name, Language: templateLanguage{Code: tpl.Language}}
	if len(tpl.Params) > 0 {
		comp := templateComponent{Type: "body"}
		for _, p := range tpl.Params {
			comp.Parameters = append(comp.Parameters, templateParam{Type: "text", Text: p})
		}
		t.Components = []templateComponent{comp}
	}

	return c.send(ctx, outbound{To: to, Type: "template", Template: t})
}

// React attaches an emoji reaction to a received message.
func (c *Client) React(ctx context.Context, to, messageID, emoji string) error {
	_, err := c.send(ctx, outbound{
		To:       to,
		Type:     "reaction",
		Reaction: &reaction{MessageID: messageID, Emoji: emoji},
	})
	return err
}

func (c *Client) send(ctx context.Context, msg outbound) (messaging.SendResult, error) {
	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"

	var resp sendResponse
	if err := c.post(ctx, "/"+c.phoneNumberID+"/messages", msg, &resp); err != nil {
		return messaging.SendResult{}, err
	}
	if len(resp.Messages) == 0 {
		return messaging.SendResult{}, errors.New("whatsapp response carried no message id")
	}
	return messaging.SendResult{MessageID: resp.Messages[0].ID}, nil
}

// post sends a JSON body and decodes the JSON response, retrying on rate
// limits.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	url := c.baseURL + path

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request POST %s: %w", path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &messaging.SendError{Status: resp.StatusCode, Message: "rate limited"}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			sendErr := &messaging.SendError{Status: resp.StatusCode, Message: string(respBody)}
			var apiErr errorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				sendErr.Code = apiErr.Error.Code
				sendErr.Message = apiErr.Error.Message
			}
			return sendErr
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from POST %s: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header, falling back to
// exponential backoff capped at 30s.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
