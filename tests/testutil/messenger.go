package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/nhle/chattask/internal/messaging"
)

// SentMessage is one call recorded by FakeMessenger.
type SentMessage struct {
	Kind        string // "text", "buttons", "list", "template", "reaction"
	To          string
	Body        string
	Buttons     []messaging.Button
	ButtonLabel string
	Sections    []messaging.Section
	Template    messaging.Template
	MessageID   string // provider id, or the reacted-to message for reactions
	Emoji       string
}

// FakeMessenger records outbound messages in memory. Set Err to make every
// send fail.
type FakeMessenger struct {
	mu   sync.Mutex
	sent []SentMessage
	seq  int

	Err error
}

var _ messaging.Messenger = (*FakeMessenger)(nil)

// Sent returns a copy of the recorded messages.
func (f *FakeMessenger) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Last returns the most recent message, or the zero value.
func (f *FakeMessenger) Last() SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return SentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

// SetErr changes the error returned by subsequent sends.
func (f *FakeMessenger) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

func (f *FakeMessenger) record(m SentMessage) (messaging.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return messaging.SendResult{}, f.Err
	}
	f.seq++
	id := fmt.Sprintf("wamid.%d", f.seq)
	if m.Kind != "reaction" {
		m.MessageID = id
	}
	f.sent = append(f.sent, m)
	return messaging.SendResult{MessageID: id}, nil
}

func (f *FakeMessenger) SendText(ctx context.Context, to, body string) (messaging.SendResult, error) {
	return f.record(SentMessage{Kind: "text", To: to, Body: body})
}

func (f *FakeMessenger) SendButtons(ctx context.Context, to, body string, buttons []messaging.Button) (messaging.SendResult, error) {
	return f.record(SentMessage{Kind: "buttons", To: to, Body: body, Buttons: buttons})
}

func (f *FakeMessenger) SendList(ctx context.Context, to, body, buttonLabel string, sections []messaging.Section) (messaging.SendResult, error) {
	return f.record(SentMessage{Kind: "list", To: to, Body: body, ButtonLabel: buttonLabel, Sections: sections})
}

func (f *FakeMessenger) SendTemplate(ctx context.Context, to string, tpl messaging.Template) (messaging.SendResult, error) {
	return f.record(SentMessage{Kind: "template", To: to, Template: tpl})
}

func (f *FakeMessenger) React(ctx context.Context, to, messageID, emoji string) error {
	_, err := f.record(SentMessage{Kind: "reaction", To: to, MessageID: messageID, Emoji: emoji})
	return err
}
