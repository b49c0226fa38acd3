package webhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/nhle/chattask/internal/dispatcher"
)

// notification is the body of a WhatsApp Cloud API webhook call.
type notification struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Contacts         []contact       `json:"contacts"`
	Messages         []message       `json:"messages"`
	Statuses         []messageStatus `json:"statuses"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply,omitempty"`
		ListReply   *reply `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type messageStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Recipient string `json:"recipient_id"`
}

// inbounds flattens a notification into dispatchable messages. Message types
// the dispatcher cannot act on (media, locations, reactions) are skipped.
func (n notification) inbounds() []dispatcher.Inbound {
	var out []dispatcher.Inbound
	for _, e := range n.Entry {
		for _, c := range e.Changes {
			if c.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(c.Value.Contacts))
			for _, ct := range c.Value.Contacts {
				names[ct.WaID] = ct.Profile.Name
			}
			for _, m := range c.Value.Messages {
				in, ok := m.inbound()
				if !ok {
					continue
				}
				in.Name = names[m.From]
				out = append(out, in)
			}
		}
	}
	return out
}

func (m message) inbound() (dispatcher.Inbound, bool) {
	in := dispatcher.Inbound{
		From:       m.From,
		MessageID:  m.ID,
		ReceivedAt: parseUnix(m.Timestamp),
	}

	switch m.Type {
	case "text":
		if m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
			return in, false
		}
		in.Text = m.Text.Body
	case "interactive":
		if m.Interactive == nil {
			return in, false
		}
		r := m.Interactive.ButtonReply
		if r == nil {
			r = m.Interactive.ListReply
		}
		if r == nil {
			return in, false
		}
		in.ReplyID = r.ID
		in.Text = r.Title
	case "button":
		// Quick-reply buttons on template messages.
		if m.Button == nil {
			return in, false
		}
		in.ReplyID = m.Button.Payload
		in.Text = m.Button.Text
	default:
		return in, false
	}
	return in, in.From != ""
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
