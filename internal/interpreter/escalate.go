package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/model"
)

const escalationSystemPrompt = `You classify WhatsApp messages sent to a personal task manager.
Reply with a single JSON object and nothing else:
{"intent": one of "create_task","list_tasks","mark_done","snooze","edit_task","move_task","set_pref","help","unknown",
 "task": {"title": string, "notes": string, "status": "TODO" or "IDEA", "dueAt": RFC3339 or null, "reminderAt": RFC3339 or null},
 "taskId": string or null,
 "taskRef": string or null,
 "listStatus": "TODO" or "IDEA" or null,
 "snoozeMinutes": integer or null (-1 means tomorrow),
 "confidence": number between 0 and 1}
Only include "task" for create_task. Ideas never have a reminderAt.
Resolve relative dates against the current time and timezone given, preferring future times.`

// wireIntent is the JSON shape requested from the language model.
type wireIntent struct {
	Intent string `json:"intent"`
	Task   *struct {
		Title      string  `json:"title"`
		Notes      string  `json:"notes"`
		Status     string  `json:"status"`
		DueAt      *string `json:"dueAt"`
		ReminderAt *string `json:"reminderAt"`
	} `json:"task"`
	TaskID        *string `json:"taskId"`
	TaskRef       *string `json:"taskRef"`
	ListStatus    *string `json:"listStatus"`
	SnoozeMinutes *int    `json:"snoozeMinutes"`
	Confidence    float64 `json:"confidence"`
}

// escalate asks the language model for a reading of text. The result is used
// only when it validates and is more confident than rules. Every failure,
// including a panic in the backend, yields ok=false.
func (i *Interpreter) escalate(ctx context.Context, text, tz string, ref time.Time, rules ParsedIntent) (pi ParsedIntent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("interpreter escalation panicked", zap.Any("panic", r))
			pi, ok = ParsedIntent{}, false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Timezone: %s\nCurrent time: %s\nMessage: %q", tz, ref.Format(time.RFC3339), text)
	raw, err := i.completer.Complete(ctx, escalationSystemPrompt, prompt)
	if err != nil {
		i.logger.Debug("interpreter escalation failed", zap.Error(err))
		return ParsedIntent{}, false
	}

	candidate, err := i.decode(raw, text, ref)
	if err != nil {
		i.logger.Debug("interpreter escalation rejected", zap.Error(err))
		return ParsedIntent{}, false
	}
	if candidate.Confidence <= rules.Confidence {
		return ParsedIntent{}, false
	}
	return candidate, true
}

// decode repairs, parses and validates a model reply.
func (i *Interpreter) decode(raw, text string, ref time.Time) (ParsedIntent, error) {
	if start := strings.Index(raw, "{"); start > 0 {
		raw = raw[start:]
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return ParsedIntent{}, fmt.Errorf("repairing reply: %w", err)
	}

	var w wireIntent
	if err := json.Unmarshal([]byte(repaired), &w); err != nil {
		return ParsedIntent{}, fmt.Errorf("decoding reply: %w", err)
	}

	pi := ParsedIntent{
		Intent:        Intent(w.Intent),
		TaskID:        deref(w.TaskID),
		TaskRef:       deref(w.TaskRef),
		ListStatus:    model.TaskStatus(strings.ToUpper(deref(w.ListStatus))),
		SnoozeMinutes: w.SnoozeMinutes,
		Confidence:    w.Confidence,
	}
	if pi.Intent == IntentListTasks && pi.ListStatus == "" {
		pi.ListStatus = model.TaskStatusTodo
	}

	if w.Task != nil && pi.Intent == IntentCreateTask {
		d := &TaskDraft{
			Title:  strings.TrimSpace(w.Task.Title),
			Notes:  w.Task.Notes,
			Status: model.TaskStatus(strings.ToUpper(w.Task.Status)),
		}
		if d.Status == "" {
			d.Status = model.TaskStatusTodo
		}
		if d.Status == model.TaskStatusTodo {
			d.DueAt = parseTimestamp(w.Task.DueAt)
			d.ReminderAt = parseTimestamp(w.Task.ReminderAt)
			if w.Task.ReminderAt != nil && d.ReminderAt == nil {
				// Malformed timestamp: fall back to the calendar parser.
				if at, ok := i.resolve(text, ref); ok {
					d.ReminderAt = &at
				}
			}
			if d.ReminderAt != nil {
				at := d.ReminderAt.In(ref.Location())
				d.ReminderAt = &at
				if at.Before(ref) {
					d.ReminderAt = nil
					pi.ReminderSkipped = true
				}
			}
		}
		pi.Task = d
	}

	if err := pi.Validate(); err != nil {
		return ParsedIntent{}, err
	}
	return pi, nil
}

func parseTimestamp(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
