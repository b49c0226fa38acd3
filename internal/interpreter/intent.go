package interpreter

import (
	"errors"
	"fmt"
	"time"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/temporal"
)

// Intent is the action a chat message asks for.
type Intent string

const (
	IntentCreateTask Intent = "create_task"
	IntentListTasks  Intent = "list_tasks"
	IntentMarkDone   Intent = "mark_done"
	IntentSnooze     Intent = "snooze"
	IntentEditTask   Intent = "edit_task"
	IntentMoveTask   Intent = "move_task"
	IntentSetPref    Intent = "set_pref"
	IntentHelp       Intent = "help"
	IntentUnknown    Intent = "unknown"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentCreateTask, IntentListTasks, IntentMarkDone, IntentSnooze,
		IntentEditTask, IntentMoveTask, IntentSetPref, IntentHelp, IntentUnknown:
		return true
	}
	return false
}

// Fixed rule confidences. Downstream thresholds depend on these exact values.
const (
	ConfidenceCommand      = 0.95
	ConfidenceAction       = 0.9
	ConfidenceMove         = 0.85
	ConfidenceTitled       = 0.85
	ConfidenceUntitled     = 0.7
	ConfidenceDefault      = 0.3
	DefaultEscalationLevel = 0.6
)

// TaskDraft is the task a create_task message describes.
type TaskDraft struct {
	Title      string
	Notes      string
	Status     model.TaskStatus
	DueAt      *time.Time
	ReminderAt *time.Time
}

// ParsedIntent is the structured reading of one inbound message. It is never
// persisted.
type ParsedIntent struct {
	Intent Intent

	// Text is the message as received.
	Text string

	// Task is set for create_task.
	Task *TaskDraft

	// TaskID names the target task directly, as button replies do.
	TaskID string

	// TaskRef is free text naming the target task ("done buy milk").
	TaskRef string

	// ListStatus is the board column a list_tasks request asks for.
	ListStatus model.TaskStatus

	// MoveTo is the destination column of a move_task request.
	MoveTo model.TaskStatus

	// SnoozeMinutes is nil for a bare "snooze", otherwise a positive number
	// of minutes or temporal.SnoozeNextDay.
	SnoozeMinutes *int

	Confidence float64

	// ReminderSkipped is set when the message named a time that had already
	// passed, so no reminder was attached.
	ReminderSkipped bool
}

// Validate checks the shape every producer of a ParsedIntent must respect.
// Results from the language-model path are rejected when it fails.
func (p ParsedIntent) Validate() error {
	if !p.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", p.Intent)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", p.Confidence)
	}

	switch p.Intent {
	case IntentCreateTask:
		if p.Task == nil {
			return errors.New("create_task without a task")
		}
		if p.Task.Title == "" {
			return errors.New("create_task with an empty title")
		}
		if p.Task.Status != model.TaskStatusIdea && p.Task.Status != model.TaskStatusTodo {
			return fmt.Errorf("create_task with status %q", p.Task.Status)
		}
		if p.Task.Status == model.TaskStatusIdea && p.Task.ReminderAt != nil {
			return errors.New("ideas cannot carry a reminder")
		}
	case IntentListTasks:
		if p.ListStatus != model.TaskStatusIdea && p.ListStatus != model.TaskStatusTodo {
			return fmt.Errorf("list_tasks with status %q", p.ListStatus)
		}
	case IntentSnooze:
		if p.SnoozeMinutes != nil && *p.SnoozeMinutes <= 0 && *p.SnoozeMinutes != temporal.SnoozeNextDay {
			return fmt.Errorf("snooze of %d minutes", *p.SnoozeMinutes)
		}
	case IntentMoveTask:
		if p.MoveTo != "" && !p.MoveTo.Valid() {
			return fmt.Errorf("move_task to %q", p.MoveTo)
		}
	}
	return nil
}
