package model

import "time"

// ReminderState is a position in the reminder lifecycle.
type ReminderState string

const (
	ReminderScheduled   ReminderState = "SCHEDULED"
	ReminderSent        ReminderState = "SENT"
	ReminderAckedDone   ReminderState = "ACKED_DONE"
	ReminderAckedSnooze ReminderState = "ACKED_SNOOZE"
	ReminderFailed      ReminderState = "FAILED"
	ReminderCanceled    ReminderState = "CANCELED"
)

// DeliveryMode records how a reminder reached the user.
type DeliveryMode string

const (
	// DeliverySessionFreeform is an interactive message sent inside the
	// channel's session window.
	DeliverySessionFreeform DeliveryMode = "SESSION_FREEFORM"

	// DeliveryTemplate is a pre-approved template message, the only kind the
	// channel accepts once the session window has lapsed.
	DeliveryTemplate DeliveryMode = "TEMPLATE"
)

// reminderTransitions lists the allowed state changes. A delivery failure
// that keeps the reminder retryable is a SCHEDULED -> SCHEDULED update.
var reminderTransitions = map[ReminderState][]ReminderState{
	ReminderScheduled: {ReminderScheduled, ReminderSent, ReminderCanceled, ReminderFailed},
	ReminderSent:      {ReminderAckedDone, ReminderAckedSnooze},
}

// CanTransition reports whether a reminder may move from one state to another.
func CanTransition(from, to ReminderState) bool {
	for _, s := range reminderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
// SENT is not terminal: the user may still acknowledge it.
func (s ReminderState) IsTerminal() bool {
	return len(reminderTransitions[s]) == 0
}

// Reminder is a single scheduled notification for a task.
type Reminder struct {
	ID           string        `json:"id" db:"id"`
	TaskID       string        `json:"task_id" db:"task_id"`
	UserID       string        `json:"user_id" db:"user_id"`
	ScheduledAt  time.Time     `json:"scheduled_at" db:"scheduled_at"`
	State        ReminderState `json:"state" db:"state"`
	SentAt       *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	DeliveryMode *DeliveryMode `json:"delivery_mode,omitempty" db:"delivery_mode"`
	MessageID    *string       `json:"message_id,omitempty" db:"message_id"`
	RetriesCount int           `json:"retries_count" db:"retries_count"`
	LastError    *string       `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
