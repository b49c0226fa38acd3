package model

import "time"

// NotificationKind classifies an entry in the outbound message log.
type NotificationKind string

const (
	NotificationReminderSent   NotificationKind = "reminder_sent"
	NotificationReminderFailed NotificationKind = "reminder_failed"
	NotificationReply          NotificationKind = "reply"
)

// Notification records a message the service pushed to a user.
type Notification struct {
	// ID is the unique identifier for this log entry.
	ID string `json:"id" db:"id"`

	// UserID is the recipient.
	UserID string `json:"user_id" db:"user_id"`

	// ReminderID links reminder deliveries to their reminder.
	ReminderID *string `json:"reminder_id,omitempty" db:"reminder_id"`

	Kind NotificationKind `json:"kind" db:"kind"`

	// MessageID is the provider's id for the outbound message, when one was issued.
	MessageID *string `json:"message_id,omitempty" db:"message_id"`

	// Error holds the provider error for failed sends.
	Error *string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
