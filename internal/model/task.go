package model

import "time"

// TaskStatus is the board column a task lives in.
type TaskStatus string

const (
	TaskStatusIdea TaskStatus = "IDEA"
	TaskStatusTodo TaskStatus = "TODO"
	TaskStatusDone TaskStatus = "DONE"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusIdea, TaskStatusTodo, TaskStatusDone:
		return true
	}
	return false
}

// TaskSource identifies the channel a task was created from.
type TaskSource string

const (
	TaskSourceWhatsApp TaskSource = "WHATSAPP"
	TaskSourceWeb      TaskSource = "WEB"
)

// Task is a user's work item. Tasks created through chat and through the web
// board share this representation.
type Task struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Notes       string     `json:"notes" db:"notes"`
	Status      TaskStatus `json:"status" db:"status"`
	Source      TaskSource `json:"source" db:"source"`
	DueAt       *time.Time `json:"due_at,omitempty" db:"due_at"`
	ReminderAt  *time.Time `json:"reminder_at,omitempty" db:"reminder_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsDone reports whether the task has been completed.
func (t Task) IsDone() bool { return t.Status == TaskStatusDone }
