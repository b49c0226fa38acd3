package model

import "time"

// JobState is a position in the delayed job lifecycle.
type JobState string

const (
	JobPending   JobState = "pending"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is a durable delayed unit of work. Key is the caller's idempotent
// identity; scheduling a job under an existing key replaces it.
type Job struct {
	Key         string    `json:"key" db:"job_key"`
	ID          string    `json:"id" db:"id"`
	Payload     string    `json:"payload" db:"payload"`
	State       JobState  `json:"state" db:"state"`
	RunAt       time.Time `json:"run_at" db:"run_at"`
	Attempts    int       `json:"attempts" db:"attempts"`
	MaxAttempts int       `json:"max_attempts" db:"max_attempts"`
	LastError   *string   `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// JobStats counts jobs by state. Waiting jobs are due now; delayed jobs are
// pending with a future run time.
type JobStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}
