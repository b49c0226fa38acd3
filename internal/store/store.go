package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/chattask/internal/model"
)

// ErrNotFound is returned, wrapped, when a lookup or update matches no row.
var ErrNotFound = errors.New("not found")

// TaskFilter controls filtering, sorting, and pagination for task queries.
type TaskFilter struct {
	UserID   *string
	Status   *model.TaskStatus
	Query    *string // case-insensitive title substring
	SortDesc bool    // by created_at
	Limit    int
	Offset   int
}

// ReminderFilter controls reminder queries.
type ReminderFilter struct {
	TaskID          *string
	UserID          *string
	State           *model.ReminderState
	ScheduledBefore *time.Time
	SentAfter       *time.Time
	SortBy          string // "scheduled_at" (default), "sent_at", "created_at"
	SortDesc        bool
	Limit           int
}

// NotificationFilter controls outbound log queries.
type NotificationFilter struct {
	UserID     *string
	ReminderID *string
	Kind       *model.NotificationKind
	Limit      int
}

// Store defines the persistence interface for users, tasks, reminders and
// the outbound message log.
type Store interface {
	// === Users ===

	UpsertUserByPhone(ctx context.Context, phone, name string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	UpdateUser(ctx context.Context, user model.User) error
	TouchLastInbound(ctx context.Context, userID string, at time.Time) error

	// === Tasks ===

	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	CountTasks(ctx context.Context, filter TaskFilter) (int, error)

	// === Reminders ===

	CreateReminder(ctx context.Context, r *model.Reminder) error
	GetReminderByID(ctx context.Context, id string) (*model.Reminder, error)
	GetReminders(ctx context.Context, filter ReminderFilter) ([]model.Reminder, error)

	// UpdateReminderIf writes r only while the stored state still equals
	// expected. It reports false, without error, when another writer got
	// there first.
	UpdateReminderIf(ctx context.Context, r *model.Reminder, expected model.ReminderState) (bool, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
}

// JobStore persists the delayed job queue.
type JobStore interface {
	// ReplaceJob removes any job under job.Key and inserts job, atomically.
	ReplaceJob(ctx context.Context, job *model.Job) error

	// DeletePendingJob removes the job under key if it has not started.
	DeletePendingJob(ctx context.Context, key string) (bool, error)

	GetJobByKey(ctx context.Context, key string) (*model.Job, error)

	// ClaimDueJobs moves up to limit pending jobs with run_at <= now to
	// active, incrementing their attempt counters.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]model.Job, error)

	CompleteJob(ctx context.Context, id string) error

	// FailJob records errMsg. A non-nil retryAt returns the job to pending;
	// nil marks it failed.
	FailJob(ctx context.Context, id, errMsg string, retryAt *time.Time) error

	// ResetActiveJobs returns jobs orphaned by a crash to pending.
	ResetActiveJobs(ctx context.Context) (int, error)

	// PruneJobs deletes completed and failed jobs last updated before cutoff.
	PruneJobs(ctx context.Context, before time.Time) (int, error)

	JobStats(ctx context.Context, now time.Time) (model.JobStats, error)
}
