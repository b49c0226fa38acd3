// Package reminder owns the reminder lifecycle: scheduling a delivery job
// for a task's reminder time, delivering it through the chat channel when
// the job fires, cancelling and rescheduling, and sweeping up reminders
// whose job was lost.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
)

// ErrTaskDone is returned when a reminder is requested for a completed task.
var ErrTaskDone = errors.New("task is already done")

// JobQueue is the delayed job queue the engine schedules deliveries on.
type JobQueue interface {
	Schedule(ctx context.Context, key string, payload []byte, delay time.Duration) (string, error)
	Cancel(ctx context.Context, key string) (bool, error)
	Pending(ctx context.Context, key string) (bool, error)
}

// Config holds the engine's delivery settings.
type Config struct {
	model.ReminderConfig

	// Template and TemplateLanguage name the pre-approved message used
	// outside the session window.
	Template         string
	TemplateLanguage string
}

// Engine drives reminders through their lifecycle. It is the only writer of
// reminder rows.
type Engine struct {
	store     store.Store
	queue     JobQueue
	messenger messaging.Messenger
	cfg       Config
	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewEngine wires an engine to its collaborators. logger and metrics may be
// nil.
func NewEngine(s store.Store, q JobQueue, m messaging.Messenger, cfg Config, logger *zap.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 24 * time.Hour
	}
	if cfg.TemplateTitleMax <= 0 {
		cfg.TemplateTitleMax = 60
	}
	return &Engine{
		store:     s,
		queue:     q,
		messenger: m,
		cfg:       cfg,
		logger:    logger.Named("reminder"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// JobKey is the queue identity of a reminder's delivery job. Scheduling the
// same reminder twice replaces the earlier job.
func JobKey(reminderID string) string {
	return "reminder:" + reminderID
}

type deliveryPayload struct {
	ReminderID string `json:"reminderId"`
}

// Schedule creates a SCHEDULED reminder at task.ReminderAt and enqueues its
// delivery. Any reminder already scheduled for the task is cancelled first.
func (e *Engine) Schedule(ctx context.Context, task *model.Task) (*model.Reminder, error) {
	if task.ReminderAt == nil {
		return nil, fmt.Errorf("task %s has no reminder time", task.ID)
	}
	if task.IsDone() {
		return nil, fmt.Errorf("scheduling reminder for task %s: %w", task.ID, ErrTaskDone)
	}

	if _, err := e.CancelForTask(ctx, task.ID); err != nil {
		return nil, err
	}

	r := &model.Reminder{
		TaskID:      task.ID,
		UserID:      task.UserID,
		ScheduledAt: *task.ReminderAt,
		State:       model.ReminderScheduled,
	}
	if err := e.store.CreateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("scheduling reminder for task %s: %w", task.ID, err)
	}

	if err := e.enqueue(ctx, r.ID, r.ScheduledAt.Sub(e.now())); err != nil {
		// The row stays SCHEDULED, so the sweeper picks it up.
		e.logger.Warn("enqueueing reminder", zap.String("reminder_id", r.ID), zap.Error(err))
	}
	e.metrics.scheduled()
	e.logger.Debug("reminder scheduled",
		zap.String("reminder_id", r.ID),
		zap.String("task_id", task.ID),
		zap.Time("scheduled_at", r.ScheduledAt))
	return r, nil
}

func (e *Engine) enqueue(ctx context.Context, reminderID string, delay time.Duration) error {
	payload, err := json.Marshal(deliveryPayload{ReminderID: reminderID})
	if err != nil {
		return err
	}
	_, err = e.queue.Schedule(ctx, JobKey(reminderID), payload, max(delay, 0))
	return err
}

// Cancel removes a SCHEDULED reminder's pending job and marks it CANCELED.
// It reports false when the reminder had already left SCHEDULED.
func (e *Engine) Cancel(ctx context.Context, r *model.Reminder) (bool, error) {
	if _, err := e.queue.Cancel(ctx, JobKey(r.ID)); err != nil {
		return false, err
	}

	updated := *r
	updated.State = model.ReminderCanceled
	ok, err := e.store.UpdateReminderIf(ctx, &updated, model.ReminderScheduled)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Debug("reminder no longer scheduled", zap.String("reminder_id", r.ID))
		return false, nil
	}
	*r = updated
	e.metrics.canceled()
	return true, nil
}

// CancelForTask cancels every SCHEDULED reminder of a task and returns how
// many were cancelled. Called when a task is completed, deleted, or has its
// reminder time cleared.
func (e *Engine) CancelForTask(ctx context.Context, taskID string) (int, error) {
	state := model.ReminderScheduled
	reminders, err := e.store.GetReminders(ctx, store.ReminderFilter{TaskID: &taskID, State: &state})
	if err != nil {
		return 0, fmt.Errorf("cancelling reminders for task %s: %w", taskID, err)
	}

	n := 0
	for i := range reminders {
		ok, err := e.Cancel(ctx, &reminders[i])
		if err != nil {
			return n, fmt.Errorf("cancelling reminder %s: %w", reminders[i].ID, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// SyncTask reconciles a task's reminder after its reminder time or status
// changed: a cleared, past or completed reminder time cancels, a new future
// time reschedules, and an unchanged time is left alone.
func (e *Engine) SyncTask(ctx context.Context, task *model.Task) error {
	if task.IsDone() || task.ReminderAt == nil || !task.ReminderAt.After(e.now()) {
		_, err := e.CancelForTask(ctx, task.ID)
		return err
	}

	state := model.ReminderScheduled
	current, err := e.store.GetReminders(ctx, store.ReminderFilter{TaskID: &task.ID, State: &state})
	if err != nil {
		return fmt.Errorf("syncing reminders for task %s: %w", task.ID, err)
	}
	if len(current) == 1 && current[0].ScheduledAt.Equal(*task.ReminderAt) {
		return nil
	}

	_, err = e.Schedule(ctx, task)
	return err
}

// Reschedule moves a task's reminder to at, replacing any scheduled one.
func (e *Engine) Reschedule(ctx context.Context, taskID string, at time.Time) (*model.Reminder, error) {
	task, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.ReminderAt = &at
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("rescheduling task %s: %w", taskID, err)
	}
	return e.Schedule(ctx, task)
}

// Snooze acknowledges the task's delivered reminder as snoozed and schedules
// a new one at at.
func (e *Engine) Snooze(ctx context.Context, taskID string, at time.Time) (*model.Reminder, error) {
	if _, err := e.Acknowledge(ctx, taskID, model.ReminderAckedSnooze); err != nil {
		return nil, err
	}
	return e.Reschedule(ctx, taskID, at)
}

// CompleteTask marks a task DONE, cancels its scheduled reminders and
// acknowledges its delivered one.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsDone() {
		now := e.now()
		task.Status = model.TaskStatusDone
		task.CompletedAt = &now
		if err := e.store.UpdateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("completing task %s: %w", taskID, err)
		}
	}

	if _, err := e.CancelForTask(ctx, taskID); err != nil {
		return nil, err
	}
	if _, err := e.Acknowledge(ctx, taskID, model.ReminderAckedDone); err != nil {
		return nil, err
	}
	return task, nil
}

// Acknowledge moves the task's most recently sent reminder from SENT to
// state. It reports false when there was no SENT reminder to acknowledge.
func (e *Engine) Acknowledge(ctx context.Context, taskID string, state model.ReminderState) (bool, error) {
	sent := model.ReminderSent
	reminders, err := e.store.GetReminders(ctx, store.ReminderFilter{
		TaskID:   &taskID,
		State:    &sent,
		SortBy:   "sent_at",
		SortDesc: true,
		Limit:    1,
	})
	if err != nil {
		return false, fmt.Errorf("acknowledging reminder for task %s: %w", taskID, err)
	}
	if len(reminders) == 0 {
		return false, nil
	}

	r := reminders[0]
	r.State = state
	return e.store.UpdateReminderIf(ctx, &r, model.ReminderSent)
}

// LatestDelivered returns the user's most recently sent reminder if it went
// out within the trailing window, or nil.
func (e *Engine) LatestDelivered(ctx context.Context, userID string, within time.Duration) (*model.Reminder, error) {
	since := e.now().Add(-within)
	reminders, err := e.store.GetReminders(ctx, store.ReminderFilter{
		UserID:    &userID,
		SentAfter: &since,
		SortBy:    "sent_at",
		SortDesc:  true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("finding delivered reminders for user %s: %w", userID, err)
	}
	if len(reminders) == 0 {
		return nil, nil
	}
	return &reminders[0], nil
}
