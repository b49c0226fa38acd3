package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/action"
	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/queue"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/internal/temporal"
)

// HandleJob is the queue handler for delivery jobs.
func (e *Engine) HandleJob(ctx context.Context, job queue.Job) error {
	var p deliveryPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.ReminderID == "" {
		// Retrying a malformed payload cannot help.
		e.logger.Error("dropping malformed delivery job", zap.String("job_key", job.Key), zap.Error(err))
		return nil
	}
	return e.Deliver(ctx, p.ReminderID)
}

// Deliver sends a reminder if it is still due. Every check is made against
// freshly loaded state, so a repeated call after a successful delivery is a
// no-op. A send failure is recorded on the reminder and returned so the
// queue retries; once the reminder's own retry budget is spent it is marked
// FAILED instead.
func (e *Engine) Deliver(ctx context.Context, reminderID string) error {
	log := e.logger.With(zap.String("reminder_id", reminderID))

	r, err := e.store.GetReminderByID(ctx, reminderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("reminder gone before delivery")
		return nil
	}
	if err != nil {
		return err
	}
	if r.State != model.ReminderScheduled {
		log.Debug("reminder already handled", zap.String("state", string(r.State)))
		return nil
	}

	task, err := e.store.GetTaskByID(ctx, r.TaskID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if task == nil || task.IsDone() {
		return e.finish(ctx, log, r, model.ReminderCanceled, "")
	}

	if r.RetriesCount >= e.cfg.MaxRetries {
		msg := "retry limit reached"
		if r.LastError != nil {
			msg = *r.LastError
		}
		return e.finish(ctx, log, r, model.ReminderFailed, msg)
	}

	user, err := e.store.GetUserByID(ctx, r.UserID)
	if err != nil {
		return err
	}

	mode, result, sendErr := e.send(ctx, user, task, r)
	if sendErr != nil {
		return e.recordFailure(ctx, log, r, sendErr)
	}

	now := e.now()
	updated := *r
	updated.State = model.ReminderSent
	updated.SentAt = &now
	updated.DeliveryMode = &mode
	updated.MessageID = &result.MessageID
	ok, err := e.store.UpdateReminderIf(ctx, &updated, model.ReminderScheduled)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("reminder changed during delivery")
		return nil
	}

	e.metrics.delivered(mode)
	e.logEvent(ctx, log, &model.Notification{
		UserID:     r.UserID,
		ReminderID: &r.ID,
		Kind:       model.NotificationReminderSent,
		MessageID:  &result.MessageID,
	})
	log.Info("reminder delivered", zap.String("task_id", task.ID), zap.String("mode", string(mode)))
	return nil
}

// send picks the delivery mode from the user's last inbound message: inside
// the session window an interactive message, otherwise the template.
func (e *Engine) send(ctx context.Context, user *model.User, task *model.Task, r *model.Reminder) (model.DeliveryMode, messaging.SendResult, error) {
	now := e.now()
	if InSession(user.LastInboundAt, now, e.cfg.SessionWindow) {
		res, err := e.messenger.SendButtons(ctx, user.Phone, "⏰ Reminder: "+task.Title, ReminderButtons(task.ID))
		return model.DeliverySessionFreeform, res, err
	}

	loc := temporal.LoadLocation(user.Timezone)
	res, err := e.messenger.SendTemplate(ctx, user.Phone, messaging.Template{
		Name:     e.cfg.Template,
		Language: e.cfg.TemplateLanguage,
		Params: []string{
			messaging.Truncate(task.Title, e.cfg.TemplateTitleMax),
			temporal.HumanTime(r.ScheduledAt.In(loc), now.In(loc)),
		},
	})
	return model.DeliveryTemplate, res, err
}

// InSession reports whether a message received at lastInbound still keeps
// the free-form session open at now.
func InSession(lastInbound *time.Time, now time.Time, window time.Duration) bool {
	return lastInbound != nil && now.Sub(*lastInbound) < window
}

// ReminderButtons are the inline actions attached to a reminder message.
func ReminderButtons(taskID string) []messaging.Button {
	return []messaging.Button{
		{ID: action.Action{Kind: action.Done, TaskID: taskID}.ID(), Title: "✅ Done"},
		{ID: action.Action{Kind: action.SnoozeMenu, TaskID: taskID}.ID(), Title: "⏰ Snooze"},
		{ID: action.Action{Kind: action.Edit, TaskID: taskID}.ID(), Title: "📝 Edit"},
	}
}

func (e *Engine) recordFailure(ctx context.Context, log *zap.Logger, r *model.Reminder, sendErr error) error {
	msg := sendErr.Error()
	updated := *r
	updated.RetriesCount++
	updated.LastError = &msg
	if _, err := e.store.UpdateReminderIf(ctx, &updated, model.ReminderScheduled); err != nil {
		log.Error("recording delivery failure", zap.Error(err))
	}

	e.metrics.deliveryFailed()
	e.logEvent(ctx, log, &model.Notification{
		UserID:     r.UserID,
		ReminderID: &r.ID,
		Kind:       model.NotificationReminderFailed,
		Error:      &msg,
	})
	log.Warn("reminder delivery failed", zap.Int("retries", updated.RetriesCount), zap.Error(sendErr))
	return fmt.Errorf("delivering reminder %s: %w", r.ID, sendErr)
}

// finish moves a SCHEDULED reminder to a terminal state without sending.
func (e *Engine) finish(ctx context.Context, log *zap.Logger, r *model.Reminder, state model.ReminderState, reason string) error {
	updated := *r
	updated.State = state
	ok, err := e.store.UpdateReminderIf(ctx, &updated, model.ReminderScheduled)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("reminder changed before it could be closed")
		return nil
	}

	switch state {
	case model.ReminderFailed:
		e.metrics.failed()
		log.Error("reminder failed permanently", zap.Int("retries", r.RetriesCount), zap.String("last_error", reason))
	case model.ReminderCanceled:
		e.metrics.canceled()
		log.Debug("reminder cancelled, task gone or done", zap.String("task_id", r.TaskID))
	}
	return nil
}

func (e *Engine) logEvent(ctx context.Context, log *zap.Logger, n *model.Notification) {
	if err := e.store.CreateNotification(ctx, n); err != nil {
		log.Warn("recording outbound event", zap.Error(err))
	}
}
