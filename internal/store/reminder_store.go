package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/chattask/internal/model"
)

// CreateReminder inserts a reminder, filling in its ID, initial state and
// timestamps. At most one SCHEDULED reminder per task is enforced by a
// unique partial index.
func (s *SQLStore) CreateReminder(ctx context.Context, r *model.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.State == "" {
		r.State = model.ReminderScheduled
	}
	now := s.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO reminders (
			id, task_id, user_id, scheduled_at, state, sent_at,
			delivery_mode, message_id, retries_count, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.TaskID, r.UserID, r.ScheduledAt.UTC(), r.State, utcPtr(r.SentAt),
		r.DeliveryMode, r.MessageID, r.RetriesCount, r.LastError,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating reminder for task %s: %w", r.TaskID, err)
	}
	return nil
}

// GetReminderByID retrieves a single reminder.
func (s *SQLStore) GetReminderByID(ctx context.Context, id string) (*model.Reminder, error) {
	var r model.Reminder
	if err := s.db.GetContext(ctx, &r, s.q("SELECT * FROM reminders WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "getting reminder "+id)
	}
	return &r, nil
}

// GetReminders retrieves reminders matching the filter.
func (s *SQLStore) GetReminders(ctx context.Context, filter ReminderFilter) ([]model.Reminder, error) {
	var conditions []string
	var args []any

	if filter.TaskID != nil {
		conditions = append(conditions, "task_id = ?")
		args = append(args, *filter.TaskID)
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.State != nil {
		conditions = append(conditions, "state = ?")
		args = append(args, *filter.State)
	}
	if filter.ScheduledBefore != nil {
		conditions = append(conditions, "scheduled_at < ?")
		args = append(args, filter.ScheduledBefore.UTC())
	}
	if filter.SentAfter != nil {
		conditions = append(conditions, "sent_at >= ?")
		args = append(args, filter.SentAfter.UTC())
	}

	sortBy := "scheduled_at"
	switch filter.SortBy {
	case "sent_at", "created_at":
		sortBy = filter.SortBy
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := "SELECT * FROM reminders" + where(conditions) +
		fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, direction, direction)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var reminders []model.Reminder
	if err := s.db.SelectContext(ctx, &reminders, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	return reminders, nil
}

// UpdateReminderIf is a compare-and-set on the reminder's state.
func (s *SQLStore) UpdateReminderIf(ctx context.Context, r *model.Reminder, expected model.ReminderState) (bool, error) {
	if !model.CanTransition(expected, r.State) {
		return false, fmt.Errorf("reminder %s: illegal transition %s -> %s", r.ID, expected, r.State)
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE reminders SET
			scheduled_at = ?, state = ?, sent_at = ?,
			delivery_mode = ?, message_id = ?,
			retries_count = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND state = ?`),
		r.ScheduledAt.UTC(), r.State, utcPtr(r.SentAt),
		r.DeliveryMode, r.MessageID,
		r.RetriesCount, r.LastError, now,
		r.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("updating reminder %s: %w", r.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}
	r.UpdatedAt = now
	return true, nil
}
