package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/chattask/internal/model"
)

// CreateNotification appends an entry to the outbound message log.
func (s *SQLStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO notifications (id, user_id, reminder_id, kind, message_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.ReminderID, n.Kind, n.MessageID, n.Error, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// GetNotifications returns log entries matching the filter, newest first.
func (s *SQLStore) GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error) {
	var conditions []string
	var args []any

	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.ReminderID != nil {
		conditions = append(conditions, "reminder_id = ?")
		args = append(args, *filter.ReminderID)
	}
	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, *filter.Kind)
	}

	query := "SELECT * FROM notifications" + where(conditions) + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var out []model.Notification
	if err := s.db.SelectContext(ctx, &out, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return out, nil
}
