package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/chattask/internal/model"
)

// CreateTask inserts a new task, filling in its ID, default status and
// timestamps.
func (s *SQLStore) CreateTask(ctx context.Context, task *model.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusTodo
	}
	if !task.Status.Valid() {
		return fmt.Errorf("invalid task status %q", task.Status)
	}
	if task.Source == "" {
		task.Source = model.TaskSourceWhatsApp
	}
	now := s.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == model.TaskStatusDone && task.CompletedAt == nil {
		task.CompletedAt = &now
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO tasks (
			id, user_id, title, notes, status, source,
			due_at, reminder_at, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.UserID, task.Title, task.Notes, task.Status, task.Source,
		utcPtr(task.DueAt), utcPtr(task.ReminderAt), task.CreatedAt, task.UpdatedAt, utcPtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// UpdateTask updates an existing task by ID. completed_at follows status.
func (s *SQLStore) UpdateTask(ctx context.Context, task *model.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if !task.Status.Valid() {
		return fmt.Errorf("invalid task status %q", task.Status)
	}

	now := s.now().UTC()
	task.UpdatedAt = now
	if task.Status == model.TaskStatusDone && task.CompletedAt == nil {
		task.CompletedAt = &now
	} else if task.Status != model.TaskStatusDone {
		task.CompletedAt = nil
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tasks SET
			title = ?, notes = ?, status = ?,
			due_at = ?, reminder_at = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?`),
		task.Title, task.Notes, task.Status,
		utcPtr(task.DueAt), utcPtr(task.ReminderAt),
		utcPtr(task.CompletedAt), task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task by ID. Its reminders are kept.
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTaskByID retrieves a single task by its ID.
func (s *SQLStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := s.db.GetContext(ctx, &task, s.q("SELECT * FROM tasks WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "getting task "+id)
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the filter, oldest first unless
// SortDesc is set.
func (s *SQLStore) GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	conditions, args := taskConditions(filter)

	query := "SELECT * FROM tasks" + where(conditions)
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s", direction, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var tasks []model.Task
	if err := s.db.SelectContext(ctx, &tasks, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the filter, ignoring its
// pagination.
func (s *SQLStore) CountTasks(ctx context.Context, filter TaskFilter) (int, error) {
	conditions, args := taskConditions(filter)

	var count int
	if err := s.db.GetContext(ctx, &count, s.q("SELECT COUNT(*) FROM tasks"+where(conditions)), args...); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

func taskConditions(filter TaskFilter) ([]string, []any) {
	var conditions []string
	var args []any

	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, `LOWER(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(*filter.Query))+"%")
	}
	return conditions, args
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
