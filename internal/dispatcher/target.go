package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/action"
	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
)

// resolveTarget finds the task a done or snooze request is about, in order:
// an explicit id, a title reference, the reminder delivered in the last few
// minutes, or the user's only open task. When the choice is ambiguous the
// user is sent a pick list and ErrAmbiguousTarget is returned; when nothing
// matches they are told so and ErrNoTarget is returned.
func (d *Dispatcher) resolveTarget(ctx context.Context, user *model.User, taskID, ref string, kind action.Kind) (*model.Task, error) {
	if taskID != "" {
		task, err := d.store.GetTaskByID(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && task.UserID != user.ID) {
			d.send(ctx, user, "I couldn't find that task anymore.")
			return nil, ErrNoTarget
		}
		if err != nil {
			d.send(ctx, user, failureReply)
			return nil, err
		}
		return task, nil
	}

	todo := model.TaskStatusTodo
	if ref != "" {
		matches, err := d.store.GetTasks(ctx, store.TaskFilter{UserID: &user.ID, Status: &todo, Query: &ref, Limit: listLimit + 1})
		if err != nil {
			d.send(ctx, user, failureReply)
			return nil, err
		}
		switch len(matches) {
		case 0:
			d.send(ctx, user, fmt.Sprintf("I couldn't find an open task matching %q.", ref))
			return nil, ErrNoTarget
		case 1:
			return &matches[0], nil
		default:
			return nil, d.askWhich(ctx, user, matches, kind)
		}
	}

	recent, err := d.reminders.LatestDelivered(ctx, user.ID, recentReminderWindow)
	if err != nil {
		d.logger.Warn("looking up recent reminder", zap.String("user_id", user.ID), zap.Error(err))
	}
	if recent != nil {
		task, err := d.store.GetTaskByID(ctx, recent.TaskID)
		if err == nil && !task.IsDone() {
			return task, nil
		}
	}

	open, err := d.store.GetTasks(ctx, store.TaskFilter{UserID: &user.ID, Status: &todo, SortDesc: true, Limit: listLimit + 1})
	if err != nil {
		d.send(ctx, user, failureReply)
		return nil, err
	}
	switch len(open) {
	case 0:
		d.send(ctx, user, "You have no open tasks.")
		return nil, ErrNoTarget
	case 1:
		return &open[0], nil
	default:
		return nil, d.askWhich(ctx, user, open, kind)
	}
}

// askWhich sends the candidates as a pick list whose rows carry the
// requested action.
func (d *Dispatcher) askWhich(ctx context.Context, user *model.User, candidates []model.Task, kind action.Kind) error {
	verb := "complete"
	if kind != action.Done {
		verb = "snooze"
		kind = action.SnoozeMenu
	}

	rows := make([]messaging.Row, 0, min(len(candidates), messaging.MaxListRows))
	for _, t := range candidates[:min(len(candidates), messaging.MaxListRows)] {
		id := action.Action{Kind: kind, TaskID: t.ID}.ID()
		rows = append(rows, messaging.Row{ID: id, Title: t.Title})
	}

	_, err := d.messenger.SendList(ctx, user.Phone,
		fmt.Sprintf("Which task do you want to %s?", verb),
		"Choose task",
		[]messaging.Section{{Title: "Open tasks", Rows: rows}},
	)
	if err != nil {
		d.logger.Warn("sending pick list", zap.String("user_id", user.ID), zap.Error(err))
	}
	return ErrAmbiguousTarget
}
