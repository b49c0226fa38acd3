// Package dispatcher maps parsed chat intents to task and reminder actions
// and replies to the user.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/action"
	"github.com/nhle/chattask/internal/interpreter"
	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/internal/temporal"
)

var (
	// ErrNoTarget means a done or snooze request matched no task.
	ErrNoTarget = errors.New("no matching task")

	// ErrAmbiguousTarget means a done or snooze request matched several
	// tasks and the user was asked to pick one.
	ErrAmbiguousTarget = errors.New("more than one matching task")

	// ErrEmptyTitle means a create request had nothing to use as a title.
	ErrEmptyTitle = errors.New("task title is empty")
)

const (
	// recentReminderWindow is how long after a reminder goes out a bare
	// "done" or "snooze" refers to it.
	recentReminderWindow = 5 * time.Minute

	listLimit = 10
)

// Parser reads a chat message. *interpreter.Interpreter implements it.
type Parser interface {
	Parse(ctx context.Context, text, tz string, ref time.Time) interpreter.ParsedIntent
}

// Reminders is the slice of the reminder engine the dispatcher drives.
// *reminder.Engine implements it.
type Reminders interface {
	Schedule(ctx context.Context, task *model.Task) (*model.Reminder, error)
	CompleteTask(ctx context.Context, taskID string) (*model.Task, error)
	Snooze(ctx context.Context, taskID string, at time.Time) (*model.Reminder, error)
	LatestDelivered(ctx context.Context, userID string, within time.Duration) (*model.Reminder, error)
}

// Config holds the dispatcher's reply settings.
type Config struct {
	// DashboardURL is linked from move, edit and settings replies.
	DashboardURL string

	// DefaultTime resolves "snooze until tomorrow".
	DefaultTime temporal.DefaultTime
}

// Result is the outcome of one dispatched intent.
type Result struct {
	Success bool
	Action  interpreter.Intent
	Task    *model.Task
	Err     error
}

// Dispatcher executes intents for a user. It is safe for concurrent use.
type Dispatcher struct {
	store     store.Store
	reminders Reminders
	messenger messaging.Messenger
	parser    Parser
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Dispatcher. logger may be nil.
func New(s store.Store, r Reminders, m messaging.Messenger, p Parser, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:     s,
		reminders: r,
		messenger: m,
		parser:    p,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
		now:       time.Now,
	}
}

// Dispatch carries out a parsed intent for user. Failures are reported to
// the user in chat and returned in the Result; Dispatch itself never panics
// on a bad intent.
func (d *Dispatcher) Dispatch(ctx context.Context, user *model.User, pi interpreter.ParsedIntent) Result {
	log := d.logger.With(zap.String("user_id", user.ID), zap.String("intent", string(pi.Intent)))
	log.Debug("dispatching", zap.Float64("confidence", pi.Confidence))

	var res Result
	switch pi.Intent {
	case interpreter.IntentCreateTask:
		res = d.createTask(ctx, user, pi)
	case interpreter.IntentListTasks:
		res = d.listTasks(ctx, user, pi.ListStatus)
	case interpreter.IntentMarkDone:
		res = d.markDone(ctx, user, pi.TaskID, pi.TaskRef)
	case interpreter.IntentSnooze:
		res = d.snooze(ctx, user, pi.TaskID, pi.TaskRef, pi.SnoozeMinutes)
	case interpreter.IntentMoveTask, interpreter.IntentEditTask:
		res = d.reply(ctx, user, pi.Intent, boardReply(d.cfg.DashboardURL, pi.TaskID))
	case interpreter.IntentSetPref:
		res = d.reply(ctx, user, pi.Intent, settingsReply(d.cfg.DashboardURL))
	case interpreter.IntentHelp:
		res = d.reply(ctx, user, pi.Intent, helpText)
	default:
		res = d.unknown(ctx, user, pi)
	}
	res.Action = pi.Intent

	if res.Err != nil {
		log.Info("intent not carried out", zap.Error(res.Err))
	}
	return res
}

// DispatchReply carries out an interactive button or list selection.
func (d *Dispatcher) DispatchReply(ctx context.Context, user *model.User, reply action.Action) Result {
	var res Result
	switch reply.Kind {
	case action.Done:
		res = d.markDone(ctx, user, reply.TaskID, "")
		res.Action = interpreter.IntentMarkDone
	case action.SnoozeMenu:
		res = d.snooze(ctx, user, reply.TaskID, "", nil)
		res.Action = interpreter.IntentSnooze
	case action.Snooze:
		minutes := reply.SnoozeMinutes
		res = d.snooze(ctx, user, reply.TaskID, "", &minutes)
		res.Action = interpreter.IntentSnooze
	case action.Edit:
		res = d.reply(ctx, user, interpreter.IntentEditTask, boardReply(d.cfg.DashboardURL, reply.TaskID))
	default:
		res = d.reply(ctx, user, interpreter.IntentHelp, helpText)
	}
	return res
}

func (d *Dispatcher) createTask(ctx context.Context, user *model.User, pi interpreter.ParsedIntent) Result {
	if pi.Task == nil || pi.Task.Title == "" {
		d.send(ctx, user, emptyTitleReply)
		return Result{Err: ErrEmptyTitle}
	}
	return d.saveTask(ctx, user, pi.Task, pi.ReminderSkipped)
}

func (d *Dispatcher) saveTask(ctx context.Context, user *model.User, draft *interpreter.TaskDraft, skipped bool) Result {
	task := &model.Task{
		UserID:     user.ID,
		Title:      draft.Title,
		Notes:      draft.Notes,
		Status:     draft.Status,
		Source:     model.TaskSourceWhatsApp,
		DueAt:      draft.DueAt,
		ReminderAt: draft.ReminderAt,
	}
	if task.Status == model.TaskStatusIdea {
		task.ReminderAt = nil
	}
	if err := d.store.CreateTask(ctx, task); err != nil {
		d.send(ctx, user, failureReply)
		return Result{Task: task, Err: err}
	}

	reminderSet := false
	if task.ReminderAt != nil {
		if _, err := d.reminders.Schedule(ctx, task); err != nil {
			d.logger.Error("scheduling reminder", zap.String("task_id", task.ID), zap.Error(err))
		} else {
			reminderSet = true
		}
	}

	d.send(ctx, user, createdReply(task, reminderSet, skipped, d.localNow(user)))
	return Result{Success: true, Task: task}
}

func (d *Dispatcher) listTasks(ctx context.Context, user *model.User, status model.TaskStatus) Result {
	if status != model.TaskStatusIdea {
		status = model.TaskStatusTodo
	}
	filter := store.TaskFilter{UserID: &user.ID, Status: &status}

	total, err := d.store.CountTasks(ctx, filter)
	if err != nil {
		d.send(ctx, user, failureReply)
		return Result{Err: err}
	}
	filter.Limit = listLimit
	tasks, err := d.store.GetTasks(ctx, filter)
	if err != nil {
		d.send(ctx, user, failureReply)
		return Result{Err: err}
	}

	d.send(ctx, user, listReply(status, tasks, total, d.localNow(user)))
	return Result{Success: true}
}

func (d *Dispatcher) markDone(ctx context.Context, user *model.User, taskID, ref string) Result {
	task, err := d.resolveTarget(ctx, user, taskID, ref, action.Done)
	if err != nil {
		return Result{Err: err}
	}

	done, err := d.reminders.CompleteTask(ctx, task.ID)
	if err != nil {
		d.send(ctx, user, failureReply)
		return Result{Task: task, Err: err}
	}
	d.send(ctx, user, "✅ Done: "+done.Title)
	return Result{Success: true, Task: done}
}

func (d *Dispatcher) snooze(ctx context.Context, user *model.User, taskID, ref string, minutes *int) Result {
	kind := action.Snooze
	if minutes == nil {
		kind = action.SnoozeMenu
	}
	task, err := d.resolveTarget(ctx, user, taskID, ref, kind)
	if err != nil {
		return Result{Err: err}
	}

	if minutes == nil {
		if err := d.sendSnoozeMenu(ctx, user, task); err != nil {
			return Result{Task: task, Err: err}
		}
		return Result{Success: true, Task: task}
	}

	now := d.localNow(user)
	at := now.Add(time.Duration(*minutes) * time.Minute)
	if *minutes == temporal.SnoozeNextDay {
		at = d.cfg.DefaultTime.NextDay(now)
	}

	if _, err := d.reminders.Snooze(ctx, task.ID, at); err != nil {
		d.send(ctx, user, failureReply)
		return Result{Task: task, Err: err}
	}
	task.ReminderAt = &at
	d.send(ctx, user, fmt.Sprintf("⏰ Snoozed %q until %s.", task.Title, temporal.HumanTime(at, now)))
	return Result{Success: true, Task: task}
}

func (d *Dispatcher) sendSnoozeMenu(ctx context.Context, user *model.User, task *model.Task) error {
	rows := make([]messaging.Row, 0, len(action.SnoozeChoices))
	for _, c := range action.SnoozeChoices {
		id := action.Action{Kind: action.Snooze, TaskID: task.ID, SnoozeMinutes: c.Minutes}.ID()
		rows = append(rows, messaging.Row{ID: id, Title: c.Label})
	}
	_, err := d.messenger.SendList(ctx, user.Phone,
		"Snooze "+messaging.Truncate(task.Title, 60)+" for how long?",
		"Snooze",
		[]messaging.Section{{Title: "Snooze for", Rows: rows}},
	)
	if err != nil {
		return fmt.Errorf("sending snooze menu: %w", err)
	}
	return nil
}

// unknown keeps whatever the user sent: a message with any usable text is
// saved as an idea, anything else gets the help text.
func (d *Dispatcher) unknown(ctx context.Context, user *model.User, pi interpreter.ParsedIntent) Result {
	title := interpreter.ExtractTitle(pi.Text)
	if title == "" {
		return d.reply(ctx, user, interpreter.IntentHelp, helpText)
	}
	return d.saveTask(ctx, user, &interpreter.TaskDraft{Title: title, Status: model.TaskStatusIdea}, false)
}

func (d *Dispatcher) reply(ctx context.Context, user *model.User, intent interpreter.Intent, body string) Result {
	if err := d.send(ctx, user, body); err != nil {
		return Result{Action: intent, Err: err}
	}
	return Result{Success: true, Action: intent}
}

func (d *Dispatcher) send(ctx context.Context, user *model.User, body string) error {
	if _, err := d.messenger.SendText(ctx, user.Phone, body); err != nil {
		d.logger.Warn("sending reply", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) localNow(user *model.User) time.Time {
	return d.now().In(temporal.LoadLocation(user.Timezone))
}
