package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/chattask/internal/interpreter"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/queue"
	"github.com/nhle/chattask/internal/reminder"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/internal/temporal"
	"github.com/nhle/chattask/tests/testutil"
)

const phone = "+15550002222"

type fixture struct {
	store      *store.SQLStore
	queue      *queue.Queue
	engine     *reminder.Engine
	messenger  *testutil.FakeMessenger
	dispatcher *Dispatcher
	user       *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	q := queue.New(s, model.QueueConfig{Concurrency: 1, MaxAttempts: 5}, nil, nil)
	m := &testutil.FakeMessenger{}
	engine := reminder.NewEngine(s, q, m, reminder.Config{
		ReminderConfig: model.ReminderConfig{MaxRetries: 3, SessionWindow: 24 * time.Hour, GracePeriod: 5 * time.Minute},
		Template:       "task_reminder",
	}, nil, nil)
	defaults := temporal.DefaultTime{Hour: 10}
	p := interpreter.New(interpreter.WithDefaultTime(defaults))

	return &fixture{
		store:     s,
		queue:     q,
		engine:    engine,
		messenger: m,
		dispatcher: New(s, engine, m, p, Config{
			DashboardURL: "https://board.example.com/",
			DefaultTime:  defaults,
		}, nil),
		user: testutil.NewTestUser(t, s, phone, "Asia/Kolkata"),
	}
}

func (f *fixture) text(t *testing.T, body string) Result {
	t.Helper()
	res, err := f.dispatcher.HandleInbound(context.Background(), Inbound{From: phone, Text: body, MessageID: "wamid.in"})
	require.NoError(t, err)
	return res
}

func (f *fixture) tap(t *testing.T, replyID string) Result {
	t.Helper()
	res, err := f.dispatcher.HandleInbound(context.Background(), Inbound{From: phone, ReplyID: replyID})
	require.NoError(t, err)
	return res
}

func (f *fixture) addTask(t *testing.T, title string, status model.TaskStatus) *model.Task {
	t.Helper()
	task := &model.Task{UserID: f.user.ID, Title: title, Status: status}
	require.NoError(t, f.store.CreateTask(context.Background(), task))
	return task
}

func (f *fixture) scheduled(t *testing.T, taskID string) []model.Reminder {
	t.Helper()
	state := model.ReminderScheduled
	rs, err := f.store.GetReminders(context.Background(), store.ReminderFilter{TaskID: &taskID, State: &state})
	require.NoError(t, err)
	return rs
}

// lastOfKind returns the latest recorded message that is not a reaction.
func (f *fixture) lastReply(t *testing.T) testutil.SentMessage {
	t.Helper()
	sent := f.messenger.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Kind != "reaction" {
			return sent[i]
		}
	}
	t.Fatal("no reply sent")
	return testutil.SentMessage{}
}

func TestCreateTaskWithReminder(t *testing.T) {
	f := newFixture(t)
	before := time.Now()

	res := f.text(t, "remind me in 2 hours to call mom")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, interpreter.IntentCreateTask, res.Action)
	require.NotNil(t, res.Task)
	assert.Equal(t, "call mom", res.Task.Title)
	assert.Equal(t, model.TaskStatusTodo, res.Task.Status)
	require.NotNil(t, res.Task.ReminderAt)
	assert.WithinDuration(t, before.Add(2*time.Hour), *res.Task.ReminderAt, time.Minute)

	rs := f.scheduled(t, res.Task.ID)
	require.Len(t, rs, 1)
	pending, err := f.queue.Pending(context.Background(), reminder.JobKey(rs[0].ID))
	require.NoError(t, err)
	assert.True(t, pending)

	reply := f.lastReply(t)
	assert.Equal(t, "text", reply.Kind)
	assert.Contains(t, reply.Body, "Added: call mom")
	assert.Contains(t, reply.Body, "remind you")

	last := f.messenger.Last()
	assert.Equal(t, "reaction", last.Kind)
	assert.Equal(t, "wamid.in", last.MessageID)
	assert.Equal(t, "📝", last.Emoji)

	user, err := f.store.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastInboundAt)
	assert.WithinDuration(t, time.Now(), *user.LastInboundAt, time.Minute)
}

func TestCreateIdeaHasNoReminder(t *testing.T) {
	f := newFixture(t)

	res := f.text(t, "idea: build a newsletter app")
	require.True(t, res.Success)
	assert.Equal(t, "build a newsletter app", res.Task.Title)
	assert.Equal(t, model.TaskStatusIdea, res.Task.Status)
	assert.Nil(t, res.Task.ReminderAt)
	assert.Empty(t, f.scheduled(t, res.Task.ID))
	assert.Equal(t, "💡 Idea saved: build a newsletter app", f.lastReply(t).Body)
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	f := newFixture(t)
	res := f.dispatcher.Dispatch(context.Background(), f.user, interpreter.ParsedIntent{
		Intent: interpreter.IntentCreateTask,
		Task:   &interpreter.TaskDraft{Status: model.TaskStatusTodo},
	})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrEmptyTitle)
	assert.Contains(t, f.lastReply(t).Body, "couldn't tell what the task is")
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)

	res := f.text(t, "list")
	require.True(t, res.Success)
	assert.Contains(t, f.lastReply(t).Body, "No open tasks")

	for i := 1; i <= 12; i++ {
		f.addTask(t, fmt.Sprintf("task %02d", i), model.TaskStatusTodo)
	}
	f.addTask(t, "an idea", model.TaskStatusIdea)

	res = f.text(t, "list")
	require.True(t, res.Success)
	body := f.lastReply(t).Body
	assert.Contains(t, body, "Your tasks (12)")
	assert.Contains(t, body, "\n10. ")
	assert.NotContains(t, body, "\n11. ")
	assert.Contains(t, body, "...and 2 more")
	assert.NotContains(t, body, "an idea")

	res = f.text(t, "ideas")
	require.True(t, res.Success)
	body = f.lastReply(t).Body
	assert.Contains(t, body, "Your ideas (1)")
	assert.Contains(t, body, "1. an idea")
	assert.NotContains(t, body, "more")
}

func TestMarkDoneSingleTaskCancelsReminder(t *testing.T) {
	f := newFixture(t)
	created := f.text(t, "remind me in 3 hours to file taxes")
	require.True(t, created.Success)
	rs := f.scheduled(t, created.Task.ID)
	require.Len(t, rs, 1)

	res := f.text(t, "done")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, interpreter.IntentMarkDone, res.Action)
	assert.Equal(t, created.Task.ID, res.Task.ID)
	assert.Equal(t, model.TaskStatusDone, res.Task.Status)

	r, err := f.store.GetReminderByID(context.Background(), rs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderCanceled, r.State)
	_, err = f.queue.Lookup(context.Background(), reminder.JobKey(rs[0].ID))
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	assert.Equal(t, "✅ Done: file taxes", f.lastReply(t).Body)
	assert.Equal(t, "✅", f.messenger.Last().Emoji)
}

func TestMarkDoneByReference(t *testing.T) {
	f := newFixture(t)
	milk := f.addTask(t, "Buy milk", model.TaskStatusTodo)
	f.addTask(t, "Call the bank", model.TaskStatusTodo)

	res := f.text(t, "done milk")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, milk.ID, res.Task.ID)

	res = f.text(t, "done groceries")
	assert.ErrorIs(t, res.Err, ErrNoTarget)
	assert.Contains(t, f.lastReply(t).Body, `"groceries"`)
}

func TestMarkDoneAmbiguousAsks(t *testing.T) {
	f := newFixture(t)
	a := f.addTask(t, "Buy milk", model.TaskStatusTodo)
	b := f.addTask(t, "Call the bank", model.TaskStatusTodo)

	res := f.text(t, "done")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrAmbiguousTarget)

	reply := f.lastReply(t)
	assert.Equal(t, "list", reply.Kind)
	require.Len(t, reply.Sections, 1)
	var ids []string
	for _, row := range reply.Sections[0].Rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []string{"done_" + a.ID, "done_" + b.ID}, ids)

	for _, id := range []string{a.ID, b.ID} {
		task, err := f.store.GetTaskByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusTodo, task.Status)
	}
}

func TestMarkDoneWithoutTasks(t *testing.T) {
	f := newFixture(t)
	res := f.text(t, "done")
	assert.ErrorIs(t, res.Err, ErrNoTarget)
	assert.Equal(t, "You have no open tasks.", f.lastReply(t).Body)
}

func TestMarkDonePrefersRecentReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, "Buy milk", model.TaskStatusTodo)
	due := time.Now()
	stretch := &model.Task{UserID: f.user.ID, Title: "Stretch", Status: model.TaskStatusTodo, ReminderAt: &due}
	require.NoError(t, f.store.CreateTask(ctx, stretch))
	r, err := f.engine.Schedule(ctx, stretch)
	require.NoError(t, err)
	require.NoError(t, f.engine.Deliver(ctx, r.ID))

	res := f.text(t, "done")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, stretch.ID, res.Task.ID)

	got, err := f.store.GetReminderByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderAckedDone, got.State)
}

func TestSnoozeWithoutDurationShowsMenu(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "Stretch", model.TaskStatusTodo)

	res := f.text(t, "snooze")
	require.True(t, res.Success, "%v", res.Err)

	reply := f.lastReply(t)
	assert.Equal(t, "list", reply.Kind)
	require.Len(t, reply.Sections, 1)
	var ids []string
	for _, row := range reply.Sections[0].Rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []string{
		"snooze_15_" + task.ID,
		"snooze_60_" + task.ID,
		"snooze_180_" + task.ID,
		"snooze_tomorrow_" + task.ID,
	}, ids)
	assert.Empty(t, f.scheduled(t, task.ID))
}

func TestSnoozeReplyReschedules(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "Stretch", model.TaskStatusTodo)
	before := time.Now()

	res := f.tap(t, "snooze_60_"+task.ID)
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, interpreter.IntentSnooze, res.Action)

	rs := f.scheduled(t, task.ID)
	require.Len(t, rs, 1)
	assert.WithinDuration(t, before.Add(time.Hour), rs[0].ScheduledAt, time.Minute)
	assert.Contains(t, f.lastReply(t).Body, "Snoozed")
}

func TestSnoozeUntilTomorrow(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "Stretch", model.TaskStatusTodo)

	res := f.text(t, "snooze tomorrow")
	require.True(t, res.Success, "%v", res.Err)

	rs := f.scheduled(t, task.ID)
	require.Len(t, rs, 1)
	loc := temporal.LoadLocation("Asia/Kolkata")
	at := rs[0].ScheduledAt.In(loc)
	assert.Equal(t, 10, at.Hour())
	assert.Equal(t, 0, at.Minute())
	assert.Equal(t, time.Now().In(loc).AddDate(0, 0, 1).Day(), at.Day())
}

func TestSnoozeWithMinutes(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "Stretch", model.TaskStatusTodo)
	before := time.Now()

	res := f.text(t, "snooze 30 minutes")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, "⏰", f.messenger.Last().Emoji)

	rs := f.scheduled(t, task.ID)
	require.Len(t, rs, 1)
	assert.WithinDuration(t, before.Add(30*time.Minute), rs[0].ScheduledAt, time.Minute)
}

func TestReplyForOtherUsersTask(t *testing.T) {
	f := newFixture(t)
	other := testutil.NewTestUser(t, f.store, "+15559999999", "")
	task := &model.Task{UserID: other.ID, Title: "Not yours", Status: model.TaskStatusTodo}
	require.NoError(t, f.store.CreateTask(context.Background(), task))

	res := f.tap(t, "done_"+task.ID)
	assert.ErrorIs(t, res.Err, ErrNoTarget)

	stored, err := f.store.GetTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusTodo, stored.Status)
}

func TestStaticReplies(t *testing.T) {
	tests := []struct {
		name  string
		send  func(*testing.T, *fixture) Result
		want  interpreter.Intent
		reply string
	}{
		{
			name:  "help",
			send:  func(t *testing.T, f *fixture) Result { return f.text(t, "help") },
			want:  interpreter.IntentHelp,
			reply: "Here's what I can do",
		},
		{
			name:  "settings",
			send:  func(t *testing.T, f *fixture) Result { return f.text(t, "settings") },
			want:  interpreter.IntentSetPref,
			reply: "https://board.example.com/settings",
		},
		{
			name:  "move",
			send:  func(t *testing.T, f *fixture) Result { return f.text(t, "move buy milk to idea") },
			want:  interpreter.IntentMoveTask,
			reply: "https://board.example.com",
		},
		{
			name:  "edit button",
			send:  func(t *testing.T, f *fixture) Result { return f.tap(t, "action_edit_t-42") },
			want:  interpreter.IntentEditTask,
			reply: "https://board.example.com/tasks/t-42",
		},
		{
			name:  "unreadable reply id",
			send:  func(t *testing.T, f *fixture) Result { return f.tap(t, "bogus") },
			want:  interpreter.IntentHelp,
			reply: "Here's what I can do",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := tt.send(t, f)
			assert.True(t, res.Success)
			assert.Equal(t, tt.want, res.Action)
			assert.Contains(t, f.lastReply(t).Body, tt.reply)
		})
	}
}

func TestUnknownIsSavedAsIdea(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), f.user, interpreter.ParsedIntent{
		Intent: interpreter.IntentUnknown,
		Text:   "maybe a podcast about gardening",
	})
	require.True(t, res.Success)
	require.NotNil(t, res.Task)
	assert.Equal(t, model.TaskStatusIdea, res.Task.Status)
	assert.Equal(t, "maybe a podcast about gardening", res.Task.Title)

	res = f.dispatcher.Dispatch(context.Background(), f.user, interpreter.ParsedIntent{Intent: interpreter.IntentUnknown})
	assert.True(t, res.Success)
	assert.Nil(t, res.Task)
	assert.Contains(t, f.lastReply(t).Body, "Here's what I can do")
}
