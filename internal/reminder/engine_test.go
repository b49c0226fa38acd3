package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/queue"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/tests/testutil"
)

type fixture struct {
	store     *store.SQLStore
	queue     *queue.Queue
	messenger *testutil.FakeMessenger
	engine    *Engine
	user      *model.User
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	q := queue.New(s, model.QueueConfig{Concurrency: 1, MaxAttempts: 10}, nil, nil)
	m := &testutil.FakeMessenger{}
	cfg := Config{
		ReminderConfig: model.ReminderConfig{
			MaxRetries:       3,
			SessionWindow:    24 * time.Hour,
			GracePeriod:      5 * time.Minute,
			TemplateTitleMax: 20,
		},
		Template:         "task_reminder",
		TemplateLanguage: "en",
	}

	f := &fixture{
		store:     s,
		queue:     q,
		messenger: m,
		engine:    NewEngine(s, q, m, cfg, nil, nil),
		user:      testutil.NewTestUser(t, s, "+15550001111", "Asia/Kolkata"),
		now:       time.Now().UTC().Truncate(time.Second),
	}
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) task(t *testing.T, title string, at time.Time) *model.Task {
	t.Helper()
	task := &model.Task{UserID: f.user.ID, Title: title, Status: model.TaskStatusTodo, ReminderAt: &at}
	require.NoError(t, f.store.CreateTask(context.Background(), task))
	return task
}

func (f *fixture) reminder(t *testing.T, id string) *model.Reminder {
	t.Helper()
	r, err := f.store.GetReminderByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) scheduledFor(t *testing.T, taskID string) []model.Reminder {
	t.Helper()
	state := model.ReminderScheduled
	rs, err := f.store.GetReminders(context.Background(), store.ReminderFilter{TaskID: &taskID, State: &state})
	require.NoError(t, err)
	return rs
}

func (f *fixture) jobPending(t *testing.T, reminderID string) bool {
	t.Helper()
	ok, err := f.queue.Pending(context.Background(), JobKey(reminderID))
	require.NoError(t, err)
	return ok
}

func TestScheduleEnqueuesAndReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Send the deck", f.now.Add(time.Hour))

	first, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderScheduled, first.State)
	assert.True(t, first.ScheduledAt.Equal(f.now.Add(time.Hour)))
	assert.True(t, f.jobPending(t, first.ID))

	later := f.now.Add(2 * time.Hour)
	task.ReminderAt = &later
	second, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, model.ReminderCanceled, f.reminder(t, first.ID).State)
	assert.False(t, f.jobPending(t, first.ID))
	assert.True(t, f.jobPending(t, second.ID))

	scheduled := f.scheduledFor(t, task.ID)
	require.Len(t, scheduled, 1)
	assert.Equal(t, second.ID, scheduled[0].ID)
}

func TestScheduleRejectsDoneTask(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "Old", f.now.Add(time.Hour))
	task.Status = model.TaskStatusDone

	_, err := f.engine.Schedule(context.Background(), task)
	assert.ErrorIs(t, err, ErrTaskDone)
}

func TestDeliverChoosesModeBySessionWindow(t *testing.T) {
	tests := []struct {
		name        string
		lastInbound time.Duration // before fire time; 0 means never
		wantMode    model.DeliveryMode
		wantKind    string
	}{
		{name: "inside window", lastInbound: 23 * time.Hour, wantMode: model.DeliverySessionFreeform, wantKind: "buttons"},
		{name: "outside window", lastInbound: 25 * time.Hour, wantMode: model.DeliveryTemplate, wantKind: "template"},
		{name: "never messaged", wantMode: model.DeliveryTemplate, wantKind: "template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if tt.lastInbound > 0 {
				require.NoError(t, f.store.TouchLastInbound(ctx, f.user.ID, f.now.Add(-tt.lastInbound)))
			}

			task := f.task(t, "Pay the electricity bill before Friday", f.now)
			r, err := f.engine.Schedule(ctx, task)
			require.NoError(t, err)
			require.NoError(t, f.engine.Deliver(ctx, r.ID))

			got := f.reminder(t, r.ID)
			assert.Equal(t, model.ReminderSent, got.State)
			require.NotNil(t, got.DeliveryMode)
			assert.Equal(t, tt.wantMode, *got.DeliveryMode)
			require.NotNil(t, got.SentAt)
			require.NotNil(t, got.MessageID)

			sent := f.messenger.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantKind, sent[0].Kind)
			assert.Equal(t, "+15550001111", sent[0].To)
			assert.Equal(t, sent[0].MessageID, *got.MessageID)

			switch tt.wantMode {
			case model.DeliverySessionFreeform:
				assert.Contains(t, sent[0].Body, "Pay the electricity bill")
				require.Len(t, sent[0].Buttons, 3)
				assert.Equal(t, "done_"+task.ID, sent[0].Buttons[0].ID)
				assert.Equal(t, "snooze_"+task.ID, sent[0].Buttons[1].ID)
				assert.Equal(t, "edit_"+task.ID, sent[0].Buttons[2].ID)
			case model.DeliveryTemplate:
				assert.Equal(t, "task_reminder", sent[0].Template.Name)
				require.Len(t, sent[0].Template.Params, 2)
				assert.Equal(t, "Pay the electricity…", sent[0].Template.Params[0])
				assert.Contains(t, sent[0].Template.Params[1], "today")
			}

			events, err := f.store.GetNotifications(ctx, store.NotificationFilter{ReminderID: &r.ID})
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, model.NotificationReminderSent, events[0].Kind)
		})
	}
}

func TestDeliverTwiceSendsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.engine.Schedule(ctx, f.task(t, "Call mom", f.now))
	require.NoError(t, err)

	require.NoError(t, f.engine.Deliver(ctx, r.ID))
	before := f.reminder(t, r.ID)
	require.NoError(t, f.engine.Deliver(ctx, r.ID))
	after := f.reminder(t, r.ID)

	assert.Len(t, f.messenger.Sent(), 1)
	assert.Equal(t, model.ReminderSent, after.State)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestDeliverMissingReminderIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.engine.Deliver(context.Background(), "does-not-exist"))
	assert.Empty(t, f.messenger.Sent())
}

func TestDeliverCancelsForFinishedTask(t *testing.T) {
	tests := []struct {
		name   string
		finish func(t *testing.T, f *fixture, task *model.Task)
	}{
		{
			name: "task done",
			finish: func(t *testing.T, f *fixture, task *model.Task) {
				task.Status = model.TaskStatusDone
				require.NoError(t, f.store.UpdateTask(context.Background(), task))
			},
		},
		{
			name: "task deleted",
			finish: func(t *testing.T, f *fixture, task *model.Task) {
				require.NoError(t, f.store.DeleteTask(context.Background(), task.ID))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			task := f.task(t, "Water plants", f.now)
			r, err := f.engine.Schedule(ctx, task)
			require.NoError(t, err)

			tt.finish(t, f, task)
			require.NoError(t, f.engine.Deliver(ctx, r.ID))

			assert.Equal(t, model.ReminderCanceled, f.reminder(t, r.ID).State)
			assert.Empty(t, f.messenger.Sent())
		})
	}
}

func TestDeliverRetryCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f.engine.metrics = NewMetrics(reg)
	f.messenger.SetErr(&messaging.SendError{Status: 500, Message: "upstream unavailable"})

	r, err := f.engine.Schedule(ctx, f.task(t, "Renew passport", f.now))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		err := f.engine.Deliver(ctx, r.ID)
		require.Error(t, err)
		got := f.reminder(t, r.ID)
		assert.Equal(t, model.ReminderScheduled, got.State)
		assert.Equal(t, i, got.RetriesCount)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "upstream unavailable")
	}

	require.NoError(t, f.engine.Deliver(ctx, r.ID))
	assert.Equal(t, model.ReminderFailed, f.reminder(t, r.ID).State)
	assert.Equal(t, 3.0, promtest.ToFloat64(f.engine.metrics.failuresTotal))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.metrics.failedTotal))

	kind := model.NotificationReminderFailed
	events, err := f.store.GetNotifications(ctx, store.NotificationFilter{ReminderID: &r.ID, Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	// The sweeper only looks at SCHEDULED reminders.
	_, err = f.queue.Cancel(ctx, JobKey(r.ID))
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, f.jobPending(t, r.ID))
}

func TestCompleteTaskCancelsScheduledReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "File taxes", f.now.Add(time.Hour))
	r, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)
	require.True(t, f.jobPending(t, r.ID))

	done, err := f.engine.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, done.Status)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, model.ReminderCanceled, f.reminder(t, r.ID).State)
	_, err = f.queue.Lookup(ctx, JobKey(r.ID))
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
	assert.Empty(t, f.scheduledFor(t, task.ID))
}

func TestCompleteTaskAcknowledgesDeliveredReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Book flights", f.now)
	r, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)
	require.NoError(t, f.engine.Deliver(ctx, r.ID))

	_, err = f.engine.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderAckedDone, f.reminder(t, r.ID).State)
}

func TestSnoozeAcknowledgesAndReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Stretch", f.now)
	r, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)
	require.NoError(t, f.engine.Deliver(ctx, r.ID))

	at := f.now.Add(15 * time.Minute)
	next, err := f.engine.Snooze(ctx, task.ID, at)
	require.NoError(t, err)

	assert.Equal(t, model.ReminderAckedSnooze, f.reminder(t, r.ID).State)
	assert.True(t, next.ScheduledAt.Equal(at))
	assert.True(t, f.jobPending(t, next.ID))

	stored, err := f.store.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReminderAt)
	assert.True(t, stored.ReminderAt.Equal(at))
}

func TestSyncTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Dentist", f.now.Add(time.Hour))
	r, err := f.engine.Schedule(ctx, task)
	require.NoError(t, err)

	// Unchanged time keeps the same reminder.
	require.NoError(t, f.engine.SyncTask(ctx, task))
	scheduled := f.scheduledFor(t, task.ID)
	require.Len(t, scheduled, 1)
	assert.Equal(t, r.ID, scheduled[0].ID)

	// A new time replaces it.
	moved := f.now.Add(3 * time.Hour)
	task.ReminderAt = &moved
	require.NoError(t, f.engine.SyncTask(ctx, task))
	scheduled = f.scheduledFor(t, task.ID)
	require.Len(t, scheduled, 1)
	assert.NotEqual(t, r.ID, scheduled[0].ID)

	// Clearing it cancels.
	task.ReminderAt = nil
	require.NoError(t, f.engine.SyncTask(ctx, task))
	assert.Empty(t, f.scheduledFor(t, task.ID))
}

func TestSweepRequeuesLostJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f.engine.metrics = NewMetrics(reg)

	lost, err := f.engine.Schedule(ctx, f.task(t, "Lost", f.now))
	require.NoError(t, err)
	healthy, err := f.engine.Schedule(ctx, f.task(t, "Healthy", f.now))
	require.NoError(t, err)
	recent, err := f.engine.Schedule(ctx, f.task(t, "Recent", f.now.Add(9*time.Minute)))
	require.NoError(t, err)

	for _, id := range []string{lost.ID, recent.ID} {
		_, err := f.queue.Cancel(ctx, JobKey(id))
		require.NoError(t, err)
	}

	f.now = f.now.Add(10 * time.Minute)
	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.jobPending(t, lost.ID))
	assert.True(t, f.jobPending(t, healthy.ID))
	assert.False(t, f.jobPending(t, recent.ID), "inside the grace period")
	assert.Equal(t, model.ReminderScheduled, f.reminder(t, lost.ID).State)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.metrics.requeuedTotal))

	n, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLatestDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.engine.LatestDelivered(ctx, f.user.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)

	r, err := f.engine.Schedule(ctx, f.task(t, "Ping Sam", f.now))
	require.NoError(t, err)
	require.NoError(t, f.engine.Deliver(ctx, r.ID))

	got, err = f.engine.LatestDelivered(ctx, f.user.ID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	f.now = f.now.Add(6 * time.Minute)
	got, err = f.engine.LatestDelivered(ctx, f.user.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.engine.Schedule(ctx, f.task(t, "Buy milk", f.now))
	require.NoError(t, err)

	assert.NoError(t, f.engine.HandleJob(ctx, queue.Job{Key: "reminder:x", Payload: []byte("not json")}))
	assert.Empty(t, f.messenger.Sent())

	require.NoError(t, f.engine.HandleJob(ctx, queue.Job{Key: JobKey(r.ID), Payload: []byte(`{"reminderId":"` + r.ID + `"}`)}))
	assert.Len(t, f.messenger.Sent(), 1)

	f.messenger.SetErr(errors.New("network down"))
	r2, err := f.engine.Schedule(ctx, f.task(t, "Buy bread", f.now))
	require.NoError(t, err)
	assert.Error(t, f.engine.HandleJob(ctx, queue.Job{Key: JobKey(r2.ID), Payload: []byte(`{"reminderId":"` + r2.ID + `"}`)}))
}

func TestInSession(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { t := now.Add(-d); return &t }

	assert.True(t, InSession(at(time.Minute), now, 24*time.Hour))
	assert.True(t, InSession(at(23*time.Hour+59*time.Minute), now, 24*time.Hour))
	assert.False(t, InSession(at(24*time.Hour), now, 24*time.Hour))
	assert.False(t, InSession(nil, now, 24*time.Hour))
}
