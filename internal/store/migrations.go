package store

import "strings"

// migration holds a single schema migration with its target version and SQL.
// The SQL is written once for both dialects; {{ts}} expands to the
// dialect's timestamp type.
type migration struct {
	version int
	sql     string
}

func (m migration) render(dialect string) string {
	ts := "DATETIME"
	if dialect == "postgres" {
		ts = "TIMESTAMPTZ"
	}
	return strings.ReplaceAll(m.sql, "{{ts}}", ts)
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	phone           TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL DEFAULT '',
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	last_inbound_at {{ts}},
	created_at      {{ts}} NOT NULL,
	updated_at      {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'TODO',
	source       TEXT NOT NULL DEFAULT 'WHATSAPP',
	due_at       {{ts}},
	reminder_at  {{ts}},
	created_at   {{ts}} NOT NULL,
	updated_at   {{ts}} NOT NULL,
	completed_at {{ts}}
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);

-- Reminders outlive their task for audit, so task_id carries no foreign key.
CREATE TABLE IF NOT EXISTS reminders (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	scheduled_at  {{ts}} NOT NULL,
	state         TEXT NOT NULL DEFAULT 'SCHEDULED',
	sent_at       {{ts}},
	delivery_mode TEXT,
	message_id    TEXT,
	retries_count INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT,
	created_at    {{ts}} NOT NULL,
	updated_at    {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reminders_state_scheduled ON reminders(state, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_one_scheduled
	ON reminders(task_id) WHERE state = 'SCHEDULED';

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	reminder_id TEXT,
	kind        TEXT NOT NULL,
	message_id  TEXT,
	error       TEXT,
	created_at  {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS jobs (
	job_key      TEXT PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	payload      TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT 'pending',
	run_at       {{ts}} NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 10,
	last_error   TEXT,
	created_at   {{ts}} NOT NULL,
	updated_at   {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_state_run_at ON jobs(state, run_at);
`,
	},
}
