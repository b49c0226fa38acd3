// Package interpreter turns inbound chat text into a ParsedIntent: a
// deterministic rule pass, title extraction, date/time resolution and an
// optional language-model fallback for low-confidence messages.
package interpreter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/llm"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/temporal"
)

const defaultEscalationTimeout = 15 * time.Second

// Interpreter parses chat messages. It is safe for concurrent use.
type Interpreter struct {
	resolver  *temporal.Resolver
	defaults  *temporal.DefaultTime
	completer llm.Completer
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithCompleter enables escalation of low-confidence messages to a language
// model.
func WithCompleter(c llm.Completer) Option {
	return func(i *Interpreter) { i.completer = c }
}

// WithDefaultTime makes date-only phrases ("tomorrow", "on friday") produce
// a reminder at the given clock time. Without it such phrases set no
// reminder.
func WithDefaultTime(d temporal.DefaultTime) Option {
	return func(i *Interpreter) { i.defaults = &d }
}

// WithEscalationThreshold sets the confidence below which the language model
// is consulted.
func WithEscalationThreshold(t float64) Option {
	return func(i *Interpreter) { i.threshold = t }
}

// WithLogger sets the logger used for escalation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		resolver:  temporal.NewResolver(),
		threshold: DefaultEscalationLevel,
		timeout:   defaultEscalationTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Parse interprets text for a user in timezone tz at time ref. It never
// fails: the worst case is an unknown intent or a low-confidence draft.
func (i *Interpreter) Parse(ctx context.Context, text, tz string, ref time.Time) ParsedIntent {
	ref = ref.In(temporal.LoadLocation(tz))

	pi := classify(text)
	pi.Text = text
	if pi.Intent == IntentCreateTask {
		i.attachTimes(&pi, text, ref)
	}

	if pi.Confidence < i.threshold && i.completer != nil {
		if esc, ok := i.escalate(ctx, text, tz, ref, pi); ok {
			esc.Text = text
			return esc
		}
	}
	return pi
}

// attachTimes resolves the message's date/time into the draft and removes
// any calendar phrase the title rules missed. Ideas never carry a reminder,
// and a moment that already passed is dropped.
func (i *Interpreter) attachTimes(pi *ParsedIntent, text string, ref time.Time) {
	res := i.resolver.Resolve(text, ref)
	if res.Phrase != "" {
		pi.Task.Title = stripPhrase(pi.Task.Title, res.Phrase)
	}
	if pi.Task.Status == model.TaskStatusIdea {
		return
	}

	at, ok := i.moment(res, ref)
	if !ok {
		return
	}
	if at.Before(ref) {
		pi.ReminderSkipped = true
		return
	}
	pi.Task.DueAt = &at
	pi.Task.ReminderAt = &at
}

func (i *Interpreter) resolve(text string, ref time.Time) (time.Time, bool) {
	return i.moment(i.resolver.Resolve(text, ref), ref)
}

// moment turns a resolution into a reminder time, applying the default-time
// policy when the phrase named a day but no hour.
func (i *Interpreter) moment(res temporal.Resolution, ref time.Time) (time.Time, bool) {
	if !res.Found {
		return time.Time{}, false
	}
	if !res.HourCertain {
		if i.defaults == nil {
			return time.Time{}, false
		}
		res = i.defaults.Apply(res, ref)
	}
	return res.At, true
}
