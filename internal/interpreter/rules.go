package interpreter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/temporal"
)

var moveRe = regexp.MustCompile(`(?i)^move\s+(.+?)\s+to\s+(ideas?|todo|done)\s*$`)

var commands = map[string]ParsedIntent{
	"list":       {Intent: IntentListTasks, ListStatus: model.TaskStatusTodo},
	"tasks":      {Intent: IntentListTasks, ListStatus: model.TaskStatusTodo},
	"show tasks": {Intent: IntentListTasks, ListStatus: model.TaskStatusTodo},
	"ideas":      {Intent: IntentListTasks, ListStatus: model.TaskStatusIdea},
	"show ideas": {Intent: IntentListTasks, ListStatus: model.TaskStatusIdea},
	"help":       {Intent: IntentHelp},
	"?":          {Intent: IntentHelp},
	"settings":   {Intent: IntentSetPref},
}

// classify runs the deterministic rules. For create_task it fills in the
// title and status but leaves times to the caller.
func classify(text string) ParsedIntent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	if lower == "" {
		return ParsedIntent{Intent: IntentUnknown}
	}

	if pi, ok := commands[lower]; ok {
		pi.Confidence = ConfidenceCommand
		return pi
	}

	if ref, ok := cutCommand(trimmed, lower, "done"); ok {
		return ParsedIntent{Intent: IntentMarkDone, TaskRef: ref, Confidence: ConfidenceAction}
	}

	if strings.HasPrefix(lower, "snooze") {
		pi := ParsedIntent{Intent: IntentSnooze, Confidence: ConfidenceAction}
		if temporal.HasSnoozeDuration(lower) {
			minutes := temporal.ParseSnoozeMinutes(lower)
			pi.SnoozeMinutes = &minutes
		}
		return pi
	}

	if m := moveRe.FindStringSubmatch(trimmed); m != nil {
		ref := strings.TrimSpace(m[1])
		switch strings.ToLower(m[2]) {
		case "done":
			return ParsedIntent{Intent: IntentMarkDone, TaskRef: ref, Confidence: ConfidenceMove}
		case "todo":
			return ParsedIntent{Intent: IntentMoveTask, TaskRef: ref, MoveTo: model.TaskStatusTodo, Confidence: ConfidenceMove}
		default:
			return ParsedIntent{Intent: IntentMoveTask, TaskRef: ref, MoveTo: model.TaskStatusIdea, Confidence: ConfidenceMove}
		}
	}

	switch {
	case strings.HasPrefix(lower, "idea:") || strings.Contains(lower, "brainstorm"):
		return draft(trimmed, model.TaskStatusIdea)
	case strings.HasPrefix(lower, "todo:") || strings.HasPrefix(lower, "task:"):
		return draft(trimmed, model.TaskStatusTodo)
	case strings.Contains(lower, "remind me") || strings.Contains(lower, "reminder"):
		return draft(trimmed, model.TaskStatusTodo)
	}

	pi := draft(trimmed, model.TaskStatusTodo)
	pi.Confidence = ConfidenceDefault
	return pi
}

// cutCommand matches "<word>" followed by the end of the text, whitespace
// or punctuation ("done", "Done!", "done: milk", "done, milk"), returning the
// rest with its original casing and without surrounding punctuation.
func cutCommand(trimmed, lower, word string) (string, bool) {
	if !strings.HasPrefix(lower, word) {
		return "", false
	}
	rest := trimmed[len(word):]
	if rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return "", false
		}
	}
	return strings.TrimRight(strings.TrimLeft(rest, commandPunct+" \t"), commandPunct+" \t"), true
}

const commandPunct = ".,;:!?-"

func draft(text string, status model.TaskStatus) ParsedIntent {
	title := ExtractTitle(text)
	confidence := ConfidenceTitled
	if title == "" {
		title = text
		confidence = ConfidenceUntitled
	}
	return ParsedIntent{
		Intent:     IntentCreateTask,
		Task:       &TaskDraft{Title: title, Status: status},
		Confidence: confidence,
	}
}
