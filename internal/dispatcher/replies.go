package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/temporal"
)

const helpText = `Here's what I can do:
• "remind me tomorrow at 9 to call mom" adds a task with a reminder
• "todo: buy milk" adds a task
• "idea: newsletter app" saves an idea
• "list" shows your tasks, "ideas" shows your ideas
• "done" or "done buy milk" completes a task
• "snooze 30m", "snooze 2h" or "snooze tomorrow" pushes a reminder back`

const (
	emptyTitleReply = `I couldn't tell what the task is. Try something like "remind me at 5pm to call mom".`
	failureReply    = "Something went wrong on my side. Please try again in a moment."
)

func createdReply(task *model.Task, reminderSet, skipped bool, now time.Time) string {
	if task.Status == model.TaskStatusIdea {
		return "💡 Idea saved: " + task.Title
	}

	var b strings.Builder
	b.WriteString("📝 Added: " + task.Title)
	switch {
	case reminderSet:
		fmt.Fprintf(&b, "\n⏰ I'll remind you %s.", temporal.HumanTime(task.ReminderAt.In(now.Location()), now))
	case skipped:
		b.WriteString("\nThat time has already passed, so I didn't set a reminder.")
	}
	return b.String()
}

func listReply(status model.TaskStatus, tasks []model.Task, total int, now time.Time) string {
	if total == 0 {
		if status == model.TaskStatusIdea {
			return `No ideas yet. Start a message with "idea:" to save one.`
		}
		return `No open tasks. Send me something like "todo: buy milk".`
	}

	var b strings.Builder
	if status == model.TaskStatusIdea {
		fmt.Fprintf(&b, "💡 Your ideas (%d):", total)
	} else {
		fmt.Fprintf(&b, "📋 Your tasks (%d):", total)
	}
	for i, t := range tasks {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t.Title)
		if t.ReminderAt != nil && t.ReminderAt.After(now) {
			fmt.Fprintf(&b, " (⏰ %s)", temporal.HumanTime(t.ReminderAt.In(now.Location()), now))
		}
	}
	if total > len(tasks) {
		fmt.Fprintf(&b, "\n...and %d more", total-len(tasks))
	}
	return b.String()
}

func boardReply(dashboardURL, taskID string) string {
	link := strings.TrimRight(dashboardURL, "/")
	if taskID != "" {
		link += "/tasks/" + taskID
	}
	return "Editing and moving tasks happens on the board: " + link
}

func settingsReply(dashboardURL string) string {
	return "Change your timezone and preferences here: " + strings.TrimRight(dashboardURL, "/") + "/settings"
}
