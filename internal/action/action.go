// Package action encodes and decodes the ids carried by interactive button
// and list replies.
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nhle/chattask/internal/temporal"
)

// Kind is the action carried by an interactive button or list reply.
type Kind string

const (
	Done       Kind = "done"
	SnoozeMenu Kind = "snooze_menu"
	Snooze     Kind = "snooze"
	Edit       Kind = "edit"
)

// Action is a decoded interactive reply id.
type Action struct {
	Kind   Kind
	TaskID string

	// SnoozeMinutes is set for Snooze: a positive minute count or
	// temporal.SnoozeNextDay.
	SnoozeMinutes int
}

// SnoozeChoice is one entry of the fixed snooze menu.
type SnoozeChoice struct {
	Minutes int
	Label   string
}

// SnoozeChoices are the durations offered by the snooze menu and accepted in
// reply ids.
var SnoozeChoices = []SnoozeChoice{
	{Minutes: 15, Label: "15 minutes"},
	{Minutes: 60, Label: "1 hour"},
	{Minutes: 180, Label: "3 hours"},
	{Minutes: temporal.SnoozeNextDay, Label: "Tomorrow"},
}

const replyPrefix = "action_"

// Parse decodes ids of the form <action>_<subaction?>_<taskId>, with
// an optional "action_" prefix.
func Parse(id string) (Action, error) {
	s := strings.TrimPrefix(strings.TrimSpace(id), replyPrefix)
	kind, rest, ok := strings.Cut(s, "_")
	if !ok || rest == "" {
		return Action{}, fmt.Errorf("malformed reply id %q", id)
	}

	switch kind {
	case "done":
		return Action{Kind: Done, TaskID: rest}, nil
	case "edit":
		return Action{Kind: Edit, TaskID: rest}, nil
	case "snooze":
		sub, taskID, ok := strings.Cut(rest, "_")
		if !ok {
			return Action{Kind: SnoozeMenu, TaskID: rest}, nil
		}
		minutes, valid := snoozeSubaction(sub)
		if !valid || taskID == "" {
			return Action{}, fmt.Errorf("malformed snooze reply id %q", id)
		}
		return Action{Kind: Snooze, TaskID: taskID, SnoozeMinutes: minutes}, nil
	default:
		return Action{}, fmt.Errorf("unknown reply action %q", kind)
	}
}

func snoozeSubaction(sub string) (int, bool) {
	if sub == "tomorrow" {
		return temporal.SnoozeNextDay, true
	}
	n, err := strconv.Atoi(sub)
	if err != nil {
		return 0, false
	}
	for _, c := range SnoozeChoices {
		if c.Minutes == n {
			return n, true
		}
	}
	return 0, false
}

// ID encodes the action back into a reply id.
func (a Action) ID() string {
	switch a.Kind {
	case Snooze:
		sub := strconv.Itoa(a.SnoozeMinutes)
		if a.SnoozeMinutes == temporal.SnoozeNextDay {
			sub = "tomorrow"
		}
		return "snooze_" + sub + "_" + a.TaskID
	case SnoozeMenu:
		return "snooze_" + a.TaskID
	default:
		return string(a.Kind) + "_" + a.TaskID
	}
}
