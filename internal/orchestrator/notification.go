package orchestrator

import "context"

// Action is what pressing a Choice triggers.
type Action string

const (
	ActionChooseFormat  Action = "fmt"
	ActionCancel        Action = "cancel"
	ActionToggleSetting Action = "set"
)

// Choice is a button offered alongside a notification.
type Choice struct {
	Label  string
	Action Action
	Value  string
}

// Notification is one outgoing message. Messages sharing a non-empty
// ReplaceKey for the same user replace each other instead of stacking up.
type Notification struct {
	UserID     int64
	Text       string
	Choices    []Choice
	ReplaceKey string
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

const settingsKey = "settings"

func jobKey(jobID string) string { return "job:" + jobID }

func cancelChoice() Choice {
	return Choice{Label: "Cancel", Action: ActionCancel}
}
