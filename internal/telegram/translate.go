package telegram

import (
	"regexp"
	"strings"

	"fetchbot/internal/orchestrator"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Translate maps an update onto an orchestrator event. Updates that carry
// nothing actionable report false.
func Translate(u Update) (orchestrator.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		return translateCallback(u.CallbackQuery)
	case u.Message != nil:
		return translateMessage(u.Message)
	default:
		return nil, false
	}
}

func translateMessage(m *Message) (orchestrator.Event, bool) {
	if m.From == nil || m.From.IsBot {
		return nil, false
	}
	userID := m.From.ID
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil, false
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		if at := strings.Index(command, "@"); at > 0 {
			command = command[:at]
		}
		switch strings.ToLower(command) {
		case "/cancel":
			return orchestrator.CancelRequested{UserID: userID}, true
		case "/settings":
			return orchestrator.SettingsRequested{UserID: userID}, true
		case "/status":
			return orchestrator.StatusRequested{UserID: userID}, true
		default:
			return orchestrator.HelpRequested{UserID: userID}, true
		}
	}
	if link := urlPattern.FindString(text); link != "" {
		return orchestrator.URLSubmitted{UserID: userID, URL: link}, true
	}
	return orchestrator.HelpRequested{UserID: userID}, true
}

func translateCallback(q *CallbackQuery) (orchestrator.Event, bool) {
	userID := q.From.ID
	action, value, _ := strings.Cut(q.Data, ":")
	switch orchestrator.Action(action) {
	case orchestrator.ActionChooseFormat:
		if value == "" {
			return nil, false
		}
		return orchestrator.FormatChosen{UserID: userID, FormatID: value}, true
	case orchestrator.ActionCancel:
		return orchestrator.CancelRequested{UserID: userID}, true
	case orchestrator.ActionToggleSetting:
		return orchestrator.SettingToggled{UserID: userID, Setting: orchestrator.Setting(value)}, true
	default:
		return nil, false
	}
}

// callbackData encodes a choice as button payload.
func callbackData(choice orchestrator.Choice) string {
	if choice.Value == "" {
		return string(choice.Action)
	}
	return string(choice.Action) + ":" + choice.Value
}
