package telegram

import (
	"context"
	"fmt"
	"sync"

	"fetchbot/internal/orchestrator"
)

// replaceSlots bounds how many replaceable messages are remembered per chat.
const replaceSlots = 8

type sentMessage struct {
	key       string
	messageID int64
}

// Notifier delivers orchestrator notifications as chat messages. A
// notification whose ReplaceKey matches an earlier one edits that message.
type Notifier struct {
	client *Client

	mu   sync.Mutex
	sent map[int64][]sentMessage
}

// NewNotifier wraps client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client, sent: make(map[int64][]sentMessage)}
}

// Notify implements orchestrator.Notifier.
func (n *Notifier) Notify(ctx context.Context, note orchestrator.Notification) error {
	markup := keyboard(note.Choices)
	if note.ReplaceKey != "" {
		if id, ok := n.lookup(note.UserID, note.ReplaceKey); ok {
			err := n.client.EditMessageText(ctx, note.UserID, id, note.Text, markup)
			if err == nil || IsNotModified(err) {
				return nil
			}
			n.forget(note.UserID, note.ReplaceKey)
		}
	}
	msg, err := n.client.SendMessage(ctx, note.UserID, note.Text, markup)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	if note.ReplaceKey != "" {
		n.remember(note.UserID, note.ReplaceKey, msg.MessageID)
	}
	return nil
}

func keyboard(choices []orchestrator.Choice) *InlineKeyboardMarkup {
	if len(choices) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(choices))
	for _, choice := range choices {
		rows = append(rows, []InlineKeyboardButton{{Text: choice.Label, CallbackData: callbackData(choice)}})
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (n *Notifier) lookup(chatID int64, key string) (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.sent[chatID] {
		if m.key == key {
			return m.messageID, true
		}
	}
	return 0, false
}

func (n *Notifier) remember(chatID int64, key string, messageID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	slots := n.sent[chatID]
	for i, m := range slots {
		if m.key == key {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	slots = append(slots, sentMessage{key: key, messageID: messageID})
	if len(slots) > replaceSlots {
		slots = slots[len(slots)-replaceSlots:]
	}
	n.sent[chatID] = slots
}

func (n *Notifier) forget(chatID int64, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	slots := n.sent[chatID]
	for i, m := range slots {
		if m.key == key {
			n.sent[chatID] = append(slots[:i], slots[i+1:]...)
			return
		}
	}
}
