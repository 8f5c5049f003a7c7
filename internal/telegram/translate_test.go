package telegram

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"fetchbot/internal/orchestrator"
	"fetchbot/internal/services"
)

func textUpdate(text string) Update {
	return Update{Message: &Message{From: &User{ID: 11}, Chat: Chat{ID: 11}, Text: text}}
}

func callbackUpdate(data string) Update {
	return Update{CallbackQuery: &CallbackQuery{ID: "q", From: User{ID: 11}, Data: data}}
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name   string
		update Update
		want   orchestrator.Event
	}{
		{"url", textUpdate("look https://example.com/watch?v=1 please"), orchestrator.URLSubmitted{UserID: 11, URL: "https://example.com/watch?v=1"}},
		{"start", textUpdate("/start"), orchestrator.HelpRequested{UserID: 11}},
		{"help with bot name", textUpdate("/help@fetchbot"), orchestrator.HelpRequested{UserID: 11}},
		{"cancel", textUpdate("/cancel"), orchestrator.CancelRequested{UserID: 11}},
		{"settings", textUpdate("/settings@fetchbot"), orchestrator.SettingsRequested{UserID: 11}},
		{"status", textUpdate("/status"), orchestrator.StatusRequested{UserID: 11}},
		{"chatter", textUpdate("hello there"), orchestrator.HelpRequested{UserID: 11}},
		{"format button", callbackUpdate("fmt:137+140"), orchestrator.FormatChosen{UserID: 11, FormatID: "137+140"}},
		{"cancel button", callbackUpdate("cancel"), orchestrator.CancelRequested{UserID: 11}},
		{"setting button", callbackUpdate("set:naming"), orchestrator.SettingToggled{UserID: 11, Setting: orchestrator.SettingNamingTemplate}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Translate(tc.update)
			if !ok {
				t.Fatal("expected an event")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestTranslateIgnoresNoise(t *testing.T) {
	ignored := []Update{
		{},
		textUpdate("   "),
		{Message: &Message{From: &User{ID: 1, IsBot: true}, Text: "https://example.com"}},
		callbackUpdate("fmt:"),
		callbackUpdate("bogus"),
	}
	for i, u := range ignored {
		if ev, ok := Translate(u); ok {
			t.Fatalf("update %d should be ignored, got %#v", i, ev)
		}
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []orchestrator.Event
	done   chan struct{}
	want   int
}

func (h *recordingHandler) HandleIncomingEvent(_ context.Context, ev orchestrator.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if len(h.events) == h.want {
		close(h.done)
	}
	if _, ok := ev.(orchestrator.CancelRequested); ok {
		return services.ErrNoActiveJob
	}
	return nil
}

func TestPollerDispatchesInOrderAndAdvancesOffset(t *testing.T) {
	srv, client := newAPIServer(t)
	var (
		mu    sync.Mutex
		polls int
	)
	srv.handle("getUpdates", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		switch n {
		case 1:
			writeResult(w, []Update{
				{UpdateID: 100, Message: &Message{From: &User{ID: 4}, Text: "https://example.com/a"}},
				{UpdateID: 101, CallbackQuery: &CallbackQuery{ID: "cb", From: User{ID: 4}, Data: "cancel"}},
			})
		default:
			writeResult(w, []Update{})
		}
	})

	handler := &recordingHandler{done: make(chan struct{}), want: 2}
	poller := NewPoller(client, handler, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- poller.Run(ctx) }()

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not dispatched")
	}
	cancel()
	if err := <-finished; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	handler.mu.Lock()
	first, second := handler.events[0], handler.events[1]
	handler.mu.Unlock()
	if _, ok := first.(orchestrator.URLSubmitted); !ok {
		t.Fatalf("first event should be the URL, got %#v", first)
	}
	if _, ok := second.(orchestrator.CancelRequested); !ok {
		t.Fatalf("second event should be the cancel, got %#v", second)
	}
	if poller.offset < 102 {
		t.Fatalf("offset should advance past the last update, got %d", poller.offset)
	}

	answered := false
	for _, m := range srv.methods() {
		if m == "answerCallbackQuery" {
			answered = true
		}
	}
	if !answered {
		t.Fatal("callback query should be answered")
	}
}
