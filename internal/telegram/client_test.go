package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fetchbot/internal/media"
	"fetchbot/internal/orchestrator"
	"fetchbot/internal/services"
	"fetchbot/internal/testsupport"
	"fetchbot/internal/upload"
)

type apiServer struct {
	t *testing.T

	mu       sync.Mutex
	calls    []string
	bodies   []map[string]any
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newAPIServer(t *testing.T) (*apiServer, *Client) {
	t.Helper()
	s := &apiServer{t: t, handlers: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Telegram.APIBaseURL = srv.URL
	cfg.Telegram.RequestsPerSecond = 1000
	return s, NewClient(cfg, srv.Client(), nil)
}

func (s *apiServer) handle(method string, h func(w http.ResponseWriter, r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *apiServer) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if !strings.HasPrefix(r.URL.Path, "/bottest-token/") {
		s.t.Errorf("unexpected path %s", r.URL.Path)
	}
	s.mu.Lock()
	s.calls = append(s.calls, method)
	h := s.handlers[method]
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.bodies = append(s.bodies, body)
	}
	s.mu.Unlock()
	if h == nil {
		writeResult(w, true)
		return
	}
	h(w, r)
}

func (s *apiServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *apiServer) lastBody() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		return nil
	}
	return s.bodies[len(s.bodies)-1]
}

func writeResult(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiResponse{OK: true, Result: raw})
}

func writeError(w http.ResponseWriter, status int, description string, retryAfter int) {
	resp := apiResponse{ErrorCode: status, Description: description}
	if retryAfter > 0 {
		resp.Parameters = &responseParameters{RetryAfter: retryAfter}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func TestSendMessageDecodesResult(t *testing.T) {
	srv, client := newAPIServer(t)
	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Message{MessageID: 41, Chat: Chat{ID: 9}})
	})

	msg, err := client.SendMessage(context.Background(), 9, "hello", &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{{Text: "A", CallbackData: "fmt:a"}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.MessageID != 41 {
		t.Fatalf("unexpected message id %d", msg.MessageID)
	}
	body := srv.lastBody()
	if body["text"] != "hello" || body["chat_id"] != float64(9) {
		t.Fatalf("unexpected request body %v", body)
	}
	if _, ok := body["reply_markup"]; !ok {
		t.Fatal("expected reply markup in request")
	}
}

func TestErrorClassification(t *testing.T) {
	srv, client := newAPIServer(t)
	ctx := context.Background()

	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusTooManyRequests, "Too Many Requests: retry after 7", 7)
	})
	_, err := client.SendMessage(ctx, 1, "x", nil)
	var hinted *services.RetryAfterError
	if !errors.As(err, &hinted) || hinted.After != 7*time.Second {
		t.Fatalf("expected retry-after hint of 7s, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatalf("rate limit should be retryable: %v", err)
	}

	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadGateway, "Bad Gateway", 0)
	})
	_, err = client.SendMessage(ctx, 1, "x", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("5xx should be transient, got %v", err)
	}

	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "Bad Request: chat not found", 0)
	})
	_, err = client.SendMessage(ctx, 1, "x", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatalf("4xx should be permanent: %v", err)
	}

	srv.handle("editMessageText", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "Bad Request: message is not modified", 0)
	})
	if err := client.EditMessageText(ctx, 1, 2, "x", nil); !IsNotModified(err) {
		t.Fatalf("expected not-modified error, got %v", err)
	}
}

func TestCancelledContextIsCancellation(t *testing.T) {
	_, client := newAPIServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GetMe(ctx); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSendFileStreamsMultipart(t *testing.T) {
	srv, client := newAPIServer(t)
	var (
		mu       sync.Mutex
		got      = map[string]string{}
		fileName string
		received int
	)
	handler := func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			if part.FileName() != "" {
				fileName = part.FileName()
				received = len(data)
				got["file_field"] = part.FormName()
				continue
			}
			got[part.FormName()] = string(data)
		}
		writeResult(w, Message{MessageID: 77})
	}
	srv.handle("sendVideo", handler)
	srv.handle("sendAudio", handler)

	path := testsupport.NewConfig(t).Paths.EphemeralDir + "/clip.mp4"
	testsupport.WriteFile(t, path, 64*1024)

	var lastSent, lastTotal int64
	id, err := client.SendFile(context.Background(), upload.File{
		Destination: upload.Destination{ChatID: 5, FileName: "Clip.mp4", Kind: media.KindVideo},
		Path:        path,
		Size:        64 * 1024,
		Caption:     "Clip",
	}, func(sent, total int64) { lastSent, lastTotal = sent, total })
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if id != "77" {
		t.Fatalf("unexpected delivery id %q", id)
	}
	mu.Lock()
	if got["file_field"] != "video" || got["chat_id"] != "5" || got["caption"] != "Clip" || got["supports_streaming"] != "true" {
		t.Fatalf("unexpected form fields %v", got)
	}
	if fileName != "Clip.mp4" || received != 64*1024 {
		t.Fatalf("unexpected file part %q (%d bytes)", fileName, received)
	}
	mu.Unlock()
	if lastSent != 64*1024 || lastTotal != 64*1024 {
		t.Fatalf("unexpected progress %d/%d", lastSent, lastTotal)
	}

	if _, err := client.SendFile(context.Background(), upload.File{
		Destination: upload.Destination{ChatID: 5, FileName: "Clip.m4a", Kind: media.KindAudio},
		Path:        path,
	}, nil); err != nil {
		t.Fatalf("SendFile audio: %v", err)
	}
	methods := srv.methods()
	if methods[len(methods)-1] != "sendAudio" {
		t.Fatalf("audio should use sendAudio, got %v", methods)
	}
}

func TestSendMethodSelection(t *testing.T) {
	cases := []struct {
		dest   upload.Destination
		method string
	}{
		{upload.Destination{Kind: media.KindAudio, AsDocument: true}, "sendAudio"},
		{upload.Destination{Kind: media.KindVideo, AsDocument: true}, "sendDocument"},
		{upload.Destination{Kind: media.KindVideo}, "sendVideo"},
	}
	for _, tc := range cases {
		if method, _ := sendMethod(tc.dest); method != tc.method {
			t.Fatalf("%+v: got %s, want %s", tc.dest, method, tc.method)
		}
	}
}

func TestNotifierEditsReplaceableMessages(t *testing.T) {
	srv, client := newAPIServer(t)
	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Message{MessageID: 10})
	})
	notifier := NewNotifier(client)
	ctx := context.Background()

	send := func(text, key string, choices ...orchestrator.Choice) {
		t.Helper()
		if err := notifier.Notify(ctx, orchestrator.Notification{UserID: 3, Text: text, ReplaceKey: key, Choices: choices}); err != nil {
			t.Fatalf("Notify(%q): %v", text, err)
		}
	}
	send("Looking up formats…", "request:1")
	send("Pick one", "request:1", orchestrator.Choice{Label: "Video 720p", Action: orchestrator.ActionChooseFormat, Value: "22"})
	body := srv.lastBody()
	if body["message_id"] != float64(10) {
		t.Fatalf("second notification should edit message 10, got %v", body)
	}
	markup, _ := body["reply_markup"].(map[string]any)
	rows, _ := markup["inline_keyboard"].([]any)
	if len(rows) != 1 {
		t.Fatalf("unexpected keyboard %v", markup)
	}
	button := rows[0].([]any)[0].(map[string]any)
	if button["callback_data"] != "fmt:22" {
		t.Fatalf("unexpected callback data %v", button)
	}

	send("Unrelated", "")
	want := []string{"sendMessage", "editMessageText", "sendMessage"}
	if got := srv.methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestNotifierFallsBackToSendWhenEditFails(t *testing.T) {
	srv, client := newAPIServer(t)
	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Message{MessageID: 10})
	})
	srv.handle("editMessageText", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "Bad Request: message to edit not found", 0)
	})
	notifier := NewNotifier(client)
	ctx := context.Background()
	note := orchestrator.Notification{UserID: 3, Text: "a", ReplaceKey: "job:1"}
	if err := notifier.Notify(ctx, note); err != nil {
		t.Fatal(err)
	}
	note.Text = "b"
	if err := notifier.Notify(ctx, note); err != nil {
		t.Fatalf("fallback send should succeed: %v", err)
	}
	want := "sendMessage,editMessageText,sendMessage"
	if got := strings.Join(srv.methods(), ","); got != want {
		t.Fatalf("unexpected calls %s", got)
	}
}

func TestNotifierIgnoresNotModified(t *testing.T) {
	srv, client := newAPIServer(t)
	srv.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Message{MessageID: 10})
	})
	srv.handle("editMessageText", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "Bad Request: message is not modified", 0)
	})
	notifier := NewNotifier(client)
	note := orchestrator.Notification{UserID: 3, Text: "same", ReplaceKey: "job:1"}
	for i := 0; i < 2; i++ {
		if err := notifier.Notify(context.Background(), note); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}
	if got := strings.Join(srv.methods(), ","); got != "sendMessage,editMessageText" {
		t.Fatalf("unexpected calls %s", got)
	}
}
