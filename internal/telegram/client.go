package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fetchbot/internal/config"
	"fetchbot/internal/logging"
	"fetchbot/internal/services"
)

const userAgent = "Fetchbot-Go/0.1.0"

// APIError is a Bot API failure reply.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.StatusCode, e.Description)
}

// Client calls the Bot API. Requests are paced by a token bucket shared by
// every caller.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds a client from configuration. A nil httpClient uses a
// client without an overall timeout; long polls and uploads bound themselves
// through their contexts.
func NewClient(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rps := cfg.Telegram.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		base:    strings.TrimRight(cfg.Telegram.APIBaseURL, "/") + "/bot" + cfg.Telegram.BotToken,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logging.NewComponentLogger(logger, "telegram"),
	}
}

func (c *Client) endpoint(method string) string {
	return c.base + "/" + method
}

// call posts params as JSON and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return services.ContextError(ctx)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, method, req, out)
}

func (c *Client) do(ctx context.Context, method string, req *http.Request, out any) error {
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := services.ContextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return services.Transient(fmt.Errorf("telegram %s: %w", method, err))
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&decoded); err != nil {
		if resp.StatusCode >= 500 {
			return services.Transient(&APIError{Method: method, StatusCode: resp.StatusCode, Description: resp.Status})
		}
		return fmt.Errorf("decode telegram %s response: %w", method, err)
	}
	if !decoded.OK || resp.StatusCode >= 300 {
		return classify(method, resp.StatusCode, decoded)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode telegram %s result: %w", method, err)
	}
	return nil
}

func classify(method string, status int, resp apiResponse) error {
	if resp.ErrorCode != 0 {
		status = resp.ErrorCode
	}
	apiErr := &APIError{Method: method, StatusCode: status, Description: resp.Description}
	switch {
	case status == http.StatusTooManyRequests:
		after := time.Second
		if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
			after = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return &services.RetryAfterError{After: after, Err: apiErr}
	case status >= 500:
		return services.Transient(apiErr)
	default:
		return apiErr
	}
}

// IsNotModified reports whether err is the edit-without-change reply.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", struct{}{}, &me)
	return me, err
}

// Username returns the bot's username. It is the preflight token probe.
func (c *Client) Username(ctx context.Context) (string, error) {
	me, err := c.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	err := c.call(ctx, "getUpdates", params, &updates)
	return updates, err
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (Message, error) {
	params := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var msg Message
	err := c.call(ctx, "sendMessage", params, &msg)
	return msg, err
}

// EditMessageText replaces the text and buttons of a sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id":                  chatID,
		"message_id":               messageID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if markup != nil {
		params["reply_markup"] = markup
	} else {
		params["reply_markup"] = InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}}
	}
	return c.call(ctx, "editMessageText", params, nil)
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := map[string]any{"callback_query_id": queryID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}
