package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"polyedge/internal/pkg/backoff"
)

// Telegram pushes risk alerts and trigger notifications to a chat.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client
	retry    backoff.Policy
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 15 * time.Second},
		retry:    backoff.Policy{Initial: time.Second, Max: 8 * time.Second, Multiplier: 2.0, MaxAttempts: 3},
	}
}

// SendText sends a text message, retrying transient failures.
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return t.retry.Retry(ctx, func() error {
		return t.send(url, body)
	}, func(err error) bool {
		var bad badStatusError
		if errors.As(err, &bad) {
			// 4xx means the request itself is wrong; retrying cannot help.
			return bad.code/100 != 4
		}
		return true
	})
}

func (t *Telegram) send(url string, body []byte) error {
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return badStatusError{code: resp.StatusCode}
	}
	return nil
}

type badStatusError struct {
	code int
}

func (e badStatusError) Error() string {
	return fmt.Sprintf("telegram status=%d", e.code)
}
