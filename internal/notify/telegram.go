package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Telegram notifies the operator chat through the Bot API.
type Telegram struct {
	apiURL string
	chatID string
	httpc  *http.Client
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithAPIURL overrides the Bot API base URL (tests).
func WithAPIURL(u string) TelegramOption {
	return func(t *Telegram) { t.apiURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpc *http.Client) TelegramOption {
	return func(t *Telegram) { t.httpc = httpc }
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		apiURL: "https://api.telegram.org/bot" + token,
		chatID: chatID,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encoding telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sending telegram message: HTTP %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
