// Package smsfly sends SMS through the SMS-Fly v2 API.
package smsfly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client sends messages through a single SMS-Fly account.
type Client struct {
	apiURL string
	key    string
	source string
	httpc  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a Client. source is the alphanumeric sender name shown to
// the recipient; the gateway rejects names it has not approved.
func New(apiURL, key, source string, opts ...ClientOption) *Client {
	c := &Client{
		apiURL: apiURL,
		key:    key,
		source: source,
		httpc:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Auth   auth    `json:"auth"`
	Action string  `json:"action"`
	Data   payload `json:"data"`
}

type auth struct {
	Key string `json:"key"`
}

type payload struct {
	Recipient string   `json:"recipient"`
	Channels  []string `json:"channels"`
	SMS       sms      `json:"sms"`
}

type sms struct {
	Source    string `json:"source"`
	Text      string `json:"text"`
	StartTime string `json:"start_time"`
}

// Send delivers text to recipient (international 380XXXXXXXXX form).
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(request{
		Auth:   auth{Key: c.key},
		Action: "SENDMESSAGE",
		Data: payload{
			Recipient: recipient,
			Channels:  []string{"sms"},
			SMS: sms{
				Source:    c.source,
				Text:      text,
				StartTime: "AUTO",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encoding SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending SMS: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading SMS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sending SMS: HTTP %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Success int `json:"success"`
		Error   struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parsing SMS response: %w", err)
	}
	if result.Success != 1 {
		if result.Error.Description != "" {
			return fmt.Errorf("SMS rejected: %s", result.Error.Description)
		}
		return fmt.Errorf("SMS rejected: %s", respBody)
	}
	return nil
}
