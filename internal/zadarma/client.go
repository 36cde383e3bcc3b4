// Package zadarma is a minimal client for the Zadarma API, covering the
// signed callback request the bridge dispatches for relay actions.
package zadarma

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const callbackMethod = "/v1/request/callback/"

// Client signs and sends Zadarma API requests.
type Client struct {
	key       string
	secret    string
	mainPhone string
	baseURL   string
	httpc     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (sandbox, tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a Client. mainPhone is the account number callbacks
// originate from.
func New(key, secret, mainPhone string, opts ...ClientOption) *Client {
	c := &Client{
		key:       key,
		secret:    secret,
		mainPhone: mainPhone,
		baseURL:   "https://api.zadarma.com",
		httpc:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestCallback asks the PBX to bridge a call from the main phone to
// the target number. A nil return means the provider accepted the
// request, not that the call completed; completion arrives later as a
// webhook event.
func (c *Client) RequestCallback(ctx context.Context, to string) error {
	params := url.Values{}
	params.Set("from", c.mainPhone)
	params.Set("to", to)
	params.Set("format", "json")

	body, err := c.get(ctx, callbackMethod, params)
	if err != nil {
		return err
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing callback response: %w", err)
	}
	if resp.Status != "success" {
		if resp.Message != "" {
			return fmt.Errorf("callback rejected: %s", resp.Message)
		}
		return fmt.Errorf("callback rejected: status %q", resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values) ([]byte, error) {
	// url.Values.Encode sorts keys, which the signature scheme requires.
	paramsString := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+method+"?"+paramsString, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", c.authorization(method, paramsString))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calling %s: HTTP %d: %s", method, resp.StatusCode, body)
	}
	return body, nil
}

// authorization builds the "key:signature" header value. The scheme is
// the provider's: sign method + params + md5hex(params) with HMAC-SHA1,
// then base64 the hex digest (not the raw MAC).
func (c *Client) authorization(method, paramsString string) string {
	sum := md5.Sum([]byte(paramsString))
	toSign := method + paramsString + hex.EncodeToString(sum[:])

	mac := hmac.New(sha1.New, []byte(c.secret))
	mac.Write([]byte(toSign))
	hexDigest := hex.EncodeToString(mac.Sum(nil))

	signature := base64.StdEncoding.EncodeToString([]byte(hexDigest))
	return c.key + ":" + signature
}
