// Package mobile is a small W3C WebDriver client, enough to drive an Appium
// server: create a session, locate elements, read and act on them.
package mobile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// elementKey is the W3C web element identifier.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// legacyElementKey is what JSONWP servers return.
const legacyElementKey = "ELEMENT"

// Capabilities are the desired session capabilities, e.g.
// {"platformName": "Android", "appium:app": "/path/app.apk"}.
type Capabilities map[string]any

// Client talks to one WebDriver server.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient returns a client for the server at baseURL, e.g.
// http://127.0.0.1:4723.
func NewClient(baseURL string, l *zap.Logger) *Client {
	if l == nil {
		l = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     l,
	}
}

// NewSession creates a session with caps as the alwaysMatch set.
func (c *Client) NewSession(ctx context.Context, caps Capabilities) (*Session, error) {
	body := map[string]any{
		"capabilities": map[string]any{"alwaysMatch": caps},
	}
	var reply struct {
		SessionID    string         `json:"sessionId"`
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", body, &reply); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if reply.SessionID == "" {
		return nil, fmt.Errorf("create session: server returned no session id")
	}

	platform, _ := reply.Capabilities["platformName"].(string)
	if platform == "" {
		platform, _ = caps["platformName"].(string)
	}
	c.log.Debug("mobile session created", zap.String("session", reply.SessionID), zap.String("platform", platform))
	return &Session{client: c, id: reply.SessionID, platform: strings.ToLower(platform)}, nil
}

// do sends a WebDriver command and decodes the "value" member of the reply
// into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode reply (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		wdErr := &Error{Status: resp.StatusCode}
		json.Unmarshal(envelope.Value, wdErr)
		if wdErr.Code == "" {
			wdErr.Code = "unknown error"
		}
		return wdErr
	}

	if out == nil || len(envelope.Value) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Value, out)
}

func escape(s string) string {
	return url.PathEscape(s)
}
