package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/emulation"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// CDPDriver opens a fresh tab per session in an already running Chrome,
// speaking the DevTools protocol.
type CDPDriver struct {
	log *zap.Logger
}

// NewCDPDriver returns a driver that logs to l (nil for no logging).
func NewCDPDriver(l *zap.Logger) *CDPDriver {
	if l == nil {
		l = zap.NewNop()
	}
	return &CDPDriver{log: l}
}

// Launch creates a tab, connects to it and applies opts.
func (d *CDPDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	if opts.DevToolsURL == "" {
		opts.DevToolsURL = DefaultOptions().DevToolsURL
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultOptions().LoadTimeout
	}

	dt := devtool.New(opts.DevToolsURL)
	target, err := dt.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create target at %s: %v", ErrUnavailable, opts.DevToolsURL, err)
	}

	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		dt.Close(context.Background(), target)
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, target.WebSocketDebuggerURL, err)
	}

	s := &cdpSession{
		devtools: dt,
		target:   target,
		conn:     conn,
		client:   cdp.NewClient(conn),
		opts:     opts,
		log:      d.log.With(zap.String("target", string(target.ID))),
	}
	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Debug("browser session opened")
	return s, nil
}

type cdpSession struct {
	devtools *devtool.DevTools
	target   *devtool.Target
	conn     *rpcc.Conn
	client   *cdp.Client
	opts     Options
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *cdpSession) setup(ctx context.Context) error {
	if err := s.client.Page.Enable(ctx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := s.client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("enable runtime domain: %w", err)
	}
	if err := s.client.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}

	if len(s.opts.Headers) > 0 {
		raw, err := json.Marshal(s.opts.Headers)
		if err != nil {
			return err
		}
		if err := s.client.Network.SetExtraHTTPHeaders(ctx, network.NewSetExtraHTTPHeadersArgs(network.Headers(raw))); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}
	if s.opts.UserAgent != "" {
		if err := s.client.Emulation.SetUserAgentOverride(ctx, emulation.NewSetUserAgentOverrideArgs(s.opts.UserAgent)); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	return nil
}

func (s *cdpSession) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *cdpSession) Navigate(ctx context.Context, url string) (*ir.Response, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	for name, value := range s.opts.Cookies {
		if _, err := s.client.Network.SetCookie(ctx, network.NewSetCookieArgs(name, value).SetURL(url)); err != nil {
			return nil, fmt.Errorf("set cookie %s: %w", name, err)
		}
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.opts.LoadTimeout)
	defer cancel()

	loaded, err := s.client.Page.LoadEventFired(loadCtx)
	if err != nil {
		return nil, err
	}
	defer loaded.Close()

	responses, err := s.client.Network.ResponseReceived(loadCtx)
	if err != nil {
		return nil, err
	}
	defer responses.Close()

	start := time.Now()
	nav, err := s.client.Page.Navigate(loadCtx, page.NewNavigateArgs(url))
	if err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if nav.ErrorText != nil && *nav.ErrorText != "" {
		return nil, &NavigationError{URL: url, Text: *nav.ErrorText}
	}

	// Collect the main document response until the load event fires.
	docs := make(chan *network.ResponseReceivedReply, 1)
	go func() {
		for {
			ev, err := responses.Recv()
			if err != nil {
				return
			}
			if ev.Type == network.ResourceTypeDocument && (ev.FrameID == nil || *ev.FrameID == nav.FrameID) {
				select {
				case docs <- ev:
				default:
				}
			}
		}
	}()

	if _, err := loaded.Recv(); err != nil {
		return nil, fmt.Errorf("wait for load of %s: %w", url, err)
	}

	resp := &ir.Response{URL: url, Status: http.StatusOK, StatusMessage: "OK", Headers: http.Header{}}
	select {
	case ev := <-docs:
		resp.URL = ev.Response.URL
		resp.Status = ev.Response.Status
		resp.StatusMessage = ev.Response.StatusText
		resp.Headers = headersFromJSON(ev.Response.Headers)
		if resp.Headers.Get("Content-Type") == "" && ev.Response.MimeType != "" {
			resp.Headers.Set("Content-Type", ev.Response.MimeType)
		}
	case <-time.After(50 * time.Millisecond):
		// data: and about: URLs produce no network response
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	resp.Body = []byte(html)
	resp.SizeBytes = int64(len(resp.Body))
	resp.Latency = time.Since(start)
	if cookies, err := s.Cookies(ctx); err == nil {
		resp.Cookies = cookies
	}

	s.log.Debug("page loaded", zap.String("url", resp.URL), zap.Int("status", resp.Status), zap.Duration("latency", resp.Latency))
	return resp, nil
}

func (s *cdpSession) HTML(ctx context.Context) (string, error) {
	raw, err := s.Evaluate(ctx, htmlScript)
	if err != nil {
		return "", err
	}
	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", fmt.Errorf("decode document html: %w", err)
	}
	return html, nil
}

func (s *cdpSession) Evaluate(ctx context.Context, expr string, args ...any) (json.RawMessage, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	full, err := buildExpression(expr, args)
	if err != nil {
		return nil, err
	}

	reply, err := s.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(full).SetReturnByValue(true).SetAwaitPromise(true))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if reply.ExceptionDetails != nil {
		msg := reply.ExceptionDetails.Text
		if ex := reply.ExceptionDetails.Exception; ex != nil && ex.Description != nil {
			msg = *ex.Description
		}
		return nil, &ScriptError{Expression: expr, Message: msg}
	}
	if len(reply.Result.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return reply.Result.Value, nil
}

func (s *cdpSession) Click(ctx context.Context, selector string) error {
	return s.onElement(ctx, clickScript, selector)
}

func (s *cdpSession) Type(ctx context.Context, selector, text string) error {
	if err := s.onElement(ctx, focusScript, selector); err != nil {
		return err
	}
	if err := s.client.Input.InsertText(ctx, input.NewInsertTextArgs(text)); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}
	return nil
}

func (s *cdpSession) onElement(ctx context.Context, script, selector string) error {
	raw, err := s.Evaluate(ctx, script, selector)
	if err != nil {
		return err
	}
	var found bool
	json.Unmarshal(raw, &found)
	if !found {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

func (s *cdpSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	reply, err := s.client.Page.CaptureScreenshot(ctx, page.NewCaptureScreenshotArgs().SetFormat("png"))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return reply.Data, nil
}

func (s *cdpSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	reply, err := s.client.Network.GetCookies(ctx, network.NewGetCookiesArgs())
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return convertCookies(reply.Cookies), nil
}

func convertCookies(in []network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// Close disconnects and closes the tab. It is safe to call twice.
func (s *cdpSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	if cerr := s.devtools.Close(context.Background(), s.target); cerr != nil && err == nil {
		err = cerr
	}
	s.log.Debug("browser session closed")
	return err
}
