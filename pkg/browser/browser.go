// Package browser is the browser-driver collaborator: it launches a page,
// navigates it and exposes the resulting document and a small set of
// actions.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// Options configure one browser session.
type Options struct {
	// DevToolsURL is the HTTP endpoint of a Chrome started with
	// --remote-debugging-port, e.g. http://127.0.0.1:9222.
	DevToolsURL string
	UserAgent   string
	Headers     map[string]string
	Cookies     map[string]string
	// LoadTimeout bounds how long Navigate waits for the load event.
	LoadTimeout time.Duration
}

// DefaultOptions returns options pointing at a local Chrome.
func DefaultOptions() Options {
	return Options{
		DevToolsURL: "http://127.0.0.1:9222",
		LoadTimeout: 30 * time.Second,
	}
}

// Driver launches sessions.
type Driver interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}

// Session is one browser tab.
type Session interface {
	// Navigate loads url and reports the main document's response with the
	// rendered DOM as body.
	Navigate(ctx context.Context, url string) (*ir.Response, error)
	// HTML returns the current outer HTML of the document.
	HTML(ctx context.Context) (string, error)
	// Evaluate runs expr. With args, expr must be a function expression
	// and is called with the JSON-encoded args.
	Evaluate(ctx context.Context, expr string, args ...any) (json.RawMessage, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}

// buildExpression turns expr plus args into a single expression.
func buildExpression(expr string, args []any) (string, error) {
	if len(args) == 0 {
		return expr, nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode script arguments: %w", err)
	}
	return fmt.Sprintf("(%s).apply(null, %s)", strings.TrimSpace(expr), encoded), nil
}

// clickScript and focusScript return false when selector matches nothing.
const (
	clickScript = `(sel) => { const el = document.querySelector(sel); if (!el) return false; el.click(); return true; }`
	focusScript = `(sel) => { const el = document.querySelector(sel); if (!el) return false; el.focus(); return true; }`
	htmlScript  = `document.documentElement ? document.documentElement.outerHTML : ""`
)

// headersFromJSON converts a DevTools header object into http.Header.
// DevTools joins repeated headers with newlines.
func headersFromJSON(raw []byte) http.Header {
	h := http.Header{}
	if len(raw) == 0 {
		return h
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return h
	}
	for k, v := range m {
		for _, line := range strings.Split(v, "\n") {
			h.Add(k, line)
		}
	}
	return h
}
