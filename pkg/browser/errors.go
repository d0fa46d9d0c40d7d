package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable   = errors.New("browser unavailable")
	ErrSessionClosed = errors.New("browser session closed")
	ErrNoElement     = errors.New("no element matches selector")
)

// NavigationError reports a page load the browser itself rejected, such
// as a DNS failure or a refused connection.
type NavigationError struct {
	URL  string
	Text string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %s", e.URL, e.Text)
}

// ScriptError wraps an exception thrown by evaluated JavaScript.
type ScriptError struct {
	Expression string
	Message    string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}
