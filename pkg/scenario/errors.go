package scenario

import "errors"

var (
	// ErrAlreadyStarted is reported by Scenario.Err when the scenario was
	// configured after it started.
	ErrAlreadyStarted = errors.New("scenario already started")
	// ErrNotBrowser is raised by browser actions on other scenario types.
	ErrNotBrowser = errors.New("action requires a browser scenario")
	// ErrNoBrowser means a browser scenario ran without a driver.
	ErrNoBrowser = errors.New("no browser driver configured")
)

// timeoutError marks an abort caused by a deadline rather than the
// transport.
type timeoutError struct {
	scope string
}

func (e *timeoutError) Error() string {
	return e.scope + " exceeded its maximum duration"
}
