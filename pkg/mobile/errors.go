package mobile

import (
	"errors"
	"fmt"
)

// Error is a WebDriver error reply, e.g. {"error": "no such element"}.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("webdriver %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("webdriver %s (%d)", e.Code, e.Status)
}

// IsNoSuchElement reports whether err is a WebDriver "no such element".
func IsNoSuchElement(err error) bool {
	var wdErr *Error
	return errors.As(err, &wdErr) && wdErr.Code == "no such element"
}
