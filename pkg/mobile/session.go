package mobile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

// Session is one automation session on the server.
type Session struct {
	client   *Client
	id       string
	platform string
}

func (s *Session) ID() string { return s.id }

// Platform is the lower-cased platformName, e.g. "android" or "ios".
func (s *Session) Platform() string { return s.platform }

func (s *Session) path(parts ...string) string {
	return "/session/" + escape(s.id) + strings.Join(parts, "")
}

type locator struct {
	Using string `json:"using"`
	Value string `json:"value"`
}

type elementRef map[string]string

func (r elementRef) id() string {
	if id := r[elementKey]; id != "" {
		return id
	}
	return r[legacyElementKey]
}

// FindElements locates all elements matching the strategy. No match is an
// empty result, not an error.
func (s *Session) FindElements(ctx context.Context, using, selector string) ([]value.Remote, error) {
	var refs []elementRef
	err := s.client.do(ctx, http.MethodPost, s.path("/elements"), locator{Using: using, Value: selector}, &refs)
	if IsNoSuchElement(err) {
		return []value.Remote{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]value.Remote, 0, len(refs))
	for _, r := range refs {
		if id := r.id(); id != "" {
			out = append(out, &Element{session: s, id: id})
		}
	}
	return out, nil
}

// FindElement locates the first matching element. No match is a nil
// element, not an error.
func (s *Session) FindElement(ctx context.Context, using, selector string) (value.Remote, error) {
	var ref elementRef
	err := s.client.do(ctx, http.MethodPost, s.path("/element"), locator{Using: using, Value: selector}, &ref)
	if IsNoSuchElement(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := ref.id()
	if id == "" {
		return nil, fmt.Errorf("find element %s=%s: response carries no element id", using, selector)
	}
	return &Element{session: s, id: id}, nil
}

// Close deletes the session on the server.
func (s *Session) Close(ctx context.Context) error {
	return s.client.do(ctx, http.MethodDelete, s.path(), nil, nil)
}

// Element is a remote element handle. It implements value.Remote.
type Element struct {
	session *Session
	id      string
}

func (e *Element) ID() string { return e.id }

func (e *Element) path(suffix string) string {
	return e.session.path("/element/", escape(e.id), suffix)
}

func (e *Element) getString(ctx context.Context, suffix string) (string, error) {
	var out *string
	if err := e.session.client.do(ctx, http.MethodGet, e.path(suffix), nil, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", errNullValue
	}
	return *out, nil
}

var errNullValue = errors.New("null value")

func (e *Element) TagName(ctx context.Context) (string, error) {
	return e.getString(ctx, "/name")
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.getString(ctx, "/text")
}

// Attribute returns the named attribute. A null attribute is an error so
// that callers can tell it apart from an empty one.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	return e.getString(ctx, "/attribute/"+escape(name))
}

func (e *Element) Click(ctx context.Context) error {
	return e.session.client.do(ctx, http.MethodPost, e.path("/click"), struct{}{}, nil)
}

// SendKeys types text into the element.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	body := map[string]any{"text": text, "value": chars}
	return e.session.client.do(ctx, http.MethodPost, e.path("/value"), body, nil)
}
