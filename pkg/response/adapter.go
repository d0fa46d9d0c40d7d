// Package response holds the response adapter family: one adapter per
// content type, each parsing the raw response exactly once and answering
// selector queries with Typed Values.
package response

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/value"
)

// Type tags a scenario's expected response shape.
type Type string

const (
	HTML       Type = "html"
	JSON       Type = "json"
	Image      Type = "image"
	XML        Type = "xml"
	HLS        Type = "hls"
	Media      Type = "media"
	Resource   Type = "resource"
	Stylesheet Type = "stylesheet"
	Script     Type = "script"
	Headers    Type = "headers"
	Browser    Type = "browser"
	Mobile     Type = "mobile"
)

var types = []Type{HTML, JSON, Image, XML, HLS, Media, Resource, Stylesheet, Script, Headers, Browser, Mobile}

// ParseType resolves a type name, case-insensitively.
func ParseType(name string) (Type, error) {
	for _, t := range types {
		if strings.EqualFold(string(t), name) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown response type %q", name)
}

// BrowserDriven reports whether responses of this type come from an
// automation session rather than a plain HTTP fetch.
func (t Type) BrowserDriven() bool {
	return t == Browser || t == Mobile
}

// DOM reports whether the type's root is a queryable DOM.
func (t Type) DOM() bool {
	return t == HTML || t == XML || t == Browser
}

// FindOptions narrows a selector query. Contains and Matches filter on the
// text of each match; Offset and Limit page the filtered set. A zero Limit
// means no limit. FindBy overrides the selector dialect where an adapter
// supports more than one (json: "gjson" or "jsonpath"; mobile: a locator
// strategy).
type FindOptions struct {
	Contains string
	Matches  *regexp.Regexp
	FindBy   string
	Offset   int
	Limit    int
}

func (o FindOptions) filtered() bool {
	return o.Contains != "" || o.Matches != nil
}

// Recorder receives the baseline assertions adapters make at construction.
type Recorder interface {
	Pass(msg string)
	Fail(msg string)
	Comment(msg string)
}

// Adapter is the common contract of every response variant.
type Adapter interface {
	value.Origin
	Type() Type
	Status() int
	StatusMessage() string
	Headers() http.Header
	Header(name string) string
	Body() []byte
	Raw() *ir.Response
	// Root is the variant-specific parsed structure.
	Root() any
	// RootValue is Root wrapped as a Typed Value.
	RootValue() value.Value
	Find(ctx context.Context, selector string, opts FindOptions) (value.Value, error)
	FindAll(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error)
	WaitFor(ctx context.Context, selector string, opts FindOptions, timeout time.Duration) (value.Value, error)
}

// DOMSource is a live page that can be re-read, such as a browser tab.
type DOMSource interface {
	HTML(ctx context.Context) (string, error)
}

// ElementFinder locates elements in a mobile automation session.
type ElementFinder interface {
	Platform() string
	FindElements(ctx context.Context, using, selector string) ([]value.Remote, error)
}

// FirstElementFinder is an ElementFinder that can also ask for a single
// element, returning nil when nothing matches.
type FirstElementFinder interface {
	FindElement(ctx context.Context, using, selector string) (value.Remote, error)
}

// Deps are the collaborators some adapters need. Unset probers fall back
// to the defaults.
type Deps struct {
	Images  ImageProber
	Media   MediaProber
	Page    DOMSource
	Session ElementFinder
}

// New constructs the adapter for typ and parses raw once. Parse problems
// are reported to rec, never returned.
func New(ctx context.Context, typ Type, raw *ir.Response, rec Recorder, deps Deps) Adapter {
	if raw == nil {
		raw = &ir.Response{Headers: http.Header{}}
	}
	if raw.Headers == nil {
		raw.Headers = http.Header{}
	}
	b := base{typ: typ, raw: raw, rec: rec}

	switch typ {
	case HTML:
		return newHTML(b, nil)
	case Browser:
		return newHTML(b, deps.Page)
	case XML:
		return newXML(b)
	case JSON:
		return newJSON(b)
	case Image:
		prober := deps.Images
		if prober == nil {
			prober = DefaultImageProber{}
		}
		return newImage(ctx, b, prober)
	case HLS:
		return newHLS(b)
	case Media:
		prober := deps.Media
		if prober == nil {
			prober = FFProbe{}
		}
		return newMedia(ctx, b, prober)
	case Headers:
		return newHeaders(b)
	case Mobile:
		return newMobile(b, deps.Session)
	default:
		return newResource(b)
	}
}

// base carries what every variant shares.
type base struct {
	typ Type
	raw *ir.Response
	rec Recorder
}

func (b base) Type() Type                { return b.typ }
func (b base) ResponseType() string      { return string(b.typ) }
func (b base) URL() string               { return b.raw.URL }
func (b base) Status() int               { return b.raw.Status }
func (b base) StatusMessage() string     { return b.raw.StatusMessage }
func (b base) Headers() http.Header      { return b.raw.Headers }
func (b base) Header(name string) string { return b.raw.Header(name) }
func (b base) Body() []byte              { return b.raw.Body }
func (b base) Raw() *ir.Response         { return b.raw }
