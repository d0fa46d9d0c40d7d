package scenario

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/executor"
	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/response"
	"github.com/vikasavnish/httpsuite/pkg/value"
)

// target is what a spawned scenario loads.
type target struct {
	typ    response.Type
	url    string
	method string
	form   url.Values
	// skip is set when the element has nothing to navigate to.
	skip string
}

// Open spawns a scenario for whatever v points at: an element's src or
// href, a form's action with its fields, or a URL string. Relative targets
// resolve against this response's URL. The child starts as soon as it
// gets a callback, or when this scenario finishes if it has none.
func (a *AssertionContext) Open(v any) *Scenario {
	return spawn(a.scenario, a.adapter, value.Of(v))
}

func spawn(parent *Scenario, adapter response.Adapter, v value.Value) *Scenario {
	parent.mu.Lock()
	parentTyp := parent.typ
	parentTitle := parent.title
	req := parent.req.Clone()
	caps := maps.Clone(parent.caps)
	opts := parent.browserOpts
	parent.mu.Unlock()

	baseURL := req.Request.URL
	var cookies []*http.Cookie
	if adapter != nil {
		if u := adapter.URL(); u != "" {
			baseURL = u
		}
		if raw := adapter.Raw(); raw != nil {
			cookies = raw.Cookies
		}
	}

	t := resolveTarget(parentTyp, v)
	if t.skip == "" {
		resolved, err := resolveAgainst(baseURL, t.url)
		if err != nil {
			t.skip = fmt.Sprintf("cannot resolve %q: %v", t.url, err)
		} else {
			t.url = resolved
		}
	}

	title := t.url
	if t.skip != "" {
		title = parentTitle + " / " + describeElement(v)
	}
	child := parent.suite.Scenario(title, t.typ)

	child.mu.Lock()
	child.parent = parent
	child.mu.Unlock()

	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parentDone := parent.disposition.Terminal()
	parent.mu.Unlock()

	if t.skip != "" {
		child.Skip(t.skip)
		return child
	}

	child.configure("Open", func() {
		if parentTyp.BrowserDriven() == t.typ.BrowserDriven() {
			child.req.Request.Headers = req.Request.Headers
			child.req.Request.Cookies = executor.MergeCookies(req.Request.Cookies, executor.CookieMap(cookies))
			child.req.Request.Auth = req.Request.Auth
			child.req.Transport = req.Transport
			child.browserOpts = opts
			child.caps = caps
		}
		child.req.Metadata = &ir.Metadata{Source: "lambda", Tags: map[string]string{"parent": parent.id}}
		child.req.Request.URL = t.url
		if t.method != "" {
			child.req.Request.Method = t.method
		}
		if len(t.form) > 0 && t.method != http.MethodGet {
			child.req.Request.Body = &ir.Body{Type: ir.BodyForm, Content: t.form}
		}
	})
	parent.log.Debug("spawned scenario",
		zap.String("child", child.id[:8]),
		zap.String("type", string(t.typ)),
		zap.String("url", t.url))

	if parentDone {
		child.adopt()
	}
	return child
}

// resolveTarget maps an element to the type and URL it navigates to.
func resolveTarget(parentTyp response.Type, v value.Value) target {
	switch {
	case v.IsNull():
		return target{typ: parentTyp, skip: "element not found"}
	case v.IsString():
		if s := strings.TrimSpace(v.String()); s != "" {
			return target{typ: parentTyp, url: s}
		}
		return target{typ: parentTyp, skip: "empty url"}
	case v.IsElement():
		if href := attr(v, "href"); href != "" {
			return target{typ: parentTyp, url: href}
		}
		return target{typ: parentTyp, skip: "element has no href"}
	case !v.IsNode():
		return target{typ: parentTyp, skip: fmt.Sprintf("%s value is not navigable", v.Kind())}
	}

	tag := v.Tag()
	switch tag {
	case "img":
		return fromAttr(response.Image, v, "src", "image has no src")
	case "link":
		typ := response.Resource
		if strings.Contains(strings.ToLower(attr(v, "rel")), "stylesheet") {
			typ = response.Stylesheet
		}
		return fromAttr(typ, v, "href", "link has no href")
	case "script":
		return fromAttr(response.Script, v, "src", "script has no src")
	case "a":
		return fromAttr(parentTyp, v, "href", "link has no href")
	case "form":
		return formTarget(parentTyp, v.Selection(), nil)
	case "button":
		return submitTarget(parentTyp, v)
	case "input":
		switch strings.ToLower(attr(v, "type")) {
		case "submit", "image":
			return submitTarget(parentTyp, v)
		}
	}

	for _, name := range []string{"src", "href"} {
		if u := attr(v, name); u != "" {
			return target{typ: response.Resource, url: u}
		}
	}
	return target{typ: parentTyp, skip: fmt.Sprintf("<%s> has no navigable target", tag)}
}

func fromAttr(typ response.Type, v value.Value, name, missing string) target {
	if u := attr(v, name); u != "" {
		return target{typ: typ, url: u}
	}
	return target{typ: typ, skip: missing}
}

func attr(v value.Value, name string) string {
	return strings.TrimSpace(v.Attribute(name).String())
}

// submitTarget submits the enclosing form, including the button's own
// name and value.
func submitTarget(parentTyp response.Type, button value.Value) target {
	form := button.Closest("form")
	if form.IsNull() {
		return target{typ: parentTyp, skip: "submit button has no enclosing form"}
	}
	return formTarget(parentTyp, form.Selection(), button.Selection())
}

func formTarget(parentTyp response.Type, form, submitter *goquery.Selection) target {
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "")))
	if method == "" {
		method = http.MethodGet
	}
	action := strings.TrimSpace(form.AttrOr("action", ""))
	fields := serializeForm(form)
	if submitter != nil {
		if name, ok := submitter.Attr("name"); ok && name != "" {
			fields.Add(name, submitter.AttrOr("value", ""))
		}
	}

	t := target{typ: parentTyp, url: action, method: method, form: fields}
	if method == http.MethodGet && len(fields) > 0 {
		// a GET submission replaces the action's query
		u, err := url.Parse(action)
		if err != nil {
			return target{typ: parentTyp, skip: fmt.Sprintf("invalid form action %q", action)}
		}
		u.RawQuery = fields.Encode()
		t.url = u.String()
	}
	return t
}

// serializeForm collects the fields a browser would submit: enabled named
// controls, checked checkboxes and radios, and the selected options.
func serializeForm(form *goquery.Selection) url.Values {
	fields := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		name, ok := el.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := el.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(el) {
		case "select":
			selected := el.Find("option[selected]")
			if selected.Length() == 0 {
				selected = el.Find("option").First()
			}
			if _, multiple := el.Attr("multiple"); !multiple {
				selected = selected.First()
			}
			selected.Each(func(_ int, opt *goquery.Selection) {
				fields.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			})
		case "textarea":
			fields.Add(name, el.Text())
		default:
			switch strings.ToLower(el.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
			case "checkbox", "radio":
				if _, checked := el.Attr("checked"); checked {
					fields.Add(name, el.AttrOr("value", "on"))
				}
			default:
				fields.Add(name, el.AttrOr("value", ""))
			}
		}
	})
	return fields
}

// resolveAgainst resolves ref relative to base. An empty ref is base
// itself, as for a form without an action.
func resolveAgainst(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if base == "" || r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func describeElement(v value.Value) string {
	if v.IsNode() {
		return "<" + v.Tag() + ">"
	}
	if d := v.Describe(); d != "" {
		return d
	}
	return v.Kind().String()
}
