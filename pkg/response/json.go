package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

// jsonAdapter answers gjson paths, or "$."-prefixed JSONPath, against the
// parsed body.
type jsonAdapter struct {
	base
	root value.Value
}

func newJSON(b base) *jsonAdapter {
	a := &jsonAdapter{base: b}
	switch {
	case !gjson.ValidBytes(b.raw.Body):
		b.rec.Fail("JSON body could not be parsed")
		a.root = value.Null("body", "$", a)
	default:
		a.root = value.Parse(b.raw.Body, "body", a)
		if a.root.IsNull() {
			b.rec.Fail("JSON body is null")
		} else {
			b.rec.Pass("JSON body parsed")
		}
	}
	return a
}

// Root returns the body as a gjson.Result.
func (a *jsonAdapter) Root() any              { return a.root.JSON() }
func (a *jsonAdapter) RootValue() value.Value { return a.root }

func (a *jsonAdapter) Find(ctx context.Context, selector string, opts FindOptions) (value.Value, error) {
	if opts.filtered() || opts.Offset > 0 {
		return findFirst(ctx, a.FindAll, selector, opts, a)
	}
	return queryJSON(a.root, selector, opts.FindBy), nil
}

// FindAll returns the items of an array match, or the single match itself.
func (a *jsonAdapter) FindAll(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error) {
	return applyOptions(spread(queryJSON(a.root, selector, opts.FindBy)), opts), nil
}

func (a *jsonAdapter) WaitFor(ctx context.Context, selector string, opts FindOptions, _ time.Duration) (value.Value, error) {
	return a.Find(ctx, selector, opts)
}

// queryJSON resolves selector against root. An empty selector or "$"
// returns root itself.
func queryJSON(root value.Value, selector, dialect string) value.Value {
	path := selector
	if dialect == "jsonpath" || (dialect == "" && strings.HasPrefix(selector, "$")) {
		var err error
		path, err = jsonPathToGJSON(selector)
		if err != nil {
			return value.Null(selector, selector, root.Origin())
		}
	}
	if path == "" {
		return root
	}
	return root.Query(path).As(selector)
}

func spread(v value.Value) []value.Value {
	switch {
	case v.IsArray():
		return v.Items()
	case v.Exists():
		return []value.Value{v}
	default:
		return []value.Value{}
	}
}

// jsonPathToGJSON translates the JSONPath subset $.a.b[0].c (plus $ alone
// and $[n]) into the equivalent gjson path a.b.0.c.
func jsonPathToGJSON(path string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(path), "$")
	if !ok {
		return "", fmt.Errorf("JSONPath must start with $: %q", path)
	}
	rest = strings.TrimPrefix(rest, ".")

	var parts []string
	for _, seg := range splitPathSegments(rest) {
		if seg == "" {
			continue
		}
		for seg != "" {
			open := strings.IndexByte(seg, '[')
			if open < 0 {
				parts = append(parts, escapeSegment(seg))
				break
			}
			if open > 0 {
				parts = append(parts, escapeSegment(seg[:open]))
			}
			end := strings.IndexByte(seg[open:], ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated index in %q", path)
			}
			index := strings.Trim(seg[open+1:open+end], `'"`)
			if index == "*" {
				index = "#"
			}
			parts = append(parts, index)
			seg = seg[open+end+1:]
		}
	}
	// a trailing wildcard selects the array itself; gjson "#" would count it
	if n := len(parts); n > 0 && parts[n-1] == "#" {
		parts = parts[:n-1]
	}
	return strings.Join(parts, "."), nil
}

// splitPathSegments splits "a.b[0].c" on dots outside brackets.
func splitPathSegments(path string) []string {
	var segments []string
	var current strings.Builder
	depth := 0

	for _, ch := range path {
		switch ch {
		case '[':
			depth++
			current.WriteRune(ch)
		case ']':
			depth--
			current.WriteRune(ch)
		case '.':
			if depth == 0 {
				segments = append(segments, current.String())
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

func escapeSegment(s string) string {
	if s == "*" {
		return "#"
	}
	return strings.NewReplacer(".", `\.`, "?", `\?`, "|", `\|`, "@", `\@`).Replace(s)
}
