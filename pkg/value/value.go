// Package value implements the Typed Value: a uniform, immutable wrapper
// around a datum extracted from a response.
//
// Every navigation, type test and coercion is total. Reading a missing
// property returns a null Value, and further reads off a null Value return
// null, zero or NaN. DOM-only operations on a non-DOM, non-null Value panic
// with *CapabilityError because that is an authoring bug, not a property
// of the system under test.
package value

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
)

// Kind tags the datum held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindNode
	KindElement
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindNode:
		return "node"
	case KindElement:
		return "element"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k := KindNull; k <= KindElement; k++ {
		if k.String() == strings.ToLower(name) {
			return k, true
		}
	}
	return KindNull, false
}

// Origin is where a Value came from. Response adapters implement it.
type Origin interface {
	ResponseType() string
	URL() string
}

// Remote is an element living in an automation session, such as a mobile
// app element addressed through WebDriver.
type Remote interface {
	ID() string
	TagName(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
}

// Value holds exactly one datum plus a display name, a provenance path and
// its origin. The zero Value is null.
type Value struct {
	kind   Kind
	json   gjson.Result
	node   *goquery.Selection
	elem   Remote
	name   string
	path   string
	origin Origin
}

// Null returns a null Value carrying the given provenance.
func Null(name, path string, origin Origin) Value {
	return Value{kind: KindNull, name: name, path: path, origin: origin}
}

// FromJSON wraps a gjson result. Missing results become null.
func FromJSON(r gjson.Result, name, path string, origin Origin) Value {
	v := Value{json: r, name: name, path: path, origin: origin}
	switch r.Type {
	case gjson.True, gjson.False:
		v.kind = KindBool
	case gjson.Number:
		v.kind = KindNumber
	case gjson.String:
		v.kind = KindString
	case gjson.JSON:
		if r.IsArray() {
			v.kind = KindArray
		} else {
			v.kind = KindObject
		}
	default:
		v.kind = KindNull
		v.json = gjson.Result{}
	}
	return v
}

// FromNode wraps the first node of sel. An empty selection becomes null.
func FromNode(sel *goquery.Selection, name, path string, origin Origin) Value {
	if sel == nil || sel.Length() == 0 {
		return Null(name, path, origin)
	}
	return Value{kind: KindNode, node: sel.First(), name: name, path: path, origin: origin}
}

// FromElement wraps a remote element. A nil element becomes null.
func FromElement(e Remote, name, path string, origin Origin) Value {
	if e == nil {
		return Null(name, path, origin)
	}
	return Value{kind: KindElement, elem: e, name: name, path: path, origin: origin}
}

// Of wraps a Go value by round-tripping it through JSON. Values that are
// already a Value are returned as is.
func Of(x any) Value {
	switch t := x.(type) {
	case Value:
		return t
	case nil:
		return Value{}
	case gjson.Result:
		return FromJSON(t, "", "", nil)
	case *goquery.Selection:
		return FromNode(t, "", "", nil)
	case Remote:
		return FromElement(t, "", "", nil)
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return Value{}
	}
	return FromJSON(gjson.ParseBytes(raw), "", "", nil)
}

// Parse wraps a raw JSON document. Invalid JSON yields null.
func Parse(raw []byte, name string, origin Origin) Value {
	if !gjson.ValidBytes(raw) {
		return Null(name, "$", origin)
	}
	return FromJSON(gjson.ParseBytes(raw), name, "$", origin)
}

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsNull() bool       { return v.kind == KindNull }
func (v Value) IsBool() bool       { return v.kind == KindBool }
func (v Value) IsNumber() bool     { return v.kind == KindNumber }
func (v Value) IsString() bool     { return v.kind == KindString }
func (v Value) IsArray() bool      { return v.kind == KindArray }
func (v Value) IsObject() bool     { return v.kind == KindObject }
func (v Value) IsNode() bool       { return v.kind == KindNode }
func (v Value) IsElement() bool    { return v.kind == KindElement }
func (v Value) Exists() bool       { return v.kind != KindNull }
func (v Value) Name() string       { return v.name }
func (v Value) Path() string       { return v.path }
func (v Value) Origin() Origin     { return v.origin }
func (v Value) JSON() gjson.Result { return v.json }

// Selection returns the wrapped DOM node, or nil.
func (v Value) Selection() *goquery.Selection { return v.node }

// Element returns the wrapped remote element, or nil.
func (v Value) Element() Remote { return v.elem }

// As returns a copy of v with a new display name.
func (v Value) As(name string) Value {
	v.name = name
	return v
}

// Describe is the label used in assertion messages.
func (v Value) Describe() string {
	switch {
	case v.name != "":
		return v.name
	case v.path != "":
		return v.path
	default:
		return v.Raw()
	}
}

// String coerces the datum to text. Nodes and elements yield their text.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.json.Str
	case KindBool, KindNumber, KindArray, KindObject:
		return v.json.Raw
	case KindNode:
		return strings.TrimSpace(v.node.Text())
	case KindElement:
		s, _ := v.elem.Text(context.Background())
		return s
	}
	return ""
}

// Int coerces to an integer, 0 when no sensible conversion exists.
func (v Value) Int() int {
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// Float coerces to a float, NaN when no sensible conversion exists.
func (v Value) Float() float64 {
	switch v.kind {
	case KindNumber:
		return v.json.Num
	case KindBool:
		if v.json.Bool() {
			return 1
		}
		return 0
	case KindString, KindNode, KindElement:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// Bool coerces using truthiness: null, false, 0, "" and "false" are false.
func (v Value) Bool() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.json.Bool()
	case KindNumber:
		return v.json.Num != 0
	case KindString:
		s := strings.TrimSpace(v.json.Str)
		return s != "" && !strings.EqualFold(s, "false") && s != "0"
	case KindArray, KindObject, KindNode, KindElement:
		return true
	}
	return false
}

// Raw is the serialized form: JSON text, or outer HTML for nodes.
func (v Value) Raw() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindNode:
		html, _ := goquery.OuterHtml(v.node)
		return html
	case KindElement:
		return fmt.Sprintf("element(%s)", v.elem.ID())
	}
	return v.json.Raw
}

// Len is the element count of arrays, key count of objects, rune count of
// strings and child count of nodes.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.json.Array())
	case KindObject:
		return len(v.json.Map())
	case KindString:
		return utf8.RuneCountInString(v.json.Str)
	case KindNode:
		return v.node.Children().Length()
	}
	return 0
}

// Get returns the named property of an object or attribute of a node.
func (v Value) Get(key string) Value {
	path := joinPath(v.path, key)
	switch v.kind {
	case KindObject:
		return FromJSON(v.json.Get(escapeKey(key)), key, path, v.origin)
	case KindNode, KindElement:
		return v.Attribute(key)
	}
	return Null(key, path, v.origin)
}

// Index returns the i-th item of an array or child of a node.
func (v Value) Index(i int) Value {
	name := fmt.Sprintf("%s[%d]", v.Describe(), i)
	path := fmt.Sprintf("%s[%d]", v.path, i)
	switch v.kind {
	case KindArray:
		items := v.json.Array()
		if i < 0 || i >= len(items) {
			return Null(name, path, v.origin)
		}
		return FromJSON(items[i], name, path, v.origin)
	case KindNode:
		return FromNode(v.node.Children().Eq(i), name, path, v.origin)
	}
	return Null(name, path, v.origin)
}

// Query resolves a gjson path relative to a JSON value.
func (v Value) Query(path string) Value {
	full := joinPath(v.path, path)
	switch v.kind {
	case KindArray, KindObject:
		return FromJSON(v.json.Get(path), path, full, v.origin)
	}
	return Null(path, full, v.origin)
}

// Items returns array items, object values in key order, or node children.
func (v Value) Items() []Value {
	switch v.kind {
	case KindArray:
		arr := v.json.Array()
		out := make([]Value, len(arr))
		for i, r := range arr {
			out[i] = FromJSON(r, fmt.Sprintf("%s[%d]", v.Describe(), i), fmt.Sprintf("%s[%d]", v.path, i), v.origin)
		}
		return out
	case KindObject:
		var out []Value
		v.json.ForEach(func(key, val gjson.Result) bool {
			out = append(out, FromJSON(val, key.String(), joinPath(v.path, key.String()), v.origin))
			return true
		})
		return out
	case KindNode:
		return v.Children()
	}
	return nil
}

// Keys returns object keys in document order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	var keys []string
	v.json.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Interface returns the datum as a plain Go value: nil, bool, float64,
// string, []any, map[string]any, or the text of a node or element.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindNode, KindElement:
		return v.String()
	}
	return v.json.Value()
}

// Equal reports strict equality: same kind family and deeply equal data.
// Numbers compare by value regardless of Go type.
func (v Value) Equal(other any) bool {
	o := Of(other)
	return cmp.Equal(v.Interface(), o.Interface())
}

// LooseEqual is Equal, except that scalars of different kinds are compared
// through their string forms, so "1" equals 1 and "true" equals true.
func (v Value) LooseEqual(other any) bool {
	o := Of(other)
	if v.Equal(o) {
		return true
	}
	if isScalar(v.kind) && isScalar(o.kind) {
		if v.IsNumber() || o.IsNumber() {
			a, b := v.Float(), o.Float()
			return !math.IsNaN(a) && a == b
		}
		return v.String() == o.String()
	}
	return false
}

func isScalar(k Kind) bool {
	switch k {
	case KindBool, KindNumber, KindString, KindNode, KindElement:
		return true
	}
	return false
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// escapeKey quotes gjson path metacharacters so key is matched literally.
func escapeKey(key string) string {
	var b strings.Builder
	for _, ch := range key {
		switch ch {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func stringResult(s string) gjson.Result {
	raw, _ := json.Marshal(s)
	return gjson.Result{Type: gjson.String, Str: s, Raw: string(raw)}
}

// Text wraps a plain string.
func Text(s, name, path string, origin Origin) Value {
	return FromJSON(stringResult(s), name, path, origin)
}

// Number wraps a float.
func Number(f float64, name, path string, origin Origin) Value {
	raw := strconv.FormatFloat(f, 'f', -1, 64)
	return FromJSON(gjson.Result{Type: gjson.Number, Num: f, Raw: raw}, name, path, origin)
}
