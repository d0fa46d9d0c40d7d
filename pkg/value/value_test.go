package value

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{"id":1,"name":"widget","price":"9.50","tags":["a","b","c"],"owner":{"login":"ada"},"active":true,"gone":null,"a.b":"dotted"}`

func TestKinds(t *testing.T) {
	root := Parse([]byte(doc), "body", nil)

	tests := []struct {
		key  string
		kind Kind
	}{
		{"id", KindNumber},
		{"name", KindString},
		{"tags", KindArray},
		{"owner", KindObject},
		{"active", KindBool},
		{"gone", KindNull},
		{"missing", KindNull},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.kind, root.Get(tt.key).Kind())
		})
	}
	assert.True(t, root.IsObject())
	assert.False(t, Parse([]byte("{bad"), "body", nil).Exists())
}

func TestNavigation(t *testing.T) {
	root := Parse([]byte(doc), "body", nil)

	assert.Equal(t, "ada", root.Get("owner").Get("login").String())
	assert.Equal(t, "$.owner.login", root.Get("owner").Get("login").Path())
	assert.Equal(t, "b", root.Get("tags").Index(1).String())
	assert.Equal(t, "ada", root.Query("owner.login").String())
	assert.Equal(t, "dotted", root.Get("a.b").String())
	assert.Equal(t, 3, root.Get("tags").Len())
	assert.Equal(t, []string{"id", "name", "price", "tags", "owner", "active", "gone", "a.b"}, root.Keys())
	assert.Len(t, root.Get("tags").Items(), 3)
}

// Reads off missing data never panic and keep returning null.
func TestTotalNavigation(t *testing.T) {
	root := Parse([]byte(doc), "body", nil)
	missing := root.Get("nope").Get("deeper").Index(4).Query("x.y")

	assert.True(t, missing.IsNull())
	assert.Equal(t, "", missing.String())
	assert.Equal(t, 0, missing.Int())
	assert.True(t, math.IsNaN(missing.Float()))
	assert.False(t, missing.Bool())
	assert.Equal(t, 0, missing.Len())
	assert.Nil(t, missing.Items())
	assert.Nil(t, missing.Keys())
	assert.Equal(t, "null", missing.Raw())
	assert.True(t, root.Get("tags").Index(99).IsNull())
	assert.True(t, root.Get("tags").Index(-1).IsNull())

	assert.NotPanics(t, func() {
		assert.True(t, missing.Find("li").IsNull())
		assert.Nil(t, missing.FindAll("li"))
		assert.True(t, missing.Attribute("href").IsNull())
		assert.True(t, missing.Parent().IsNull())
		assert.Equal(t, "", missing.Tag())
	})
}

func TestCoercions(t *testing.T) {
	root := Parse([]byte(doc), "body", nil)

	assert.Equal(t, 9.5, root.Get("price").Float())
	assert.Equal(t, 9, root.Get("price").Int())
	assert.True(t, math.IsNaN(root.Get("name").Float()))
	assert.Equal(t, 1, root.Get("active").Int())
	assert.True(t, root.Get("name").Bool())
	assert.False(t, Of("false").Bool())
	assert.False(t, Of(0).Bool())
	assert.Equal(t, `["a","b","c"]`, root.Get("tags").String())
}

func TestEquality(t *testing.T) {
	root := Parse([]byte(doc), "body", nil)

	assert.True(t, root.Get("id").Equal(1))
	assert.True(t, root.Get("id").Equal(1.0))
	assert.False(t, root.Get("id").Equal("1"))
	assert.True(t, root.Get("id").LooseEqual("1"))
	assert.True(t, root.Get("tags").Equal([]string{"a", "b", "c"}))
	assert.True(t, root.Get("owner").Equal(map[string]any{"login": "ada"}))
	assert.False(t, root.Get("owner").LooseEqual(map[string]any{"login": "bob"}))
	assert.True(t, root.Get("gone").Equal(nil))
	assert.True(t, Of(true).LooseEqual("true"))
}

func TestScalarConstructors(t *testing.T) {
	n := Number(620, "width", "width", nil)
	assert.True(t, n.IsNumber())
	assert.Equal(t, "620", n.Raw())
	assert.True(t, n.Equal(620))

	s := Text(`say "hi"`, "greeting", "", nil)
	assert.True(t, s.IsString())
	assert.Equal(t, `"say \"hi\""`, s.Raw())
}

const page = `<html><body>
<ul id="list"><li class="first">one</li><li>two</li><li>three</li></ul>
<a href="/next" id="link">Next</a>
</body></html>`

func loadPage(t *testing.T) Value {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return FromNode(d.Find("html"), "document", "html", nil)
}

func TestDOM(t *testing.T) {
	root := loadPage(t)

	list := root.Find("#list")
	require.True(t, list.IsNode())
	assert.Equal(t, "ul", list.Tag())
	assert.Equal(t, 3, list.Len())
	assert.Len(t, root.FindAll("li"), 3)

	first := list.Index(0)
	assert.Equal(t, "one", first.String())
	assert.True(t, first.HasClass("first"))
	assert.True(t, first.Is("li.first"))
	assert.Equal(t, "two", first.Next().String())
	assert.True(t, first.Prev().IsNull())
	assert.Len(t, first.Siblings(), 2)
	assert.Equal(t, "ul", first.Parent().Tag())
	assert.Equal(t, "ul", first.Closest("ul").Tag())

	link := root.Find("a")
	assert.Equal(t, "/next", link.Attribute("href").String())
	assert.Equal(t, "/next", link.Get("href").String())
	assert.True(t, link.HasAttribute("id"))
	assert.False(t, link.HasAttribute("target"))
	assert.Equal(t, "Next", link.Text().String())
	assert.Equal(t, `<a href="/next" id="link">Next</a>`, link.OuterHTML().String())
	assert.True(t, link.LooseEqual("Next"))
}

func TestCapabilityMismatch(t *testing.T) {
	v := Of(map[string]any{"a": 1})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var capErr *CapabilityError
		require.True(t, errors.As(r.(error), &capErr))
		assert.Equal(t, "Find", capErr.Op)
		assert.Equal(t, KindObject, capErr.Kind)
	}()
	v.Find("li")
}

type fakeElement struct{ text string }

func (f fakeElement) ID() string                                  { return "e1" }
func (f fakeElement) TagName(context.Context) (string, error)     { return "android.widget.TextView", nil }
func (f fakeElement) Text(context.Context) (string, error)        { return f.text, nil }
func (f fakeElement) Click(context.Context) error                 { return nil }
func (f fakeElement) SendKeys(context.Context, string) error      { return nil }
func (f fakeElement) Attribute(_ context.Context, name string) (string, error) {
	if name == "enabled" {
		return "true", nil
	}
	return "", errors.New("no such attribute")
}

func TestElement(t *testing.T) {
	el := FromElement(fakeElement{text: "Hello"}, "greeting", "id/hello", nil)

	assert.True(t, el.IsElement())
	assert.Equal(t, "Hello", el.String())
	assert.Equal(t, "android.widget.TextView", el.Tag())
	assert.Equal(t, "true", el.Attribute("enabled").String())
	assert.True(t, el.Attribute("bogus").IsNull())
	assert.Panics(t, func() { el.Children() })
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("Array")
	assert.True(t, ok)
	assert.Equal(t, KindArray, k)

	_, ok = ParseKind("tuple")
	assert.False(t, ok)
}
