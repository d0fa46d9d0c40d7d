package value

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DOM operations. Null receivers return null or zero results; JSON
// receivers panic with *CapabilityError.

func (v Value) requireDOM(op string, allowElement bool) {
	switch v.kind {
	case KindNull, KindNode:
		return
	case KindElement:
		if allowElement {
			return
		}
	}
	panic(&CapabilityError{Op: op, Kind: v.kind, Subject: v.Describe()})
}

func (v Value) child(sel *goquery.Selection, name string) Value {
	return FromNode(sel, name, v.path+" > "+name, v.origin)
}

func (v Value) nodes(sel *goquery.Selection, name string) []Value {
	out := make([]Value, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		out = append(out, v.child(s, name))
	})
	return out
}

// Tag returns the lower-case tag name.
func (v Value) Tag() string {
	v.requireDOM("Tag", true)
	switch v.kind {
	case KindNode:
		return goquery.NodeName(v.node)
	case KindElement:
		tag, _ := v.elem.TagName(context.Background())
		return tag
	}
	return ""
}

// Text returns the trimmed text content.
func (v Value) Text() Value {
	v.requireDOM("Text", true)
	if v.kind == KindNull {
		return Null(v.name+" text", v.path, v.origin)
	}
	return FromJSON(stringResult(v.String()), v.Describe()+" text", v.path, v.origin)
}

// HTML returns the inner HTML.
func (v Value) HTML() Value {
	v.requireDOM("HTML", false)
	if v.kind == KindNull {
		return Null(v.name+" html", v.path, v.origin)
	}
	html, _ := v.node.Html()
	return FromJSON(stringResult(html), v.Describe()+" html", v.path, v.origin)
}

// OuterHTML returns the node's own markup.
func (v Value) OuterHTML() Value {
	v.requireDOM("OuterHTML", false)
	if v.kind == KindNull {
		return Null(v.name+" outer html", v.path, v.origin)
	}
	return FromJSON(stringResult(v.Raw()), v.Describe()+" outer html", v.path, v.origin)
}

// Attribute returns the named attribute as a string Value, or null when
// absent.
func (v Value) Attribute(name string) Value {
	v.requireDOM("Attribute", true)
	label := v.Describe() + "[" + name + "]"
	path := v.path + "@" + name
	switch v.kind {
	case KindNode:
		if attr, ok := v.node.Attr(name); ok {
			return FromJSON(stringResult(attr), label, path, v.origin)
		}
	case KindElement:
		attr, err := v.elem.Attribute(context.Background(), name)
		if err == nil {
			return FromJSON(stringResult(attr), label, path, v.origin)
		}
	}
	return Null(label, path, v.origin)
}

// HasAttribute reports whether the node carries the attribute at all.
func (v Value) HasAttribute(name string) bool {
	return v.Attribute(name).Exists()
}

// Parent returns the parent element.
func (v Value) Parent() Value {
	v.requireDOM("Parent", false)
	if v.kind == KindNull {
		return v
	}
	return v.child(v.node.Parent(), "parent")
}

// Children returns element children.
func (v Value) Children() []Value {
	v.requireDOM("Children", false)
	if v.kind == KindNull {
		return nil
	}
	return v.nodes(v.node.Children(), "child")
}

// Siblings returns element siblings, excluding v itself.
func (v Value) Siblings() []Value {
	v.requireDOM("Siblings", false)
	if v.kind == KindNull {
		return nil
	}
	return v.nodes(v.node.Siblings(), "sibling")
}

// Next returns the next element sibling.
func (v Value) Next() Value {
	v.requireDOM("Next", false)
	if v.kind == KindNull {
		return v
	}
	return v.child(v.node.Next(), "next")
}

// Prev returns the previous element sibling.
func (v Value) Prev() Value {
	v.requireDOM("Prev", false)
	if v.kind == KindNull {
		return v
	}
	return v.child(v.node.Prev(), "prev")
}

// Closest returns the nearest ancestor-or-self matching selector.
func (v Value) Closest(selector string) Value {
	v.requireDOM("Closest", false)
	if v.kind == KindNull {
		return v
	}
	return v.child(v.node.Closest(selector), selector)
}

// Find returns the first descendant matching selector.
func (v Value) Find(selector string) Value {
	v.requireDOM("Find", false)
	if v.kind == KindNull {
		return Null(selector, v.path+" "+selector, v.origin)
	}
	return v.child(v.node.Find(selector), selector)
}

// FindAll returns every descendant matching selector.
func (v Value) FindAll(selector string) []Value {
	v.requireDOM("FindAll", false)
	if v.kind == KindNull {
		return nil
	}
	return v.nodes(v.node.Find(selector), selector)
}

// Is reports whether the node matches selector.
func (v Value) Is(selector string) bool {
	v.requireDOM("Is", false)
	return v.kind == KindNode && v.node.Is(selector)
}

// HasClass reports whether the node's class list contains class.
func (v Value) HasClass(class string) bool {
	v.requireDOM("HasClass", false)
	return v.kind == KindNode && v.node.HasClass(strings.TrimPrefix(class, "."))
}
