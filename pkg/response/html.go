package response

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

// domAdapter serves HTML, XML and Browser responses: a goquery document
// queried with CSS selectors. Browser adapters also hold the live page so
// WaitFor can re-read it.
type domAdapter struct {
	base
	mu   sync.RWMutex
	doc  *goquery.Document
	page DOMSource
}

func newHTML(b base, page DOMSource) *domAdapter {
	a := &domAdapter{base: b, page: page}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.raw.Body))
	if err != nil {
		b.rec.Fail("HTML body could not be parsed: " + err.Error())
		doc = emptyDocument()
	}
	a.doc = doc
	return a
}

func emptyDocument() *goquery.Document {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(""))
	return doc
}

func (a *domAdapter) document() *goquery.Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doc
}

// Root returns the *goquery.Document.
func (a *domAdapter) Root() any { return a.document() }

func (a *domAdapter) RootValue() value.Value {
	return value.FromNode(a.document().Selection, "document", "document", a)
}

func (a *domAdapter) Find(ctx context.Context, selector string, opts FindOptions) (value.Value, error) {
	if opts.filtered() || opts.Offset > 0 {
		return findFirst(ctx, a.FindAll, selector, opts, a)
	}
	return value.FromNode(a.document().Find(selector), selector, selector, a), nil
}

func (a *domAdapter) FindAll(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error) {
	sel := a.document().Find(selector)
	matches := make([]value.Value, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		matches = append(matches, value.FromNode(s, selector, selector, a))
	})
	return applyOptions(matches, opts), nil
}

// WaitFor polls for selector. Static documents are checked once; live
// pages are re-read on every attempt.
func (a *domAdapter) WaitFor(ctx context.Context, selector string, opts FindOptions, timeout time.Duration) (value.Value, error) {
	if a.page == nil {
		return a.Find(ctx, selector, opts)
	}
	return poll(ctx, timeout, func(ctx context.Context) (value.Value, error) {
		if err := a.Refresh(ctx); err != nil {
			return value.Null(selector, selector, a), err
		}
		return a.Find(ctx, selector, opts)
	})
}

// Refresh re-reads the live page, if any, and replaces the document.
func (a *domAdapter) Refresh(ctx context.Context) error {
	if a.page == nil {
		return nil
	}
	html, err := a.page.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.doc = doc
	a.mu.Unlock()
	return nil
}
