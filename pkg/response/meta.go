package response

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

// metaAdapter serves variants whose root is a JSON metadata document built
// at construction: image, HLS, media, resource and headers.
type metaAdapter struct {
	base
	root value.Value
	// normalize rewrites selectors before lookup, e.g. to lower-case
	// header names.
	normalize func(string) string
}

func newMeta(b base, doc any) *metaAdapter {
	a := &metaAdapter{base: b}
	a.setRoot(doc)
	return a
}

func (a *metaAdapter) setRoot(doc any) {
	raw, err := json.Marshal(doc)
	if err != nil {
		a.root = value.Null(string(a.typ), "$", a)
		return
	}
	a.setRootJSON(raw)
}

func (a *metaAdapter) setRootJSON(raw []byte) {
	a.root = value.FromJSON(gjson.ParseBytes(raw), string(a.typ), "$", a)
}

// Root returns the metadata document as a gjson.Result.
func (a *metaAdapter) Root() any              { return a.root.JSON() }
func (a *metaAdapter) RootValue() value.Value { return a.root }

func (a *metaAdapter) selector(s string) string {
	if a.normalize != nil {
		return a.normalize(s)
	}
	return s
}

func (a *metaAdapter) Find(ctx context.Context, selector string, opts FindOptions) (value.Value, error) {
	if opts.filtered() || opts.Offset > 0 {
		return findFirst(ctx, a.FindAll, selector, opts, a)
	}
	return queryJSON(a.root, a.selector(selector), opts.FindBy).As(selector), nil
}

func (a *metaAdapter) FindAll(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error) {
	return applyOptions(spread(queryJSON(a.root, a.selector(selector), opts.FindBy)), opts), nil
}

func (a *metaAdapter) WaitFor(ctx context.Context, selector string, opts FindOptions, _ time.Duration) (value.Value, error) {
	return a.Find(ctx, selector, opts)
}
