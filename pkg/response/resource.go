package response

import (
	"strings"
)

// newResource describes any fetched resource: stylesheets, scripts and
// everything without a dedicated adapter. Textual bodies are exposed as
// "body".
func newResource(b base) *metaAdapter {
	mime := sniffMIME(b.raw)
	doc := map[string]any{
		"url":         b.raw.URL,
		"path":        urlPath(b.raw.URL),
		"status":      b.raw.Status,
		"mime":        mime,
		"contentType": b.raw.ContentType(),
		"length":      len(b.raw.Body),
	}
	if textual(mime) {
		doc["body"] = string(b.raw.Body)
	}
	return newMeta(b, doc)
}

func textual(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	for _, s := range []string{"json", "xml", "javascript", "ecmascript", "css", "mpegurl"} {
		if strings.Contains(mime, s) {
			return true
		}
	}
	return false
}

// newHeaders exposes response headers keyed by lower-case name. Repeated
// headers become arrays.
func newHeaders(b base) *metaAdapter {
	doc := make(map[string]any, len(b.raw.Headers))
	for name, values := range b.raw.Headers {
		key := strings.ToLower(name)
		if len(values) == 1 {
			doc[key] = values[0]
		} else {
			doc[key] = values
		}
	}
	a := newMeta(b, doc)
	a.normalize = func(s string) string {
		if strings.HasPrefix(s, "$") {
			return strings.ToLower(s)
		}
		return strings.ReplaceAll(strings.ToLower(s), ".", `\.`)
	}
	return a
}
