package ir

import (
	"net/http"
	"strings"
	"time"
)

// Response represents the raw response a transport (or driver) produced
// for one request. Adapters parse it; nothing here is interpreted yet.
type Response struct {
	URL           string         `json:"url"` // final URL after redirects
	Status        int            `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	Headers       http.Header    `json:"headers,omitempty"`
	Body          []byte         `json:"-"`
	Cookies       []*http.Cookie `json:"-"`
	Latency       time.Duration  `json:"latency"`
	SizeBytes     int64          `json:"size_bytes,omitempty"`
}

// Header returns the first value of the named header.
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// ContentType returns the Content-Type header without parameters.
func (r *Response) ContentType() string {
	ct, _, _ := strings.Cut(r.Header("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(ct))
}
