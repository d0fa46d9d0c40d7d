package ir

import (
	"maps"
	"time"
)

// Version represents the IR schema version
const Version = "1.0"

// IR is the request configuration a scenario hands to its transport
type IR struct {
	Version   string     `json:"version"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
	Request   Request    `json:"request"`
	Transport *Transport `json:"transport,omitempty"`
}

// Metadata contains request metadata
type Metadata struct {
	ID        string            `json:"id,omitempty"`
	Source    string            `json:"source,omitempty"` // curl, scenario, lambda, suitefile
	CreatedAt *time.Time        `json:"created_at,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Request represents the HTTP request specification
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Query   map[string]any    `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Cookies map[string]string `json:"cookies,omitempty"`
	Body    *Body             `json:"body,omitempty"`
	Auth    *Auth             `json:"auth,omitempty"`
}

// Body kinds understood by the executor.
const (
	BodyJSON      = "json"
	BodyForm      = "form"
	BodyText      = "text"
	BodyBinary    = "binary"
	BodyMultipart = "multipart"
)

// Body represents request body in various formats
type Body struct {
	Type          string `json:"type"` // json, form, text, multipart, binary
	Content       any    `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

// Auth kinds understood by the executor.
const (
	AuthBasic  = "basic"
	AuthDigest = "digest"
	AuthBearer = "bearer"
)

// Auth represents authentication configuration
type Auth struct {
	Type     string `json:"type"` // basic, digest, bearer
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Transport represents transport layer configuration
type Transport struct {
	TLSVerify       bool   `json:"tls_verify"`
	FollowRedirects bool   `json:"follow_redirects"`
	MaxRedirects    int    `json:"max_redirects"`
	Proxy           string `json:"proxy,omitempty"`
	TimeoutMs       int    `json:"timeout_ms"`
}

// DefaultTransport returns transport with safe defaults
func DefaultTransport() *Transport {
	return &Transport{
		TLSVerify:       true,
		FollowRedirects: true,
		MaxRedirects:    10,
		TimeoutMs:       30000,
	}
}

// New returns an IR for a GET of rawURL with default transport settings.
func New(rawURL string) *IR {
	return &IR{
		Version: Version,
		Request: Request{
			Method:  "GET",
			URL:     rawURL,
			Headers: make(map[string]string),
		},
		Transport: DefaultTransport(),
	}
}

// Clone returns a deep copy of the IR so that callers can mutate it
// without affecting the original.
func (r *IR) Clone() *IR {
	if r == nil {
		return nil
	}
	out := &IR{Version: r.Version}
	if r.Metadata != nil {
		md := *r.Metadata
		md.Tags = maps.Clone(r.Metadata.Tags)
		out.Metadata = &md
	}
	out.Request = Request{
		Method:  r.Request.Method,
		URL:     r.Request.URL,
		Query:   maps.Clone(r.Request.Query),
		Headers: maps.Clone(r.Request.Headers),
		Cookies: maps.Clone(r.Request.Cookies),
	}
	if out.Request.Headers == nil {
		out.Request.Headers = make(map[string]string)
	}
	if r.Request.Body != nil {
		b := *r.Request.Body
		out.Request.Body = &b
	}
	if r.Request.Auth != nil {
		a := *r.Request.Auth
		out.Request.Auth = &a
	}
	if r.Transport != nil {
		t := *r.Transport
		out.Transport = &t
	}
	return out
}
