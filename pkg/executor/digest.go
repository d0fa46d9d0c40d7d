package executor

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"strings"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// digestChallenge holds the parameters of a WWW-Authenticate: Digest header
type digestChallenge struct {
	realm     string
	nonce     string
	opaque    string
	algorithm string
	qop       string
}

func parseDigestChallenge(header string) (*digestChallenge, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "Digest ")
	if !ok {
		return nil, false
	}

	c := &digestChallenge{}
	for _, part := range splitDigestParams(rest) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "realm":
			c.realm = value
		case "nonce":
			c.nonce = value
		case "opaque":
			c.opaque = value
		case "algorithm":
			c.algorithm = value
		case "qop":
			c.qop = value
		}
	}
	if c.nonce == "" {
		return nil, false
	}
	return c, true
}

// splitDigestParams splits on commas outside quoted strings.
func splitDigestParams(s string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	for _, ch := range s {
		switch {
		case ch == '"':
			inQuote = !inQuote
			current.WriteRune(ch)
		case ch == ',' && !inQuote:
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// digestAuthorization answers an RFC 7616 challenge. Only qop=auth (or no
// qop) with MD5 or SHA-256 is supported.
func digestAuthorization(challenge string, auth *ir.Auth, method string, u *url.URL) (string, bool) {
	c, ok := parseDigestChallenge(challenge)
	if !ok {
		return "", false
	}

	var newHash func() hash.Hash
	switch strings.ToUpper(c.algorithm) {
	case "", "MD5":
		newHash = md5.New
	case "SHA-256":
		newHash = sha256.New
	default:
		return "", false
	}
	h := func(s string) string {
		hh := newHash()
		hh.Write([]byte(s))
		return hex.EncodeToString(hh.Sum(nil))
	}

	uri := u.RequestURI()
	ha1 := h(auth.Username + ":" + c.realm + ":" + auth.Password)
	ha2 := h(method + ":" + uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, auth.Username, c.realm, c.nonce, uri)

	qop := ""
	for _, q := range strings.Split(c.qop, ",") {
		if strings.TrimSpace(q) == "auth" {
			qop = "auth"
		}
	}
	if qop != "" {
		nc := "00000001"
		cnonce := newCnonce()
		response := h(strings.Join([]string{ha1, c.nonce, nc, cnonce, qop, ha2}, ":"))
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s", response="%s"`, qop, nc, cnonce, response)
	} else {
		fmt.Fprintf(&b, `, response="%s"`, h(ha1+":"+c.nonce+":"+ha2))
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	if c.algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, c.algorithm)
	}
	return b.String(), true
}

func newCnonce() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
