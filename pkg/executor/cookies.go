package executor

import (
	"maps"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// CookieJar manages cookies across requests made by one executor
type CookieJar struct {
	jar *cookiejar.Jar
	mu  sync.RWMutex
}

// NewCookieJar creates a new cookie jar
func NewCookieJar() *CookieJar {
	jar, _ := cookiejar.New(nil)
	return &CookieJar{
		jar: jar,
	}
}

// SetCookies stores cookies received from urlStr
func (c *CookieJar) SetCookies(urlStr string, cookies []*http.Cookie) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar.SetCookies(u, cookies)
	return nil
}

// GetCookies returns the cookies that would be sent to urlStr
func (c *CookieJar) GetCookies(urlStr string) ([]*http.Cookie, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jar.Cookies(u), nil
}

// CookieMap flattens cookies to name/value pairs; later duplicates win.
func CookieMap(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, cookie := range cookies {
		out[cookie.Name] = cookie.Value
	}
	return out
}

// MergeCookies overlays next onto existing without modifying either.
func MergeCookies(existing, next map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(next))
	maps.Copy(merged, existing)
	maps.Copy(merged, next)
	return merged
}
