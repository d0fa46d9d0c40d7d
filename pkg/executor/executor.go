package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// Executor executes HTTP requests from IR (no business logic)
type Executor struct {
	cookieJar  *CookieJar
	log        *zap.Logger
	transports sync.Map // transportKey -> *http.Transport
}

type transportKey struct {
	verify bool
	proxy  string
}

// NewExecutor creates a new HTTP executor
func NewExecutor(l *zap.Logger) *Executor {
	return NewExecutorWithCookieJar(NewCookieJar(), l)
}

// NewExecutorWithCookieJar creates an executor with a specific cookie jar
func NewExecutorWithCookieJar(jar *CookieJar, l *zap.Logger) *Executor {
	if l == nil {
		l = zap.NewNop()
	}
	return &Executor{cookieJar: jar, log: l}
}

// GetCookieJar returns the executor's cookie jar
func (e *Executor) GetCookieJar() *CookieJar {
	return e.cookieJar
}

// Fetch runs the request described by irSpec. A non-nil error means no
// response was received at all (DNS, connection, timeout); any HTTP status
// is a successful fetch.
func (e *Executor) Fetch(ctx context.Context, irSpec *ir.IR) (*ir.Response, error) {
	transport := irSpec.Transport
	if transport == nil {
		transport = ir.DefaultTransport()
	}

	client := &http.Client{
		Transport: e.buildTransport(transport),
		Timeout:   time.Duration(transport.TimeoutMs) * time.Millisecond,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if transport.FollowRedirects {
		maxRedirects := transport.MaxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	}

	reqURL, err := buildURL(&irSpec.Request)
	if err != nil {
		return nil, err
	}
	body, contentType, err := buildBody(irSpec.Request.Body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.do(ctx, client, irSpec, reqURL, body, contentType)
	if err != nil {
		e.log.Debug("request failed", zap.String("method", irSpec.Request.Method), zap.String("url", reqURL), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	// Digest auth needs the server challenge, so it costs one extra round trip.
	if resp.StatusCode == http.StatusUnauthorized && irSpec.Request.Auth != nil && irSpec.Request.Auth.Type == ir.AuthDigest {
		challenge := resp.Header.Get("WWW-Authenticate")
		if authz, ok := digestAuthorization(challenge, irSpec.Request.Auth, irSpec.Request.Method, resp.Request.URL); ok {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp, err = e.do(ctx, client, irSpec, reqURL, body, contentType, header{"Authorization", authz})
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
		}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if e.cookieJar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			e.cookieJar.SetCookies(resp.Request.URL.String(), cookies)
		}
	}

	return &ir.Response{
		URL:           resp.Request.URL.String(),
		Status:        resp.StatusCode,
		StatusMessage: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode))),
		Headers:       resp.Header,
		Body:          bodyBytes,
		Cookies:       resp.Cookies(),
		Latency:       time.Since(start),
		SizeBytes:     int64(len(bodyBytes)),
	}, nil
}

type header struct{ key, value string }

func (e *Executor) do(ctx context.Context, client *http.Client, irSpec *ir.IR, reqURL string, body []byte, contentType string, extra ...header) (*http.Response, error) {
	req, err := e.buildRequest(ctx, irSpec, reqURL, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for _, h := range extra {
		req.Header.Set(h.key, h.value)
	}
	return client.Do(req)
}

func (e *Executor) buildTransport(transport *ir.Transport) *http.Transport {
	key := transportKey{verify: transport.TLSVerify, proxy: transport.Proxy}
	if t, ok := e.transports.Load(key); ok {
		return t.(*http.Transport)
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: !transport.TLSVerify,
	}
	if transport.Proxy != "" {
		proxyURL, err := url.Parse(transport.Proxy)
		if err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		} else {
			e.log.Warn("ignoring invalid proxy", zap.String("proxy", transport.Proxy), zap.Error(err))
		}
	}

	actual, _ := e.transports.LoadOrStore(key, t)
	return actual.(*http.Transport)
}

func buildURL(req *ir.Request) (string, error) {
	if len(req.Query) == 0 {
		return req.URL, nil
	}
	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	q := parsedURL.Query()
	for key, value := range req.Query {
		switch v := value.(type) {
		case string:
			q.Add(key, v)
		case []string:
			for _, val := range v {
				q.Add(key, val)
			}
		case []any:
			for _, val := range v {
				q.Add(key, fmt.Sprintf("%v", val))
			}
		default:
			q.Add(key, fmt.Sprintf("%v", v))
		}
	}
	parsedURL.RawQuery = q.Encode()
	return parsedURL.String(), nil
}

func (e *Executor) buildRequest(ctx context.Context, irSpec *ir.IR, reqURL string, body []byte, contentType string) (*http.Request, error) {
	req := &irSpec.Request

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if e.cookieJar != nil {
		jarCookies, _ := e.cookieJar.GetCookies(reqURL)
		for _, cookie := range jarCookies {
			if _, explicit := req.Cookies[cookie.Name]; !explicit {
				httpReq.AddCookie(cookie)
			}
		}
	}

	if req.Auth != nil {
		switch req.Auth.Type {
		case ir.AuthBasic:
			httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
		case ir.AuthBearer:
			httpReq.Header.Set("Authorization", "Bearer "+req.Auth.Token)
		}
	}

	return httpReq, nil
}

func buildBody(body *ir.Body) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch body.Type {
	case ir.BodyJSON:
		jsonBytes, err := json.Marshal(body.Content)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal JSON body: %w", err)
		}
		return jsonBytes, "application/json", nil

	case ir.BodyForm:
		values := url.Values{}
		switch form := body.Content.(type) {
		case map[string]any:
			for key, value := range form {
				values.Add(key, fmt.Sprintf("%v", value))
			}
		case map[string]string:
			for key, value := range form {
				values.Add(key, value)
			}
		case url.Values:
			values = form
		default:
			return nil, "", fmt.Errorf("form body must be a map, got %T", body.Content)
		}
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil

	case ir.BodyMultipart:
		return buildMultipart(body.Content)

	case ir.BodyText:
		text, ok := body.Content.(string)
		if !ok {
			return nil, "", fmt.Errorf("text body must be string")
		}
		return []byte(text), "text/plain", nil

	case ir.BodyBinary:
		data, err := base64.StdEncoding.DecodeString(body.ContentBase64)
		if err != nil {
			return nil, "", fmt.Errorf("binary body is not valid base64: %w", err)
		}
		return data, "application/octet-stream", nil

	default:
		return nil, "", fmt.Errorf("unsupported body type: %s", body.Type)
	}
}

// buildMultipart encodes a field map as multipart/form-data. String values
// starting with "@" are treated as file paths, like curl -F.
func buildMultipart(content any) ([]byte, string, error) {
	fields, ok := content.(map[string]string)
	if !ok {
		generic, ok := content.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("multipart body must be a map, got %T", content)
		}
		fields = make(map[string]string, len(generic))
		for k, v := range generic {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, "", fmt.Errorf("multipart field %q: %w", name, err)
			}
			part, err := w.CreateFormFile(name, filepath.Base(path))
			if err != nil {
				return nil, "", err
			}
			part.Write(data)
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
