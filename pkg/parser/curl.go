package parser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// CurlParser converts curl commands to IR
type CurlParser struct{}

// NewCurlParser creates a new curl parser
func NewCurlParser() *CurlParser {
	return &CurlParser{}
}

// ParseCurl is shorthand for NewCurlParser().Parse(curlCmd).
func ParseCurl(curlCmd string) (*ir.IR, error) {
	return NewCurlParser().Parse(curlCmd)
}

// Parse converts a curl command string to IR
func (p *CurlParser) Parse(curlCmd string) (*ir.IR, error) {
	tokens, err := tokenize(curlCmd)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}

	result := &ir.IR{
		Version: ir.Version,
		Metadata: &ir.Metadata{
			ID:        uuid.New().String(),
			Source:    "curl",
			CreatedAt: timePtr(time.Now()),
		},
		Request: ir.Request{
			Method:  "GET",
			Headers: make(map[string]string),
			Query:   make(map[string]any),
		},
		Transport: ir.DefaultTransport(),
	}
	// curl does not follow redirects unless -L is given
	result.Transport.FollowRedirects = false

	c := &curlArgs{tokens: tokens}
	if err := c.apply(result); err != nil {
		return nil, err
	}

	if c.digest && result.Request.Auth != nil && result.Request.Auth.Type == ir.AuthBasic {
		result.Request.Auth.Type = ir.AuthDigest
	}
	if result.Request.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}
	if err := extractQueryParams(&result.Request); err != nil {
		return nil, err
	}
	return result, nil
}

// shortWithValue lists the short flags that take an argument, which curl
// also accepts glued to the flag (-XPOST).
const shortWithValue = "XHdFbuAexm"

type curlArgs struct {
	tokens []string
	pos    int

	digest     bool
	maxTimeSet bool
}

// value consumes the argument of flag.
func (c *curlArgs) value(flag string) (string, error) {
	if c.pos >= len(c.tokens) {
		return "", fmt.Errorf("missing value for %s", flag)
	}
	v := c.tokens[c.pos]
	c.pos++
	return v, nil
}

func (c *curlArgs) seconds(flag string) (int, error) {
	v, err := c.value(flag)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(v, 64)
	if err != nil || s < 0 {
		return 0, fmt.Errorf("invalid %s value %q", flag, v)
	}
	return int(s * 1000), nil
}

func (c *curlArgs) apply(out *ir.IR) error {
	req := &out.Request
	withBody := func() {
		if req.Method == "GET" {
			req.Method = "POST"
		}
	}

	for c.pos < len(c.tokens) {
		token := c.tokens[c.pos]
		c.pos++

		if token == "curl" && c.pos == 1 {
			continue
		}
		if !strings.HasPrefix(token, "-") || token == "-" {
			if req.URL == "" {
				req.URL = token
			}
			continue
		}

		flag := token
		if len(flag) > 2 && flag[1] != '-' && strings.IndexByte(shortWithValue, flag[1]) >= 0 {
			// -XPOST: push the glued argument back as the next token
			flag = token[:2]
			c.pos--
			c.tokens[c.pos] = token[2:]
		}

		var err error
		var v string
		switch flag {
		case "-X", "--request":
			if v, err = c.value(flag); err == nil {
				req.Method = strings.ToUpper(v)
			}
		case "-H", "--header":
			if v, err = c.value(flag); err == nil {
				err = parseHeader(v, req)
			}
		case "-d", "--data", "--data-raw", "--data-binary", "--data-urlencode":
			if v, err = c.value(flag); err == nil {
				withBody()
				err = parseData(v, flag, req)
			}
		case "--json":
			if v, err = c.value(flag); err == nil {
				withBody()
				err = parseJSONFlag(v, req)
			}
		case "-F", "--form":
			if v, err = c.value(flag); err == nil {
				withBody()
				err = parseFormField(v, req)
			}
		case "--digest":
			c.digest = true
		case "--oauth2-bearer":
			if v, err = c.value(flag); err == nil {
				req.Auth = &ir.Auth{Type: ir.AuthBearer, Token: v}
			}
		case "-b", "--cookie":
			if v, err = c.value(flag); err == nil {
				parseCookies(v, req)
			}
		case "-u", "--user":
			if v, err = c.value(flag); err == nil {
				parseAuth(v, req)
			}
		case "-A", "--user-agent":
			if v, err = c.value(flag); err == nil {
				req.Headers["User-Agent"] = v
			}
		case "-e", "--referer":
			if v, err = c.value(flag); err == nil {
				req.Headers["Referer"] = v
			}
		case "-k", "--insecure":
			out.Transport.TLSVerify = false
		case "-L", "--location":
			out.Transport.FollowRedirects = true
		case "--max-redirs":
			if v, err = c.value(flag); err == nil {
				n, convErr := strconv.Atoi(v)
				if convErr != nil {
					err = fmt.Errorf("invalid %s value %q", flag, v)
				} else {
					out.Transport.MaxRedirects = n
				}
			}
		case "-x", "--proxy":
			if v, err = c.value(flag); err == nil {
				out.Transport.Proxy = v
			}
		case "-m", "--max-time":
			var ms int
			if ms, err = c.seconds(flag); err == nil {
				out.Transport.TimeoutMs = ms
				c.maxTimeSet = true
			}
		case "--connect-timeout":
			// the overall budget from -m wins
			var ms int
			if ms, err = c.seconds(flag); err == nil && !c.maxTimeSet {
				out.Transport.TimeoutMs = ms
			}
		case "-G", "--get":
			req.Method = "GET"
		case "-I", "--head":
			req.Method = "HEAD"
		case "--compressed":
			req.Headers["Accept-Encoding"] = "gzip, deflate, br"
		default:
			// unknown flag; drop what looks like its argument
			if c.pos < len(c.tokens) && !strings.HasPrefix(c.tokens[c.pos], "-") && !looksLikeURL(c.tokens[c.pos]) {
				c.pos++
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}

func parseJSONFlag(payload string, req *ir.Request) error {
	var data any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return fmt.Errorf("invalid --json payload: %w", err)
	}
	req.Body = &ir.Body{Type: ir.BodyJSON, Content: data}
	req.Headers["Content-Type"] = "application/json"
	req.Headers["Accept"] = "application/json"
	return nil
}

func parseHeader(header string, req *ir.Request) error {
	parts := strings.SplitN(header, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid header format: %s", header)
	}

	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])

	// Handle special headers
	switch strings.ToLower(key) {
	case "cookie":
		parseCookies(value, req)
	case "authorization":
		parseAuthorizationHeader(value, req)
	default:
		req.Headers[key] = value
	}

	return nil
}

func parseData(data string, flag string, req *ir.Request) error {
	// Try to parse as JSON first
	var jsonData any
	if err := json.Unmarshal([]byte(data), &jsonData); err == nil {
		req.Body = &ir.Body{
			Type:    ir.BodyJSON,
			Content: jsonData,
		}
		if req.Headers["Content-Type"] == "" {
			req.Headers["Content-Type"] = "application/json"
		}
		return nil
	}

	// Check if it's URL-encoded form data
	if strings.Contains(data, "=") && !strings.Contains(data, "{") {
		formData := make(map[string]string)
		pairs := strings.Split(data, "&")
		for _, pair := range pairs {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 {
				key, _ := url.QueryUnescape(kv[0])
				val, _ := url.QueryUnescape(kv[1])
				formData[key] = val
			}
		}
		req.Body = &ir.Body{
			Type:    ir.BodyForm,
			Content: formData,
		}
		if req.Headers["Content-Type"] == "" {
			req.Headers["Content-Type"] = "application/x-www-form-urlencoded"
		}
		return nil
	}

	// Binary data
	if flag == "--data-binary" {
		req.Body = &ir.Body{
			Type:          ir.BodyBinary,
			ContentBase64: base64.StdEncoding.EncodeToString([]byte(data)),
		}
		return nil
	}

	// Default to text
	req.Body = &ir.Body{
		Type:    ir.BodyText,
		Content: data,
	}
	return nil
}

// parseFormField handles one -F name=value pair. A value of @path attaches a
// file; executor.buildMultipart reads it at send time.
func parseFormField(field string, req *ir.Request) error {
	name, value, ok := strings.Cut(field, "=")
	if !ok {
		return fmt.Errorf("invalid form field: %s", field)
	}
	fields := multipartFields(req.Body)
	fields[name] = value
	req.Body = &ir.Body{Type: ir.BodyMultipart, Content: fields}
	return nil
}

func multipartFields(body *ir.Body) map[string]string {
	if body != nil && body.Type == ir.BodyMultipart {
		if fields, ok := body.Content.(map[string]string); ok {
			return fields
		}
	}
	return make(map[string]string)
}

func parseCookies(cookieStr string, req *ir.Request) {
	if req.Cookies == nil {
		req.Cookies = make(map[string]string)
	}

	pairs := strings.Split(cookieStr, ";")
	for _, pair := range pairs {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			req.Cookies[kv[0]] = kv[1]
		}
	}
}

func parseAuth(userpass string, req *ir.Request) {
	parts := strings.SplitN(userpass, ":", 2)
	password := ""
	if len(parts) == 2 {
		password = parts[1]
	}

	req.Auth = &ir.Auth{
		Type:     ir.AuthBasic,
		Username: parts[0],
		Password: password,
	}
}

func parseAuthorizationHeader(value string, req *ir.Request) {
	if strings.HasPrefix(value, "Bearer ") {
		req.Auth = &ir.Auth{
			Type:  ir.AuthBearer,
			Token: strings.TrimPrefix(value, "Bearer "),
		}
	} else if encoded, ok := strings.CutPrefix(value, "Basic "); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			req.Headers["Authorization"] = value
			return
		}
		parseAuth(string(decoded), req)
	} else {
		req.Headers["Authorization"] = value
	}
}

func extractQueryParams(req *ir.Request) error {
	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if len(parsedURL.Query()) > 0 {
		for key, values := range parsedURL.Query() {
			if len(values) == 1 {
				req.Query[key] = values[0]
			} else {
				req.Query[key] = values
			}
		}

		// Remove query from URL
		parsedURL.RawQuery = ""
		req.URL = parsedURL.String()
	}

	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
