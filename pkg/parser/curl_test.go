package parser

import (
	"testing"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{`curl https://example.com`, []string{"curl", "https://example.com"}},
		{`curl -H "X-A: b c" 'https://x.io'`, []string{"curl", "-H", "X-A: b c", "https://x.io"}},
		{`curl -d '{"a":1}' u`, []string{"curl", "-d", `{"a":1}`, "u"}},
		{"curl\t-k\nhttps://x.io", []string{"curl", "-k", "https://x.io"}},
		{`curl a\ b`, []string{"curl", "a b"}},
		{"curl -X POST \\\n  https://x.io", []string{"curl", "-X", "POST", "https://x.io"}},
		{`curl -d '' u`, []string{"curl", "-d", "", "u"}},
		{`curl -d 'a\nb' u`, []string{"curl", "-d", `a\nb`, "u"}},
		{`curl -H "X-Q: \"hi\" \$HOME"`, []string{"curl", "-H", `X-Q: "hi" $HOME`}},
	}

	for _, tt := range tests {
		tokens, err := tokenize(tt.input)
		if err != nil {
			t.Fatalf("tokenize(%q) error: %v", tt.input, err)
		}
		if len(tokens) != len(tt.expected) {
			t.Fatalf("tokenize(%q) = %q, want %q", tt.input, tokens, tt.expected)
		}
		for i := range tokens {
			if tokens[i] != tt.expected[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.input, i, tokens[i], tt.expected[i])
			}
		}
	}
}

func TestTokenize_UnclosedQuote(t *testing.T) {
	if _, err := tokenize(`curl "https://example.com`); err == nil {
		t.Fatal("expected error for unclosed quote")
	}
}

func TestCurlParser_Basic(t *testing.T) {
	result, err := ParseCurl(`curl https://api.example.com/users?page=2&tag=a&tag=b`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Request.Method != "GET" {
		t.Errorf("method = %s, want GET", result.Request.Method)
	}
	if result.Request.URL != "https://api.example.com/users" {
		t.Errorf("url = %s", result.Request.URL)
	}
	if result.Request.Query["page"] != "2" {
		t.Errorf("query page = %v", result.Request.Query["page"])
	}
	tags, ok := result.Request.Query["tag"].([]string)
	if !ok || len(tags) != 2 {
		t.Errorf("query tag = %v", result.Request.Query["tag"])
	}
	if result.Metadata == nil || result.Metadata.Source != "curl" || result.Metadata.ID == "" {
		t.Errorf("metadata not populated: %+v", result.Metadata)
	}
	if result.Transport.FollowRedirects {
		t.Error("redirects should not be followed without -L")
	}
}

func TestCurlParser_Flags(t *testing.T) {
	result, err := ParseCurl(`curl -X put -k -L --max-redirs 3 -m 2.5 -x http://proxy:8080 ` +
		`-H 'Accept: application/json' -A agent/1 -b 'a=1; b=2' https://example.com`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Request.Method != "PUT" {
		t.Errorf("method = %s, want PUT", result.Request.Method)
	}
	tr := result.Transport
	if tr.TLSVerify || !tr.FollowRedirects || tr.MaxRedirects != 3 || tr.TimeoutMs != 2500 || tr.Proxy != "http://proxy:8080" {
		t.Errorf("transport = %+v", tr)
	}
	if result.Request.Headers["Accept"] != "application/json" {
		t.Errorf("accept header = %q", result.Request.Headers["Accept"])
	}
	if result.Request.Headers["User-Agent"] != "agent/1" {
		t.Errorf("user agent = %q", result.Request.Headers["User-Agent"])
	}
	if result.Request.Cookies["a"] != "1" || result.Request.Cookies["b"] != "2" {
		t.Errorf("cookies = %v", result.Request.Cookies)
	}
}

func TestCurlParser_Bodies(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		bodyType string
	}{
		{"json", `curl -d '{"a":1}' https://x.io`, ir.BodyJSON},
		{"json flag", `curl --json '[1,2]' https://x.io`, ir.BodyJSON},
		{"form", `curl -d 'a=1&b=two' https://x.io`, ir.BodyForm},
		{"text", `curl -d 'plain words' https://x.io`, ir.BodyText},
		{"binary", `curl --data-binary 'raw bytes' https://x.io`, ir.BodyBinary},
		{"multipart", `curl -F title=x -F file=@/tmp/a.txt https://x.io`, ir.BodyMultipart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseCurl(tt.cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Request.Method != "POST" {
				t.Errorf("method = %s, want POST", result.Request.Method)
			}
			if result.Request.Body == nil || result.Request.Body.Type != tt.bodyType {
				t.Fatalf("body = %+v, want type %s", result.Request.Body, tt.bodyType)
			}
		})
	}
}

func TestCurlParser_MultipartFields(t *testing.T) {
	result, err := ParseCurl(`curl -F title=x -F file=@/tmp/a.txt https://x.io`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := result.Request.Body.Content.(map[string]string)
	if fields["title"] != "x" || fields["file"] != "@/tmp/a.txt" {
		t.Errorf("fields = %v", fields)
	}
}

func TestCurlParser_Auth(t *testing.T) {
	tests := []struct {
		cmd      string
		authType string
		user     string
		token    string
	}{
		{`curl -u alice:pw https://x.io`, ir.AuthBasic, "alice", ""},
		{`curl --digest -u alice:pw https://x.io`, ir.AuthDigest, "alice", ""},
		{`curl -H 'Authorization: Bearer t0k' https://x.io`, ir.AuthBearer, "", "t0k"},
		{`curl -H 'Authorization: Basic Ym9iOnB3' https://x.io`, ir.AuthBasic, "bob", ""},
		{`curl --oauth2-bearer abc https://x.io`, ir.AuthBearer, "", "abc"},
	}

	for _, tt := range tests {
		result, err := ParseCurl(tt.cmd)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.cmd, err)
		}
		auth := result.Request.Auth
		if auth == nil {
			t.Fatalf("%s: auth not set", tt.cmd)
		}
		if auth.Type != tt.authType || auth.Username != tt.user || auth.Token != tt.token {
			t.Errorf("%s: auth = %+v", tt.cmd, auth)
		}
	}
}

func TestCurlParser_Errors(t *testing.T) {
	inputs := []string{
		`curl -X`,
		`curl -H 'bad header' https://x.io`,
		`curl -k`,
		`curl --json '{bad' https://x.io`,
		`curl -m soon https://x.io`,
		`curl --max-redirs many https://x.io`,
	}
	for _, input := range inputs {
		if _, err := ParseCurl(input); err == nil {
			t.Errorf("ParseCurl(%q) expected error", input)
		}
	}
}

func TestCurlParser_GluedShortFlags(t *testing.T) {
	result, err := ParseCurl(`curl -XDELETE -HX-Trace:1 -m5 https://x.io/items/1`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Request.Method != "DELETE" {
		t.Errorf("method = %s, want DELETE", result.Request.Method)
	}
	if result.Request.Headers["X-Trace"] != "1" {
		t.Errorf("headers = %v", result.Request.Headers)
	}
	if result.Transport.TimeoutMs != 5000 {
		t.Errorf("timeout = %d, want 5000", result.Transport.TimeoutMs)
	}
}

func TestCurlParser_TimeoutPrecedence(t *testing.T) {
	result, err := ParseCurl(`curl -m 4 --connect-timeout 1 https://x.io`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transport.TimeoutMs != 4000 {
		t.Errorf("timeout = %d, want 4000", result.Transport.TimeoutMs)
	}

	result, err = ParseCurl(`curl --connect-timeout 1.5 https://x.io`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transport.TimeoutMs != 1500 {
		t.Errorf("timeout = %d, want 1500", result.Transport.TimeoutMs)
	}
}

func TestCurlParser_UnknownFlagKeepsURL(t *testing.T) {
	result, err := ParseCurl(`curl --silent https://x.io/a -s --retry 3`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Request.URL != "https://x.io/a" {
		t.Errorf("url = %q", result.Request.URL)
	}
}
