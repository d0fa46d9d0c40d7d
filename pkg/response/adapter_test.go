package response

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/value"
)

type recorder struct {
	passes, fails, comments []string
}

func (r *recorder) Pass(msg string)    { r.passes = append(r.passes, msg) }
func (r *recorder) Fail(msg string)    { r.fails = append(r.fails, msg) }
func (r *recorder) Comment(msg string) { r.comments = append(r.comments, msg) }

func raw(status int, contentType, body string) *ir.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &ir.Response{URL: "http://example.com/page", Status: status, Headers: h, Body: []byte(body)}
}

const listPage = `<html><body><ul>
<li>alpha</li><li>beta</li><li>gamma</li><li>delta</li><li>epsilon</li>
</ul><a href="/x">link</a></body></html>`

func TestHTMLFindAllPagination(t *testing.T) {
	rec := &recorder{}
	a := New(context.Background(), HTML, raw(200, "text/html", listPage), rec, Deps{})

	items, err := a.FindAll(context.Background(), "li", FindOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "beta", items[0].String())
	assert.Equal(t, "gamma", items[1].String())

	assert.Empty(t, rec.fails)
	assert.Empty(t, rec.passes)
}

func TestApplyOptions(t *testing.T) {
	var vals []value.Value
	for _, s := range []string{"apple", "banana", "cherry", "avocado", "apricot"} {
		vals = append(vals, value.Of(s))
	}

	tests := []struct {
		name string
		opts FindOptions
		want []string
	}{
		{"none", FindOptions{}, []string{"apple", "banana", "cherry", "avocado", "apricot"}},
		{"contains", FindOptions{Contains: "an"}, []string{"banana"}},
		{"matches", FindOptions{Matches: regexp.MustCompile(`^a`)}, []string{"apple", "avocado", "apricot"}},
		{"matches then page", FindOptions{Matches: regexp.MustCompile(`^a`), Offset: 1, Limit: 1}, []string{"avocado"}},
		{"offset past end", FindOptions{Offset: 9}, []string{}},
		{"limit larger than set", FindOptions{Limit: 10}, []string{"apple", "banana", "cherry", "avocado", "apricot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyOptions(vals, tt.opts)
			out := make([]string, len(got))
			for i, v := range got {
				out[i] = v.String()
			}
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestHTMLFind(t *testing.T) {
	a := New(context.Background(), HTML, raw(200, "text/html", listPage), &recorder{}, Deps{})
	ctx := context.Background()

	first, err := a.Find(ctx, "li", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", first.String())
	assert.Equal(t, "html", first.Origin().ResponseType())

	byText, err := a.Find(ctx, "li", FindOptions{Contains: "lt"})
	require.NoError(t, err)
	assert.Equal(t, "delta", byText.String())

	missing, err := a.Find(ctx, "table", FindOptions{})
	require.NoError(t, err)
	assert.True(t, missing.IsNull())

	none, err := a.FindAll(ctx, "table", FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJSONAdapter(t *testing.T) {
	body := `{"id":1,"user":{"name":"ada"},"items":[{"n":1},{"n":2},{"n":3}]}`
	rec := &recorder{}
	a := New(context.Background(), JSON, raw(200, "application/json", body), rec, Deps{})
	ctx := context.Background()

	assert.Equal(t, []string{"JSON body parsed"}, rec.passes)

	tests := []struct {
		selector string
		want     string
	}{
		{"id", "1"},
		{"user.name", "ada"},
		{"$.user.name", "ada"},
		{"$.items[1].n", "2"},
		{"items.2.n", "3"},
	}
	for _, tt := range tests {
		v, err := a.Find(ctx, tt.selector, FindOptions{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, v.String(), tt.selector)
	}

	items, err := a.FindAll(ctx, "$.items", FindOptions{Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Get("n").Int())

	missing, err := a.Find(ctx, "$.nope.deeper[3]", FindOptions{})
	require.NoError(t, err)
	assert.True(t, missing.IsNull())

	root := a.RootValue()
	assert.Equal(t, 1, root.Get("id").Int())
}

func TestJSONAdapterParseFailure(t *testing.T) {
	for _, body := range []string{"{not json", "null"} {
		rec := &recorder{}
		a := New(context.Background(), JSON, raw(200, "application/json", body), rec, Deps{})
		assert.Len(t, rec.fails, 1, body)

		v, err := a.Find(context.Background(), "id", FindOptions{})
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	}
}

func TestJSONPathToGJSON(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "$", want: ""},
		{in: "$.a", want: "a"},
		{in: "$.a.b[0].c", want: "a.b.0.c"},
		{in: "$[2]", want: "2"},
		{in: "$.items[*].id", want: "items.#.id"},
		{in: "$.items[*]", want: "items"},
		{in: "$['key']", want: "key"},
		{in: "a.b", wantErr: true},
		{in: "$.a[0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := jsonPathToGJSON(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

type stubImageProber struct{}

// Probe reads the metadata straight from the body.
func (stubImageProber) Probe(_ context.Context, raw *ir.Response) (ImageMeta, error) {
	var meta ImageMeta
	err := json.Unmarshal(raw.Body, &meta)
	return meta, err
}

func TestImageAdapterWithProber(t *testing.T) {
	body := `{"width":620,"height":349,"mime":"image/png","length":1024,"url":"http://x/y.png"}`
	rec := &recorder{}
	a := New(context.Background(), Image, raw(200, "application/json", body), rec, Deps{Images: stubImageProber{}})
	ctx := context.Background()

	assert.Empty(t, rec.fails)
	require.Len(t, rec.passes, 1)
	assert.Contains(t, rec.passes[0], "image/png")

	width, err := a.Find(ctx, "width", FindOptions{})
	require.NoError(t, err)
	assert.True(t, width.Equal(620))

	path, err := a.Find(ctx, "path", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/y.png", path.String())
}

func TestDefaultImageProber(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	r := &ir.Response{URL: "http://cdn/img/logo.png", Status: 200, Headers: http.Header{}, Body: buf.Bytes()}
	rec := &recorder{}
	a := New(context.Background(), Image, r, rec, Deps{})

	assert.Empty(t, rec.fails)
	root := a.RootValue()
	assert.Equal(t, 4, root.Get("width").Int())
	assert.Equal(t, 3, root.Get("height").Int())
	assert.Equal(t, "image/png", root.Get("mime").String())
	assert.Equal(t, "/img/logo.png", root.Get("path").String())
}

func TestImageAdapterNotAnImage(t *testing.T) {
	rec := &recorder{}
	New(context.Background(), Image, raw(200, "text/html", "<html></html>"), rec, Deps{})
	assert.Len(t, rec.fails, 2)
}

const sampleXML = `<?xml version="1.0"?>
<rss xmlns:media="http://search.yahoo.com/mrss/"><channel>
<Title>Feed</Title>
<item id="1"><title>First</title></item>
<item id="2"><title>Second</title><media:content url="a.mp4"/></item>
</channel></rss>`

func TestXMLAdapter(t *testing.T) {
	rec := &recorder{}
	a := New(context.Background(), XML, raw(200, "application/xml", sampleXML), rec, Deps{})
	ctx := context.Background()
	assert.Empty(t, rec.fails)

	items, err := a.FindAll(ctx, "item", FindOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", items[1].Attribute("id").String())

	title, err := a.Find(ctx, "channel > title", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Feed", title.String())

	content, err := a.Find(ctx, "content", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", content.Attribute("url").String())
}

func TestXMLAdapterParseFailure(t *testing.T) {
	rec := &recorder{}
	a := New(context.Background(), XML, raw(200, "application/xml", ""), rec, Deps{})
	assert.Len(t, rec.fails, 1)

	v, err := a.Find(context.Background(), "item", FindOptions{})
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",URI="en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720
high.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:7
#EXTINF:9.5,intro
seg7.ts
#EXTINF:10.0,
seg8.ts
#EXT-X-ENDLIST
`

func TestHLSAdapter(t *testing.T) {
	ctx := context.Background()

	rec := &recorder{}
	master := New(ctx, HLS, raw(200, "application/vnd.apple.mpegurl", masterPlaylist), rec, Deps{})
	assert.Len(t, rec.passes, 2)
	assert.Empty(t, rec.fails)

	typ, _ := master.Find(ctx, "type", FindOptions{})
	assert.Equal(t, "master", typ.String())
	variants, err := master.FindAll(ctx, "variants", FindOptions{})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 1280000, variants[0].Get("bandwidth").Int())
	assert.Equal(t, "avc1.4d401e,mp4a.40.2", variants[0].Get("codecs").String())
	assert.Equal(t, "high.m3u8", variants[1].Get("uri").String())
	lang, _ := master.Find(ctx, "media.0.NAME", FindOptions{})
	assert.Equal(t, "English", lang.String())

	media := New(ctx, HLS, raw(200, "", mediaPlaylist), &recorder{}, Deps{})
	seq, _ := media.Find(ctx, "mediaSequence", FindOptions{})
	assert.Equal(t, 7, seq.Int())
	end, _ := media.Find(ctx, "endList", FindOptions{})
	assert.True(t, end.Bool())
	segs, _ := media.FindAll(ctx, "segments", FindOptions{})
	require.Len(t, segs, 2)
	assert.Equal(t, 9.5, segs[0].Get("duration").Float())
	assert.Equal(t, "intro", segs[0].Get("title").String())
}

func TestHLSAdapterOverlongLine(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:4.0,\nseg1.ts\n#EXTINF:4.0," + strings.Repeat("x", 70*1024) + "\nseg2.ts\n"
	rec := &recorder{}
	a := New(context.Background(), HLS, raw(200, "application/vnd.apple.mpegurl", body), rec, Deps{})

	require.Len(t, rec.fails, 1)
	assert.Contains(t, rec.fails[0], "HLS manifest truncated after 1 segments")
	segs, _ := a.FindAll(context.Background(), "segments", FindOptions{})
	assert.Len(t, segs, 1)
}

func TestHLSAdapterBaselineFailures(t *testing.T) {
	rec := &recorder{}
	New(context.Background(), HLS, raw(404, "text/html", "<html>not found</html>"), rec, Deps{})
	assert.Len(t, rec.fails, 2)
}

type stubMediaProber struct {
	report string
	err    error
}

func (s stubMediaProber) Probe(context.Context, string) ([]byte, error) {
	return []byte(s.report), s.err
}

func TestMediaAdapter(t *testing.T) {
	ctx := context.Background()
	report := `{"streams":[{"codec_type":"video","width":1920},{"codec_type":"audio"}],"format":{"duration":"12.5"}}`

	rec := &recorder{}
	a := New(ctx, Media, raw(200, "video/mp4", ""), rec, Deps{Media: stubMediaProber{report: report}})
	assert.Equal(t, []string{"media probe succeeded"}, rec.passes)

	width, _ := a.Find(ctx, "streams.0.width", FindOptions{})
	assert.Equal(t, 1920, width.Int())
	streams, _ := a.FindAll(ctx, "streams", FindOptions{Contains: "audio"})
	assert.Len(t, streams, 1)
	dur, _ := a.Find(ctx, "$.format.duration", FindOptions{})
	assert.Equal(t, 12.5, dur.Float())

	failed := &recorder{}
	New(ctx, Media, raw(200, "", ""), failed, Deps{Media: stubMediaProber{err: errors.New("boom")}})
	assert.Len(t, failed.fails, 1)
}

func TestHeadersAdapter(t *testing.T) {
	r := raw(200, "application/json", "{}")
	r.Headers.Add("Set-Cookie", "a=1")
	r.Headers.Add("Set-Cookie", "b=2")
	r.Headers.Set("X-Request-Id", "abc")
	a := New(context.Background(), Headers, r, &recorder{}, Deps{})
	ctx := context.Background()

	ct, _ := a.Find(ctx, "CONTENT-TYPE", FindOptions{})
	assert.Equal(t, "application/json", ct.String())
	id, _ := a.Find(ctx, "x-request-id", FindOptions{})
	assert.Equal(t, "abc", id.String())
	cookies, _ := a.FindAll(ctx, "Set-Cookie", FindOptions{})
	assert.Len(t, cookies, 2)
}

func TestResourceAdapter(t *testing.T) {
	ctx := context.Background()
	r := raw(200, "text/css; charset=utf-8", "body { color: red }")
	r.URL = "http://example.com/static/site.css"
	a := New(ctx, Stylesheet, r, &recorder{}, Deps{})

	assert.Equal(t, Stylesheet, a.Type())
	mime, _ := a.Find(ctx, "mime", FindOptions{})
	assert.Equal(t, "text/css", mime.String())
	path, _ := a.Find(ctx, "path", FindOptions{})
	assert.Equal(t, "/static/site.css", path.String())
	body, _ := a.Find(ctx, "body", FindOptions{})
	assert.Contains(t, body.String(), "color: red")
}

type fakePage struct {
	calls atomic.Int32
	ready int32
}

func (p *fakePage) HTML(context.Context) (string, error) {
	if p.calls.Add(1) >= p.ready {
		return `<div id="done">loaded</div>`, nil
	}
	return `<div id="spinner"></div>`, nil
}

func TestBrowserWaitForReReadsPage(t *testing.T) {
	page := &fakePage{ready: 3}
	a := New(context.Background(), Browser, raw(200, "text/html", `<div id="spinner"></div>`), &recorder{}, Deps{Page: page})

	v, err := a.WaitFor(context.Background(), "#done", FindOptions{}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v.String())
	assert.GreaterOrEqual(t, page.calls.Load(), int32(3))
}

func TestBrowserWaitForTimesOut(t *testing.T) {
	page := &fakePage{ready: 1 << 30}
	a := New(context.Background(), Browser, raw(200, "text/html", ""), &recorder{}, Deps{Page: page})

	v, err := a.WaitFor(context.Background(), "#done", FindOptions{}, 250*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

type fakeRemote struct {
	id, text string
}

func (f fakeRemote) ID() string                                       { return f.id }
func (f fakeRemote) TagName(context.Context) (string, error)          { return "XCUIElementTypeButton", nil }
func (f fakeRemote) Text(context.Context) (string, error)             { return f.text, nil }
func (f fakeRemote) Attribute(context.Context, string) (string, error) { return "", nil }
func (f fakeRemote) Click(context.Context) error                      { return nil }
func (f fakeRemote) SendKeys(context.Context, string) error           { return nil }

type fakeSession struct {
	platform      string
	using, target string
}

func (s *fakeSession) Platform() string { return s.platform }

func (s *fakeSession) FindElements(_ context.Context, using, target string) ([]value.Remote, error) {
	s.using, s.target = using, target
	return []value.Remote{fakeRemote{"1", "Sign in"}, fakeRemote{"2", "Sign up"}}, nil
}

// singleSession also answers single-element lookups.
type singleSession struct {
	fakeSession
	singles int
}

func (s *singleSession) FindElement(_ context.Context, using, target string) (value.Remote, error) {
	s.singles++
	s.using, s.target = using, target
	if target == "missing" {
		return nil, nil
	}
	return fakeRemote{"9", "Continue"}, nil
}

func TestMobileFindUsesSingleLookup(t *testing.T) {
	ctx := context.Background()
	s := &singleSession{fakeSession: fakeSession{platform: "android"}}
	a := New(ctx, Mobile, &ir.Response{Status: 200}, &recorder{}, Deps{Session: s})

	v, err := a.Find(ctx, "accessibility id/next", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Continue", v.String())
	assert.Equal(t, "accessibility id", s.using)
	assert.Equal(t, 1, s.singles)

	v, err = a.Find(ctx, "id/missing", FindOptions{})
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	// a filter that cannot be pushed to the server needs every match
	v, err = a.Find(ctx, "xpath///button", FindOptions{Contains: "up"})
	require.NoError(t, err)
	assert.Equal(t, "Sign up", v.String())
	assert.Equal(t, 2, s.singles)
}

func TestMobileTextContainsTranslation(t *testing.T) {
	ctx := context.Background()

	android := &fakeSession{platform: "Android"}
	a := New(ctx, Mobile, &ir.Response{Status: 200}, &recorder{}, Deps{Session: android})
	v, err := a.Find(ctx, "class name/android.widget.Button", FindOptions{Contains: "Sign"})
	require.NoError(t, err)
	assert.Equal(t, "Sign in", v.String())
	assert.Equal(t, strategyUiAutomator, android.using)
	assert.Equal(t, `new UiSelector().className("android.widget.Button").textContains("Sign")`, android.target)

	ios := &fakeSession{platform: "iOS"}
	a = New(ctx, Mobile, &ir.Response{Status: 200}, &recorder{}, Deps{Session: ios})
	all, err := a.FindAll(ctx, "accessibility id/auth", FindOptions{Contains: "Sign"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, strategyPredicate, ios.using)
	assert.Equal(t, `name == "auth" AND label CONTAINS "Sign"`, ios.target)
}

func TestMobileClientSideFallback(t *testing.T) {
	ctx := context.Background()
	s := &fakeSession{platform: "android"}
	a := New(ctx, Mobile, &ir.Response{Status: 200}, &recorder{}, Deps{Session: s})

	all, err := a.FindAll(ctx, "xpath///button", FindOptions{Contains: "up"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Sign up", all[0].String())
	assert.Equal(t, "xpath", s.using)
	assert.Equal(t, "//button", s.target)
}

func TestMobileWithoutSession(t *testing.T) {
	rec := &recorder{}
	a := New(context.Background(), Mobile, nil, rec, Deps{})
	assert.Equal(t, []string{"mobile session was not created"}, rec.fails)

	v, err := a.Find(context.Background(), "id/x", FindOptions{})
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("JSON")
	require.NoError(t, err)
	assert.Equal(t, JSON, typ)
	assert.True(t, Browser.BrowserDriven())
	assert.False(t, HTML.BrowserDriven())

	_, err = ParseType("pdf")
	assert.Error(t, err)
}
