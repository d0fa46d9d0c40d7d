package scenario

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/browser"
	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/parser"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

// Disposition is where a scenario is in its lifecycle.
type Disposition string

const (
	Pending   Disposition = "pending"
	Executing Disposition = "executing"
	Completed Disposition = "completed"
	Skipped   Disposition = "skipped"
	Cancelled Disposition = "cancelled"
	Aborted   Disposition = "aborted"
)

// Terminal reports whether d is a final state.
func (d Disposition) Terminal() bool {
	switch d {
	case Completed, Skipped, Cancelled, Aborted:
		return true
	}
	return false
}

// Callback is one stage of a scenario. A returned error, like a panic,
// fails the scenario and stops its remaining callbacks.
type Callback func(a *AssertionContext) error

// Hook observes a scenario lifecycle event.
type Hook func(s *Scenario)

type scenarioHooks struct {
	before, after, success, failure, finally, subscribers []Hook
}

// Scenario is one request, browser page or mobile session plus the
// callbacks that assert on its response.
type Scenario struct {
	id    string
	suite *Suite
	log   *zap.Logger

	mu          sync.Mutex
	title       string
	typ         response.Type
	req         *ir.IR
	caps        map[string]any
	browserOpts browser.Options
	timeout     time.Duration
	callbacks   []Callback
	next        int
	hooks       scenarioHooks

	started     bool
	slot        bool
	wait        bool
	disposition Disposition
	waitFor     *Scenario
	dependents  []*Scenario
	parent      *Scenario
	children    []*Scenario

	lines       []report.Line
	failures    int
	abortReason string
	err         error
	store       map[string]any

	initAt       time.Time
	startAt      time.Time
	requestStart time.Time
	requestEnd   time.Time
	endAt        time.Time

	adapter response.Adapter
	page    browser.Session
	device  MobileSession
	cancel  context.CancelFunc
	done    chan struct{}
}

func newScenario(suite *Suite, title string, typ response.Type) *Scenario {
	id := uuid.NewString()
	return &Scenario{
		id:          id,
		suite:       suite,
		log:         suite.log.With(zap.String("scenario", title), zap.String("id", id[:8])),
		title:       title,
		typ:         typ,
		req:         ir.New(""),
		browserOpts: suite.cfg.BrowserOptions,
		disposition: Pending,
		store:       make(map[string]any),
		initAt:      time.Now(),
		done:        make(chan struct{}),
	}
}

func (s *Scenario) ID() string { return s.id }

func (s *Scenario) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Scenario) Type() response.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typ
}

// URL is the target as resolved against the suite base.
func (s *Scenario) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req.Request.URL
}

func (s *Scenario) Suite() *Suite { return s.suite }

// Parent is the scenario this one was spawned from, if any.
func (s *Scenario) Parent() *Scenario { return s.parent }

func (s *Scenario) Disposition() Disposition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposition
}

// Started reports whether Execute took effect.
func (s *Scenario) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Done is closed once the scenario is terminal and its hooks have run.
func (s *Scenario) Done() <-chan struct{} { return s.done }

// Err reports configuration misuse, such as mutating after start.
func (s *Scenario) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Passed is true for a terminal scenario without required failures.
// Skipped scenarios pass unless something failed before the skip;
// cancelled and aborted ones never pass.
func (s *Scenario) Passed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passedLocked()
}

func (s *Scenario) passedLocked() bool {
	switch s.disposition {
	case Completed, Skipped:
		return s.failures == 0 && !s.endAt.IsZero()
	}
	return false
}

// Failures counts required failed assertions.
func (s *Scenario) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Lines returns a copy of the log.
func (s *Scenario) Lines() []report.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Line(nil), s.lines...)
}

// AbortReason is report.AbortTransport or report.AbortTimeout for aborted
// scenarios.
func (s *Scenario) AbortReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortReason
}

// Response is the adapter built from the fetched response, nil before
// the fetch completes.
func (s *Scenario) Response() response.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter
}

// Duration is the time from start to end, or until now while running.
func (s *Scenario) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.startAt.IsZero():
		return 0
	case s.endAt.IsZero():
		return time.Since(s.startAt)
	}
	return s.endAt.Sub(s.startAt)
}

// Get reads the scratch store.
func (s *Scenario) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[key]
}

// Set writes the scratch store.
func (s *Scenario) Set(key string, v any) *Scenario {
	s.mu.Lock()
	s.store[key] = v
	s.mu.Unlock()
	return s
}

// Request returns a copy of the request configuration.
func (s *Scenario) Request() *ir.IR {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req.Clone()
}

// configure applies fn unless the scenario has started, in which case the
// call is rejected and recorded in Err. A scenario still running also
// fails, so the mistake shows in the report.
func (s *Scenario) configure(op string, fn func()) *Scenario {
	s.mu.Lock()
	if s.started || s.disposition.Terminal() {
		s.err = fmt.Errorf("%s: %w", op, ErrAlreadyStarted)
		if !s.disposition.Terminal() {
			s.lines = append(s.lines, report.Line{Type: report.LineFail, Message: s.err.Error(), Timestamp: time.Now()})
			s.failures++
		}
		s.mu.Unlock()
		s.log.Warn("scenario configured after start, ignoring", zap.String("op", op))
		return s
	}
	fn()
	s.mu.Unlock()
	return s
}

// Open sets the target URL, resolved against the suite base.
func (s *Scenario) Open(target string) *Scenario {
	resolved := s.suite.BuildURL(target)
	s.configure("Open", func() {
		s.req.Request.URL = resolved
		if s.title == "" {
			s.title = resolved
		}
	})
	s.maybeStart()
	return s
}

// OpenCurl replaces the request configuration with one parsed from a curl
// command line.
func (s *Scenario) OpenCurl(cmd string) *Scenario {
	parsed, err := parser.ParseCurl(cmd)
	if err != nil {
		s.mu.Lock()
		s.err = fmt.Errorf("OpenCurl: %w", err)
		s.mu.Unlock()
		s.log.Warn("invalid curl command", zap.Error(err))
		return s
	}
	parsed.Request.URL = s.suite.BuildURL(parsed.Request.URL)
	s.configure("OpenCurl", func() {
		s.req = parsed
		if s.title == "" {
			s.title = parsed.Request.URL
		}
	})
	s.maybeStart()
	return s
}

// SetType changes the response type.
func (s *Scenario) SetType(t response.Type) *Scenario {
	return s.configure("SetType", func() { s.typ = t })
}

func (s *Scenario) Method(m string) *Scenario {
	return s.configure("Method", func() { s.req.Request.Method = strings.ToUpper(m) })
}

func (s *Scenario) Header(name, v string) *Scenario {
	return s.configure("Header", func() {
		if s.req.Request.Headers == nil {
			s.req.Request.Headers = make(map[string]string)
		}
		s.req.Request.Headers[name] = v
	})
}

func (s *Scenario) Headers(h map[string]string) *Scenario {
	return s.configure("Headers", func() {
		if s.req.Request.Headers == nil {
			s.req.Request.Headers = make(map[string]string)
		}
		maps.Copy(s.req.Request.Headers, h)
	})
}

func (s *Scenario) Query(key string, v any) *Scenario {
	return s.configure("Query", func() {
		if s.req.Request.Query == nil {
			s.req.Request.Query = make(map[string]any)
		}
		s.req.Request.Query[key] = v
	})
}

func (s *Scenario) Cookie(name, v string) *Scenario {
	return s.configure("Cookie", func() {
		if s.req.Request.Cookies == nil {
			s.req.Request.Cookies = make(map[string]string)
		}
		s.req.Request.Cookies[name] = v
	})
}

// JSONBody sends v encoded as JSON.
func (s *Scenario) JSONBody(v any) *Scenario {
	return s.configure("JSONBody", func() {
		s.req.Request.Body = &ir.Body{Type: ir.BodyJSON, Content: v}
	})
}

// FormBody sends fields url-encoded.
func (s *Scenario) FormBody(fields map[string]string) *Scenario {
	return s.configure("FormBody", func() {
		s.req.Request.Body = &ir.Body{Type: ir.BodyForm, Content: maps.Clone(fields)}
	})
}

// MultipartBody sends fields as multipart/form-data. A value starting
// with @ attaches the named file.
func (s *Scenario) MultipartBody(fields map[string]string) *Scenario {
	return s.configure("MultipartBody", func() {
		s.req.Request.Body = &ir.Body{Type: ir.BodyMultipart, Content: maps.Clone(fields)}
	})
}

func (s *Scenario) TextBody(text string) *Scenario {
	return s.configure("TextBody", func() {
		s.req.Request.Body = &ir.Body{Type: ir.BodyText, Content: text}
	})
}

func (s *Scenario) BasicAuth(user, password string) *Scenario {
	return s.configure("BasicAuth", func() {
		s.req.Request.Auth = &ir.Auth{Type: ir.AuthBasic, Username: user, Password: password}
	})
}

func (s *Scenario) DigestAuth(user, password string) *Scenario {
	return s.configure("DigestAuth", func() {
		s.req.Request.Auth = &ir.Auth{Type: ir.AuthDigest, Username: user, Password: password}
	})
}

func (s *Scenario) BearerToken(token string) *Scenario {
	return s.configure("BearerToken", func() {
		s.req.Request.Auth = &ir.Auth{Type: ir.AuthBearer, Token: token}
	})
}

func (s *Scenario) Proxy(proxyURL string) *Scenario {
	return s.configure("Proxy", func() { s.transport().Proxy = proxyURL })
}

// RequestTimeout bounds the HTTP exchange alone.
func (s *Scenario) RequestTimeout(d time.Duration) *Scenario {
	return s.configure("RequestTimeout", func() { s.transport().TimeoutMs = int(d.Milliseconds()) })
}

func (s *Scenario) MaxRedirects(n int) *Scenario {
	return s.configure("MaxRedirects", func() {
		t := s.transport()
		t.MaxRedirects = n
		t.FollowRedirects = n > 0
	})
}

func (s *Scenario) FollowRedirects(follow bool) *Scenario {
	return s.configure("FollowRedirects", func() { s.transport().FollowRedirects = follow })
}

func (s *Scenario) VerifyTLS(verify bool) *Scenario {
	return s.configure("VerifyTLS", func() { s.transport().TLSVerify = verify })
}

func (s *Scenario) transport() *ir.Transport {
	if s.req.Transport == nil {
		s.req.Transport = ir.DefaultTransport()
	}
	return s.req.Transport
}

// Timeout aborts the scenario when fetch plus callbacks take longer than
// d. It overrides Config.ScenarioTimeout.
func (s *Scenario) Timeout(d time.Duration) *Scenario {
	return s.configure("Timeout", func() { s.timeout = d })
}

// Capabilities sets the session capabilities of a mobile scenario.
func (s *Scenario) Capabilities(caps map[string]any) *Scenario {
	return s.configure("Capabilities", func() { s.caps = maps.Clone(caps) })
}

// BrowserOptions overrides the suite's browser options.
func (s *Scenario) BrowserOptions(opts browser.Options) *Scenario {
	return s.configure("BrowserOptions", func() { s.browserOpts = opts })
}

// Wait holds the scenario back from automatic execution until Execute is
// called.
func (s *Scenario) Wait() *Scenario {
	return s.configure("Wait", func() { s.wait = true })
}

// WaitFor defers execution until other is terminal, whatever its outcome.
func (s *Scenario) WaitFor(other *Scenario) *Scenario {
	if other == nil || other == s {
		return s
	}
	s.configure("WaitFor", func() { s.waitFor = other })
	if !other.addDependent(s) {
		// already terminal: nothing to wait for
		s.maybeStart()
	}
	return s
}

// addDependent registers d unless s already finished.
func (s *Scenario) addDependent(d *Scenario) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposition.Terminal() {
		return false
	}
	s.dependents = append(s.dependents, d)
	return true
}

// Next appends a callback. Callbacks may append more while running; those
// run after everything already queued.
func (s *Scenario) Next(cb Callback) *Scenario {
	s.mu.Lock()
	if s.disposition.Terminal() {
		s.err = fmt.Errorf("Next: %w", ErrAlreadyStarted)
		s.mu.Unlock()
		s.log.Warn("callback added to finished scenario, ignoring")
		return s
	}
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
	s.maybeStart()
	return s
}

func (s *Scenario) addHook(op string, list *[]Hook, h Hook) *Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposition.Terminal() {
		s.err = fmt.Errorf("%s: %w", op, ErrAlreadyStarted)
		return s
	}
	*list = append(*list, h)
	return s
}

// Before runs once the scenario holds an execution slot, before the fetch.
func (s *Scenario) Before(h Hook) *Scenario { return s.addHook("Before", &s.hooks.before, h) }

// After runs first when the scenario finishes, whatever the outcome.
func (s *Scenario) After(h Hook) *Scenario { return s.addHook("After", &s.hooks.after, h) }

func (s *Scenario) Success(h Hook) *Scenario { return s.addHook("Success", &s.hooks.success, h) }

func (s *Scenario) Failure(h Hook) *Scenario { return s.addHook("Failure", &s.hooks.failure, h) }

func (s *Scenario) Finally(h Hook) *Scenario { return s.addHook("Finally", &s.hooks.finally, h) }

// Subscribe is notified after Finally.
func (s *Scenario) Subscribe(h Hook) *Scenario {
	return s.addHook("Subscribe", &s.hooks.subscribers, h)
}

// Pass, Fail and Comment let response adapters record their baseline
// checks.

func (s *Scenario) Pass(msg string)    { s.record(report.LinePass, msg) }
func (s *Scenario) Fail(msg string)    { s.record(report.LineFail, msg) }
func (s *Scenario) Comment(msg string) { s.record(report.LineComment, msg) }

func (s *Scenario) record(t report.LineType, msg string) {
	s.mu.Lock()
	s.lines = append(s.lines, report.Line{Type: t, Message: msg, Timestamp: time.Now()})
	if t == report.LineFail {
		s.failures++
	}
	s.mu.Unlock()
}

// Report snapshots the scenario for the suite report.
func (s *Scenario) Report() report.ScenarioReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := report.ScenarioReport{
		ID:          s.id,
		Title:       s.title,
		Type:        string(s.typ),
		Method:      s.req.Request.Method,
		URL:         s.req.Request.URL,
		Disposition: string(s.disposition),
		AbortReason: s.abortReason,
		Passed:      s.passedLocked(),
		Started:     s.startAt,
		Ended:       s.endAt,
		Lines:       append([]report.Line(nil), s.lines...),
	}
	if s.adapter != nil {
		r.Status = s.adapter.Status()
	}
	if !s.startAt.IsZero() && !s.endAt.IsZero() {
		r.Duration = s.endAt.Sub(s.startAt)
	}
	if !s.requestEnd.IsZero() {
		r.RequestTime = s.requestEnd.Sub(s.requestStart)
	}
	if s.parent != nil {
		r.ParentID = s.parent.id
	}
	if s.waitFor != nil {
		r.WaitsForID = s.waitFor.id
	}
	return r
}
