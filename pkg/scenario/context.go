package scenario

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/browser"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
	"github.com/vikasavnish/httpsuite/pkg/value"
)

// AssertionContext is what a callback sees: the response, the scenario
// and the means to record checks.
type AssertionContext struct {
	ctx      context.Context
	scenario *Scenario
	adapter  response.Adapter
}

func newAssertionContext(ctx context.Context, s *Scenario, adapter response.Adapter) *AssertionContext {
	return &AssertionContext{ctx: ctx, scenario: s, adapter: adapter}
}

// Context is cancelled when the scenario is cancelled, aborted or done.
func (a *AssertionContext) Context() context.Context { return a.ctx }

func (a *AssertionContext) Scenario() *Scenario { return a.scenario }

func (a *AssertionContext) Suite() *Suite { return a.scenario.suite }

// Response is the adapter for this scenario's response.
func (a *AssertionContext) Response() response.Adapter { return a.adapter }

// Expect starts an assertion on v, which may be a value.Value or any
// plain Go value.
func (a *AssertionContext) Expect(v any) *Assertion {
	return &Assertion{actx: a, subject: value.Of(v)}
}

// ExpectAll starts an assertion on a list of values, typically a FindAll
// result, for quantifiers and HasLength.
func (a *AssertionContext) ExpectAll(name string, values []value.Value) *Assertion {
	return &Assertion{
		actx:     a,
		subject:  value.Number(float64(len(values)), name, name, a.adapter),
		items:    values,
		hasItems: true,
	}
}

// Assert records a custom check.
func (a *AssertionContext) Assert(cond bool, pass, fail string) *Assertion {
	return (&Assertion{actx: a}).Assert(cond, pass, fail)
}

func options(opts []response.FindOptions) response.FindOptions {
	if len(opts) == 0 {
		return response.FindOptions{}
	}
	return opts[0]
}

// Find returns the first match for selector, or a null Value. Adapter
// errors are recorded as failures.
func (a *AssertionContext) Find(selector string, opts ...response.FindOptions) value.Value {
	v, err := a.adapter.Find(a.ctx, selector, options(opts))
	if err != nil {
		a.scenario.Fail(fmt.Sprintf("find %q: %v", selector, err))
		return value.Null(selector, selector, a.adapter)
	}
	return v
}

// FindAll returns every match for selector.
func (a *AssertionContext) FindAll(selector string, opts ...response.FindOptions) []value.Value {
	vs, err := a.adapter.FindAll(a.ctx, selector, options(opts))
	if err != nil {
		a.scenario.Fail(fmt.Sprintf("find all %q: %v", selector, err))
		return nil
	}
	return vs
}

// WaitFor polls live responses for selector until it matches or timeout
// passes. Static responses are checked once.
func (a *AssertionContext) WaitFor(selector string, timeout time.Duration, opts ...response.FindOptions) value.Value {
	v, err := a.adapter.WaitFor(a.ctx, selector, options(opts), timeout)
	if err != nil {
		a.scenario.Fail(fmt.Sprintf("wait for %q: %v", selector, err))
		return value.Null(selector, selector, a.adapter)
	}
	return v
}

// Status is the response status code.
func (a *AssertionContext) Status() value.Value {
	return value.Number(float64(a.adapter.Status()), "status code", "status", a.adapter)
}

// Header is the first value of the named response header, null when
// absent.
func (a *AssertionContext) Header(name string) value.Value {
	label := "header " + name
	if len(a.adapter.Headers().Values(name)) == 0 {
		return value.Null(label, "headers."+name, a.adapter)
	}
	return value.Text(a.adapter.Header(name), label, "headers."+name, a.adapter)
}

// Body is the raw body as text.
func (a *AssertionContext) Body() value.Value {
	return value.Text(string(a.adapter.Body()), "body", "body", a.adapter)
}

// JSON parses the body as JSON whatever the scenario type. Invalid JSON
// yields null.
func (a *AssertionContext) JSON() value.Value {
	return value.Parse(a.adapter.Body(), "json body", a.adapter)
}

// Root is the adapter's parsed root as a Value.
func (a *AssertionContext) Root() value.Value {
	return a.adapter.RootValue()
}

// Comment adds an informational line to the log.
func (a *AssertionContext) Comment(msg string) {
	a.scenario.record(report.LineComment, msg)
}

// Heading adds a section heading to the log.
func (a *AssertionContext) Heading(msg string) {
	a.scenario.record(report.LineHeading, msg)
}

// Pause sleeps for d, returning early with an error if the scenario ends.
func (a *AssertionContext) Pause(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-a.ctx.Done():
		return a.ctx.Err()
	}
}

// Get reads the scenario scratch store.
func (a *AssertionContext) Get(key string) any { return a.scenario.Get(key) }

// Set writes the scenario scratch store.
func (a *AssertionContext) Set(key string, v any) { a.scenario.Set(key, v) }

// Next appends a callback to the running queue.
func (a *AssertionContext) Next(cb Callback) { a.scenario.Next(cb) }

// WaitForFinished blocks until other is terminal. The scenario gives up
// its execution slot while it waits, so a child can run even at a
// concurrency of one. A pending other is started first.
func (a *AssertionContext) WaitForFinished(other *Scenario) error {
	s := a.scenario
	if other == nil {
		return nil
	}
	if other == s {
		return errSelfWait
	}

	other.mu.Lock()
	startable := !other.started && other.disposition == Pending && !other.wait
	other.mu.Unlock()
	if startable {
		other.Execute()
	}

	s.releaseSlot()
	var waitErr error
	select {
	case <-other.Done():
	case <-a.ctx.Done():
		waitErr = a.ctx.Err()
	}
	if waitErr != nil {
		return waitErr
	}
	if err := s.reacquireSlot(a.ctx); err != nil {
		return err
	}
	s.log.Debug("waited for scenario", zap.String("other", other.Title()), zap.String("disposition", string(other.Disposition())))
	return nil
}

// Browser actions. They panic with ErrNotBrowser on other scenario types,
// which fails the callback.

func (a *AssertionContext) page(op string) browser.Session {
	a.scenario.mu.Lock()
	page := a.scenario.page
	a.scenario.mu.Unlock()
	if a.adapter.Type() != response.Browser || page == nil {
		panic(fmt.Errorf("%s: %w", op, ErrNotBrowser))
	}
	return page
}

type refresher interface {
	Refresh(ctx context.Context) error
}

func (a *AssertionContext) refresh() error {
	if r, ok := a.adapter.(refresher); ok {
		return r.Refresh(a.ctx)
	}
	return nil
}

// Click clicks the first element matching selector and re-reads the page.
func (a *AssertionContext) Click(selector string) error {
	if err := a.page("Click").Click(a.ctx, selector); err != nil {
		return err
	}
	return a.refresh()
}

// Type types text into the first element matching selector.
func (a *AssertionContext) Type(selector, text string) error {
	if err := a.page("Type").Type(a.ctx, selector, text); err != nil {
		return err
	}
	return a.refresh()
}

// Evaluate runs JavaScript in the page and returns its result.
func (a *AssertionContext) Evaluate(expr string, args ...any) (value.Value, error) {
	raw, err := a.page("Evaluate").Evaluate(a.ctx, expr, args...)
	if err != nil {
		return value.Null(expr, expr, a.adapter), err
	}
	return value.Parse(raw, expr, a.adapter), nil
}

// Screenshot captures the page as PNG.
func (a *AssertionContext) Screenshot() ([]byte, error) {
	return a.page("Screenshot").Screenshot(a.ctx)
}

// Mobile actions work on element values found in a mobile scenario.

func remote(op string, v value.Value) (value.Remote, error) {
	if v.IsNull() {
		return nil, fmt.Errorf("%s %s: element not found", op, v.Describe())
	}
	if !v.IsElement() {
		panic(&value.CapabilityError{Op: op, Kind: v.Kind(), Subject: v.Describe()})
	}
	return v.Element(), nil
}

// Tap clicks a mobile element.
func (a *AssertionContext) Tap(v value.Value) error {
	el, err := remote("Tap", v)
	if err != nil {
		return err
	}
	return el.Click(a.ctx)
}

// SendKeys types text into a mobile element.
func (a *AssertionContext) SendKeys(v value.Value, text string) error {
	el, err := remote("SendKeys", v)
	if err != nil {
		return err
	}
	return el.SendKeys(a.ctx, text)
}
