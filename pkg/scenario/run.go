package scenario

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/browser"
	"github.com/vikasavnish/httpsuite/pkg/executor"
	"github.com/vikasavnish/httpsuite/pkg/ir"
	"github.com/vikasavnish/httpsuite/pkg/orchestrator"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

// hasTargetLocked reports whether there is something to fetch. Mobile
// scenarios may run from capabilities alone.
func (s *Scenario) hasTargetLocked() bool {
	return s.req.Request.URL != "" || (s.typ == response.Mobile && s.caps != nil)
}

// maybeStart executes the scenario once the suite is running, a target and
// a callback are set and nothing holds it back.
func (s *Scenario) maybeStart() {
	if !s.suite.isRunning() {
		return
	}
	s.mu.Lock()
	ready := !s.started && s.disposition == Pending && !s.wait &&
		s.hasTargetLocked() && len(s.callbacks) > 0
	dep := s.waitFor
	s.mu.Unlock()

	if !ready || (dep != nil && !dep.Disposition().Terminal()) {
		return
	}
	s.Execute()
}

// startFromRun is how Suite.Run kicks off its scenarios.
func (s *Scenario) startFromRun() {
	s.mu.Lock()
	eligible := !s.started && s.disposition == Pending && !s.wait
	dep := s.waitFor
	hasTarget := s.hasTargetLocked()
	s.mu.Unlock()

	// a dependency that finished before Run will never call dependencyDone
	if dep != nil && !dep.Disposition().Terminal() {
		return
	}

	switch {
	case !eligible:
	case !hasTarget:
		s.Skip("no url to open")
	default:
		s.Execute()
	}
}

// dependencyDone is called by the WaitFor target once it is terminal.
func (s *Scenario) dependencyDone() {
	s.mu.Lock()
	eligible := !s.started && s.disposition == Pending && !s.wait
	hasTarget := s.hasTargetLocked()
	s.mu.Unlock()

	switch {
	case !eligible:
	case hasTarget:
		s.Execute()
	case s.suite.isRunning():
		s.Skip("no url to open")
	}
}

// adopt executes a spawned child its parent never started.
func (s *Scenario) adopt() {
	s.mu.Lock()
	orphan := !s.started && s.disposition == Pending && !s.wait && s.hasTargetLocked()
	s.mu.Unlock()
	if orphan {
		s.log.Debug("executing orphaned child")
		s.Execute()
	}
}

// Execute starts the scenario. Only the first call has an effect. A
// scenario waiting on a dependency starts as soon as the dependency is
// terminal.
func (s *Scenario) Execute() *Scenario {
	s.mu.Lock()
	if s.started || s.disposition != Pending {
		s.mu.Unlock()
		return s
	}
	s.wait = false
	dep := s.waitFor
	hasTarget := s.hasTargetLocked()
	s.mu.Unlock()

	if dep != nil && !dep.Disposition().Terminal() {
		return s
	}
	if !hasTarget {
		s.Skip("no url to open")
		return s
	}
	if s.suite.isExpired() {
		s.Cancel("suite timed out before the scenario started")
		return s
	}

	base := s.suite.context()
	s.mu.Lock()
	if s.started || s.disposition != Pending {
		s.mu.Unlock()
		return s
	}
	s.started = true
	ctx, cancel := context.WithCancel(base)
	s.cancel = cancel
	// the queue position is taken here so slots go out in Execute order
	ticket := s.suite.gate.Reserve(s.title)
	s.mu.Unlock()

	go s.run(ctx, ticket)
	return s
}

func (s *Scenario) run(ctx context.Context, ticket *orchestrator.Ticket) {
	if err := ticket.Wait(ctx); err != nil {
		s.terminate(Cancelled, "", "cancelled before start: "+err.Error())
		return
	}
	s.setSlot(true)
	defer s.releaseSlot()

	s.mu.Lock()
	if s.disposition != Pending {
		s.mu.Unlock()
		return
	}
	s.disposition = Executing
	s.startAt = time.Now()
	timeout := s.timeout
	if timeout <= 0 {
		timeout = s.suite.cfg.ScenarioTimeout
	}
	s.mu.Unlock()
	s.log.Debug("scenario executing")

	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			s.abort(report.AbortTimeout, (&timeoutError{scope: "scenario"}).Error())
		})
		defer timer.Stop()
	}

	s.suite.fireEach(s.suite.beforeEachHooks(), s)
	s.fire(s.hooksSnapshot().before)

	adapter, err := s.fetch(ctx)
	if err != nil {
		if suiteErr := s.suite.context().Err(); suiteErr != nil {
			// the suite is stopping; expire reports it
			msg := "suite stopped: " + suiteErr.Error()
			if errors.Is(suiteErr, context.DeadlineExceeded) {
				msg = (&timeoutError{scope: "suite"}).Error()
			}
			s.terminate(Aborted, report.AbortTimeout, msg)
			return
		}
		s.log.Warn("request failed", zap.Error(err))
		s.terminate(Aborted, report.AbortTransport, "request failed: "+err.Error())
		return
	}

	s.mu.Lock()
	s.adapter = adapter
	s.mu.Unlock()

	s.drain(ctx, adapter)
	s.terminate(Completed, "", "")
}

func (s *Scenario) fetch(ctx context.Context) (response.Adapter, error) {
	s.mu.Lock()
	typ := s.typ
	req := s.req.Clone()
	caps := maps.Clone(s.caps)
	opts := s.browserOpts
	s.requestStart = time.Now()
	s.mu.Unlock()

	cfg := s.suite.cfg
	deps := response.Deps{Images: cfg.ImageProber, Media: cfg.MediaProber}

	var raw *ir.Response
	var err error
	switch typ {
	case response.Browser:
		raw, err = s.navigate(ctx, req, opts, &deps)
	case response.Mobile:
		raw = s.openDevice(ctx, req, caps, &deps)
	case response.Media:
		// the prober streams the media itself
		if req.Request.Method == http.MethodGet {
			req.Request.Method = http.MethodHead
		}
		raw, err = cfg.Transport.Fetch(ctx, req)
	default:
		raw, err = cfg.Transport.Fetch(ctx, req)
	}

	s.mu.Lock()
	s.requestEnd = time.Now()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return response.New(ctx, typ, raw, s, deps), nil
}

func (s *Scenario) navigate(ctx context.Context, req *ir.IR, opts browser.Options, deps *response.Deps) (*ir.Response, error) {
	driver := s.suite.cfg.Browser
	if driver == nil {
		return nil, ErrNoBrowser
	}

	headers := maps.Clone(opts.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}
	maps.Copy(headers, req.Request.Headers)
	opts.Headers = headers
	opts.Cookies = executor.MergeCookies(opts.Cookies, req.Request.Cookies)

	page, err := driver.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	raw, err := page.Navigate(ctx, req.Request.URL)
	if err != nil {
		return nil, err
	}
	deps.Page = page
	return raw, nil
}

// openDevice starts a mobile session. A failed session is reported by the
// adapter, so callbacks still run.
func (s *Scenario) openDevice(ctx context.Context, req *ir.IR, caps map[string]any, deps *response.Deps) *ir.Response {
	raw := &ir.Response{URL: req.Request.URL, Headers: http.Header{}}
	driver := s.suite.cfg.Mobile
	if driver == nil {
		s.Comment("no mobile driver configured")
		return raw
	}

	if caps == nil {
		caps = make(map[string]any)
	}
	if _, ok := caps["appium:app"]; !ok && req.Request.URL != "" {
		caps["appium:app"] = req.Request.URL
	}

	device, err := driver.Open(ctx, caps)
	if err != nil {
		s.Comment("mobile session failed: " + err.Error())
		return raw
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	deps.Session = device
	return raw
}

// drain runs the callback queue. The queue may grow while it runs.
func (s *Scenario) drain(ctx context.Context, adapter response.Adapter) {
	a := newAssertionContext(ctx, s, adapter)
	for {
		cb, ok := s.nextCallback()
		if !ok {
			return
		}
		if err := invoke(a, cb); err != nil {
			if s.Disposition().Terminal() {
				return
			}
			s.Fail("callback failed: " + err.Error())
			s.log.Debug("callback failed, halting scenario", zap.Error(err))
			return
		}
	}
}

func (s *Scenario) nextCallback() (Callback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposition != Executing || s.next >= len(s.callbacks) {
		return nil, false
	}
	cb := s.callbacks[s.next]
	s.next++
	return cb, true
}

// invoke turns a panic inside cb into an error.
func invoke(a *AssertionContext, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(a)
}

// Skip marks a pending scenario as skipped. It has no effect once the
// scenario started.
func (s *Scenario) Skip(reason string) *Scenario {
	s.mu.Lock()
	if s.started || s.disposition != Pending {
		s.err = fmt.Errorf("Skip: %w", ErrAlreadyStarted)
		s.mu.Unlock()
		s.log.Warn("skip after start, ignoring")
		return s
	}
	s.started = true
	s.mu.Unlock()

	s.terminate(Skipped, "", "skipped: "+reason)
	return s
}

// Cancel stops a pending or executing scenario. Remaining callbacks do not
// run.
func (s *Scenario) Cancel(reason string) *Scenario {
	s.mu.Lock()
	if s.disposition.Terminal() {
		s.mu.Unlock()
		return s
	}
	s.started = true
	s.mu.Unlock()

	s.terminate(Cancelled, "", "cancelled: "+reason)
	return s
}

// abort fails an executing scenario with reason. Scenarios that have not
// begun executing are cancelled instead.
func (s *Scenario) abort(reason, msg string) {
	switch d := s.Disposition(); {
	case d == Executing:
		s.terminate(Aborted, reason, msg)
	case !d.Terminal():
		s.Cancel(msg)
	}
}

// terminate sets the final disposition. Only the first call wins; it runs
// the finish sequence and reports whether it did.
func (s *Scenario) terminate(d Disposition, abortReason, msg string) bool {
	s.mu.Lock()
	if s.disposition.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.disposition = d
	s.endAt = time.Now()
	s.abortReason = abortReason
	if msg != "" {
		t := report.LineComment
		if d == Aborted {
			t = report.LineFail
			s.failures++
		}
		s.lines = append(s.lines, report.Line{Type: t, Message: msg, Timestamp: s.endAt})
	}
	cancel := s.cancel
	ran := !s.startAt.IsZero()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// queued scenarios must not wait on work that was abandoned
	s.releaseSlot()
	s.log.Debug("scenario finished", zap.String("disposition", string(d)), zap.Bool("passed", s.Passed()))
	s.finish(ran)
	return true
}

// finish runs hooks, releases waiters and notifies the suite, in that
// order.
func (s *Scenario) finish(ran bool) {
	h := s.hooksSnapshot()
	s.fire(h.after)
	if s.Passed() {
		s.fire(h.success)
	} else {
		s.fire(h.failure)
	}
	s.fire(h.finally)
	s.fire(h.subscribers)
	if ran {
		s.suite.fireEach(s.suite.afterEachHooks(), s)
	}

	s.closeSessions()
	close(s.done)

	s.mu.Lock()
	dependents := append([]*Scenario(nil), s.dependents...)
	children := append([]*Scenario(nil), s.children...)
	s.mu.Unlock()

	for _, d := range dependents {
		d.dependencyDone()
	}
	for _, c := range children {
		c.adopt()
	}
	s.suite.notify(s)
}

func (s *Scenario) hooksSnapshot() scenarioHooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scenarioHooks{
		before:      append([]Hook(nil), s.hooks.before...),
		after:       append([]Hook(nil), s.hooks.after...),
		success:     append([]Hook(nil), s.hooks.success...),
		failure:     append([]Hook(nil), s.hooks.failure...),
		finally:     append([]Hook(nil), s.hooks.finally...),
		subscribers: append([]Hook(nil), s.hooks.subscribers...),
	}
}

func (s *Scenario) fire(hooks []Hook) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("scenario hook panicked", zap.Any("panic", r))
				}
			}()
			h(s)
		}()
	}
}

func (s *Scenario) closeSessions() {
	s.mu.Lock()
	page, device := s.page, s.device
	s.page, s.device = nil, nil
	s.mu.Unlock()

	if page != nil {
		if err := page.Close(); err != nil {
			s.log.Debug("close browser session", zap.Error(err))
		}
	}
	if device != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := device.Close(ctx); err != nil {
			s.log.Debug("close mobile session", zap.Error(err))
		}
	}
}

// Slot bookkeeping lets WaitForFinished give up the execution slot while
// it blocks.

func (s *Scenario) setSlot(held bool) {
	s.mu.Lock()
	s.slot = held
	s.mu.Unlock()
}

func (s *Scenario) releaseSlot() {
	s.mu.Lock()
	held := s.slot
	s.slot = false
	s.mu.Unlock()
	if held {
		s.suite.gate.Release()
	}
}

func (s *Scenario) reacquireSlot(ctx context.Context) error {
	if err := s.suite.gate.Acquire(ctx, s.title); err != nil {
		return err
	}
	s.setSlot(true)
	if s.Disposition().Terminal() {
		s.releaseSlot()
		return fmt.Errorf("reacquire slot for %s: %w", s.title, context.Canceled)
	}
	return nil
}

var errSelfWait = errors.New("a scenario cannot wait for itself")
