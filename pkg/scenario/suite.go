// Package scenario runs suites of scenarios: each scenario fetches one
// response, wraps it in the adapter for its type and runs its callbacks
// against it; the suite schedules scenarios, fires lifecycle hooks and
// builds the report.
package scenario

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/httpsuite/pkg/orchestrator"
	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

// SuiteHook observes a suite lifecycle event.
type SuiteHook func(s *Suite)

type suiteHooks struct {
	beforeAll, afterAll, success, failure, finally []SuiteHook
	beforeEach, afterEach                          []Hook
}

// Suite owns a set of scenarios sharing a base URL, hooks and an
// execution limit.
type Suite struct {
	title string
	cfg   Config
	base  *url.URL
	log   *zap.Logger
	gate  *orchestrator.Gate

	mu        sync.Mutex
	scenarios []*Scenario
	hooks     suiteHooks
	store     map[string]any
	wait      bool
	running   bool
	expired   bool
	finalized bool
	ctx       context.Context
	startAt   time.Time
	endAt     time.Time
	final     *report.SuiteReport

	finalizeOnce sync.Once
	done         chan struct{}
}

// New returns an empty suite. BaseURL, when set, must be absolute.
func New(title string, cfg Config) (*Suite, error) {
	cfg = cfg.withDefaults()

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
		}
		base = u
	}

	log := cfg.Logger.With(zap.String("suite", title))
	return &Suite{
		title: title,
		cfg:   cfg,
		base:  base,
		log:   log,
		gate:  orchestrator.NewGate(cfg.Concurrency, log),
		store: make(map[string]any),
		done:  make(chan struct{}),
	}, nil
}

func (s *Suite) Title() string  { return s.title }
func (s *Suite) Config() Config { return s.cfg }

// BaseURL returns a copy of the base URL, nil when unset.
func (s *Suite) BaseURL() *url.URL {
	if s.base == nil {
		return nil
	}
	u := *s.base
	return &u
}

// BuildURL resolves target against the base URL. Absolute and data: URLs
// are returned as is; a leading slash keeps only the base's scheme and
// host; anything else is resolved relative to the full base.
func (s *Suite) BuildURL(target string) string {
	if s.base == nil || target == "" {
		return target
	}
	if strings.HasPrefix(strings.ToLower(target), "data:") {
		return target
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() {
		return target
	}
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return s.base.Scheme + "://" + s.base.Host + target
	}
	return s.base.ResolveReference(u).String()
}

// Scenario creates a scenario of type typ and attaches it to the suite.
func (s *Suite) Scenario(title string, typ response.Type) *Scenario {
	sc := newScenario(s, title, typ)
	s.mu.Lock()
	s.scenarios = append(s.scenarios, sc)
	late := s.finalized
	s.mu.Unlock()

	if late {
		sc.Cancel("suite already finished")
	}
	return sc
}

// Scenarios returns the scenarios in creation order.
func (s *Suite) Scenarios() []*Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Scenario(nil), s.scenarios...)
}

// Wait stops Run from starting scenarios on its own; only explicit
// Execute calls and dependencies start them.
func (s *Suite) Wait() *Suite {
	s.mu.Lock()
	s.wait = true
	s.mu.Unlock()
	return s
}

func (s *Suite) addHook(list *[]SuiteHook, h SuiteHook) *Suite {
	s.mu.Lock()
	*list = append(*list, h)
	s.mu.Unlock()
	return s
}

func (s *Suite) BeforeAll(h SuiteHook) *Suite { return s.addHook(&s.hooks.beforeAll, h) }
func (s *Suite) AfterAll(h SuiteHook) *Suite  { return s.addHook(&s.hooks.afterAll, h) }
func (s *Suite) Success(h SuiteHook) *Suite   { return s.addHook(&s.hooks.success, h) }
func (s *Suite) Failure(h SuiteHook) *Suite   { return s.addHook(&s.hooks.failure, h) }
func (s *Suite) Finally(h SuiteHook) *Suite   { return s.addHook(&s.hooks.finally, h) }

// BeforeEach runs as each scenario begins executing.
func (s *Suite) BeforeEach(h Hook) *Suite {
	s.mu.Lock()
	s.hooks.beforeEach = append(s.hooks.beforeEach, h)
	s.mu.Unlock()
	return s
}

// AfterEach runs after each executed scenario's own hooks.
func (s *Suite) AfterEach(h Hook) *Suite {
	s.mu.Lock()
	s.hooks.afterEach = append(s.hooks.afterEach, h)
	s.mu.Unlock()
	return s
}

// Get reads the shared store. Writes are last-writer-wins.
func (s *Suite) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[key]
}

func (s *Suite) Set(key string, v any) *Suite {
	s.mu.Lock()
	s.store[key] = v
	s.mu.Unlock()
	return s
}

func (s *Suite) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Suite) isExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

func (s *Suite) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Run starts every eligible scenario and blocks until the suite finishes
// or ctx (bounded by Config.MaxDuration) ends. On expiry executing
// scenarios are aborted, pending ones cancelled, the suite is finalized
// and ctx's error returned. A second call waits for the same completion.
func (s *Suite) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
	}
	defer cancel()

	s.running = true
	s.ctx = runCtx
	s.startAt = time.Now()
	scenarios := append([]*Scenario(nil), s.scenarios...)
	hold := s.wait
	s.mu.Unlock()

	s.log.Info("suite started",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Duration("maxDuration", s.cfg.MaxDuration))

	s.fireSuite(s.suiteHooks(func(h suiteHooks) []SuiteHook { return h.beforeAll }))
	if !hold {
		for _, sc := range scenarios {
			sc.startFromRun()
		}
	}
	s.checkComplete()

	select {
	case <-s.done:
		return nil
	case <-runCtx.Done():
	}

	// done may have closed at the same moment
	select {
	case <-s.done:
		return nil
	default:
	}
	s.expire()
	<-s.done
	return runCtx.Err()
}

func (s *Suite) expire() {
	s.mu.Lock()
	s.expired = true
	scenarios := append([]*Scenario(nil), s.scenarios...)
	s.mu.Unlock()

	s.log.Warn("suite exceeded its deadline, stopping remaining scenarios")
	msg := (&timeoutError{scope: "suite"}).Error()
	for _, sc := range scenarios {
		sc.abort(report.AbortTimeout, msg)
	}
	s.checkComplete()
}

// notify is called by every scenario once it is terminal.
func (s *Suite) notify(*Scenario) {
	s.checkComplete()
}

func (s *Suite) checkComplete() {
	s.mu.Lock()
	if !s.running || s.finalized {
		s.mu.Unlock()
		return
	}
	for _, sc := range s.scenarios {
		if !sc.Disposition().Terminal() {
			s.mu.Unlock()
			return
		}
	}
	s.finalized = true
	s.mu.Unlock()

	s.finalize()
}

// finalize runs AfterAll, then Success or Failure, then Finally, then
// renders the report. It runs once.
func (s *Suite) finalize() {
	s.finalizeOnce.Do(func() {
		s.mu.Lock()
		s.endAt = time.Now()
		s.mu.Unlock()

		passed := s.Passed()
		s.fireSuite(s.suiteHooks(func(h suiteHooks) []SuiteHook { return h.afterAll }))
		if passed {
			s.fireSuite(s.suiteHooks(func(h suiteHooks) []SuiteHook { return h.success }))
		} else {
			s.fireSuite(s.suiteHooks(func(h suiteHooks) []SuiteHook { return h.failure }))
		}
		s.fireSuite(s.suiteHooks(func(h suiteHooks) []SuiteHook { return h.finally }))

		rep := s.Report()
		s.mu.Lock()
		s.final = rep
		s.mu.Unlock()

		if r := report.NewRenderer(s.cfg.Report); r != nil {
			if err := r.Render(s.cfg.Output, rep); err != nil {
				s.log.Error("failed to render report", zap.Error(err))
			}
		}

		s.log.Info("suite finished", zap.Bool("passed", passed), zap.Duration("duration", rep.Duration))
		close(s.done)
	})
}

// Done is closed once the suite has finalized.
func (s *Suite) Done() <-chan struct{} { return s.done }

// Finished reports whether every scenario is terminal and the suite has
// finalized.
func (s *Suite) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Passed is the conjunction of every scenario's pass state.
func (s *Suite) Passed() bool {
	for _, sc := range s.Scenarios() {
		if !sc.Passed() {
			return false
		}
	}
	return true
}

// Report returns the final report once finished, a snapshot otherwise.
func (s *Suite) Report() *report.SuiteReport {
	s.mu.Lock()
	if s.final != nil {
		defer s.mu.Unlock()
		return s.final
	}
	start, end := s.startAt, s.endAt
	scenarios := append([]*Scenario(nil), s.scenarios...)
	s.mu.Unlock()

	if end.IsZero() {
		end = time.Now()
	}
	rep := &report.SuiteReport{
		Title:     s.title,
		Started:   start,
		Passed:    true,
		Scenarios: make([]report.ScenarioReport, 0, len(scenarios)),
	}
	if !start.IsZero() {
		rep.Duration = end.Sub(start)
	}
	if s.base != nil {
		rep.BaseURL = s.base.String()
	}
	for _, sc := range scenarios {
		r := sc.Report()
		rep.Passed = rep.Passed && r.Passed
		rep.Scenarios = append(rep.Scenarios, r)
	}
	return rep
}

func (s *Suite) suiteHooks(pick func(suiteHooks) []SuiteHook) []SuiteHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SuiteHook(nil), pick(s.hooks)...)
}

func (s *Suite) beforeEachHooks() []Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hook(nil), s.hooks.beforeEach...)
}

func (s *Suite) afterEachHooks() []Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hook(nil), s.hooks.afterEach...)
}

func (s *Suite) fireSuite(hooks []SuiteHook) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("suite hook panicked", zap.Any("panic", r))
				}
			}()
			h(s)
		}()
	}
}

func (s *Suite) fireEach(hooks []Hook, sc *Scenario) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("scenario hook panicked", zap.Any("panic", r))
				}
			}()
			h(sc)
		}()
	}
}
