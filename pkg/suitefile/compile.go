package suitefile

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
	"github.com/vikasavnish/httpsuite/pkg/scenario"
)

// DefaultType is used for scenarios that do not name a response type.
const DefaultType = response.HTML

var variablePattern = regexp.MustCompile(`\$\{([\w.]+)\}`)

// Compile builds a suite from f. Settings already present in cfg win over
// the file's, so command line flags can override a suite. vars override
// the file's variables.
func (f *File) Compile(cfg scenario.Config, vars map[string]string) (*scenario.Suite, error) {
	c := &compiler{vars: make(map[string]string, len(f.Variables)+len(vars))}
	for k, v := range f.Variables {
		c.vars[k] = v
	}
	for k, v := range vars {
		c.vars[k] = v
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = c.expand(f.BaseURL)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = f.Concurrency
	}
	if cfg.ScenarioTimeout == 0 {
		cfg.ScenarioTimeout, _ = parseDuration(f.ScenarioTimeout)
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration, _ = parseDuration(f.MaxDuration)
	}
	if cfg.Report == "" {
		cfg.Report, _ = report.ParseFormat(f.Report)
	}
	if c.err != nil {
		return nil, c.err
	}

	suite, err := scenario.New(f.Name, cfg)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*scenario.Scenario, len(f.Scenarios))
	built := make([]*scenario.Scenario, len(f.Scenarios))
	for i, decl := range f.Scenarios {
		sc, err := c.scenario(suite, decl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", decl.label(i), err)
		}
		built[i] = sc
		if decl.Name != "" {
			byName[decl.Name] = sc
		}
	}
	for i, decl := range f.Scenarios {
		if decl.WaitFor != "" {
			built[i].WaitFor(byName[decl.WaitFor])
		}
	}
	return suite, nil
}

type compiler struct {
	vars map[string]string
	err  error
}

// expand replaces ${name} and ${env.NAME}. The first unresolved variable
// is kept as the compiler's error.
func (c *compiler) expand(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if env, ok := strings.CutPrefix(name, "env."); ok {
			return os.Getenv(env)
		}
		if v, ok := c.vars[name]; ok {
			return v
		}
		if c.err == nil {
			c.err = fmt.Errorf("unresolved variable %q", name)
		}
		return match
	})
}

func (c *compiler) expandMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = c.expand(v)
	}
	return out
}

// expandAny walks decoded YAML and expands every string in it.
func (c *compiler) expandAny(v any) any {
	switch t := v.(type) {
	case string:
		return c.expand(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = c.expandAny(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = c.expandAny(item)
		}
		return out
	}
	return v
}

func (c *compiler) scenario(suite *scenario.Suite, decl Scenario) (*scenario.Scenario, error) {
	typ := DefaultType
	if decl.Type != "" {
		t, err := response.ParseType(decl.Type)
		if err != nil {
			return nil, err
		}
		typ = t
	}

	sc := suite.Scenario(decl.Name, typ)
	switch {
	case decl.Curl != "":
		sc.OpenCurl(c.expand(decl.Curl))
		if err := sc.Err(); err != nil {
			return nil, err
		}
	case decl.URL != "":
		sc.Open(c.expand(decl.URL))
	}

	if decl.Method != "" {
		sc.Method(strings.ToUpper(decl.Method))
	}
	if len(decl.Headers) > 0 {
		sc.Headers(c.expandMap(decl.Headers))
	}
	for k, v := range c.expandMap(decl.Query) {
		sc.Query(k, v)
	}
	for k, v := range c.expandMap(decl.Cookies) {
		sc.Cookie(k, v)
	}
	if b := decl.Body; b != nil {
		switch {
		case b.JSON != nil:
			sc.JSONBody(c.expandAny(b.JSON))
		case b.Form != nil:
			sc.FormBody(c.expandMap(b.Form))
		case b.Multipart != nil:
			sc.MultipartBody(c.expandMap(b.Multipart))
		default:
			sc.TextBody(c.expand(b.Text))
		}
	}
	if a := decl.Auth; a != nil {
		switch strings.ToLower(a.Type) {
		case "basic":
			sc.BasicAuth(c.expand(a.User), c.expand(a.Password))
		case "digest":
			sc.DigestAuth(c.expand(a.User), c.expand(a.Password))
		case "bearer":
			sc.BearerToken(c.expand(a.Token))
		}
	}
	if d, err := parseDuration(decl.Timeout); err == nil && d > 0 {
		sc.Timeout(d)
	}
	if decl.Capabilities != nil {
		caps, _ := c.expandAny(decl.Capabilities).(map[string]any)
		sc.Capabilities(caps)
	}

	steps := make([]Step, len(decl.Assert))
	for i, step := range decl.Assert {
		steps[i] = c.expandStep(step)
	}
	if c.err != nil {
		return nil, c.err
	}
	sc.Next(stepsCallback(steps, decl.Optional))
	return sc, nil
}

func (c *compiler) expandStep(s Step) Step {
	s.Header = c.expand(s.Header)
	s.BodyContains = c.expand(s.BodyContains)
	s.Select = c.expand(s.Select)
	s.Path = c.expand(s.Path)
	s.Check = c.expandCheck(s.Check)
	for _, q := range []**Check{&s.Every, &s.Some, &s.None} {
		if *q != nil {
			expanded := c.expandCheck(**q)
			*q = &expanded
		}
	}
	return s
}

func (c *compiler) expandCheck(k Check) Check {
	k.Eq = c.expandAny(k.Eq)
	k.Ne = c.expandAny(k.Ne)
	k.Gt = c.expandAny(k.Gt)
	k.Gte = c.expandAny(k.Gte)
	k.Lt = c.expandAny(k.Lt)
	k.Lte = c.expandAny(k.Lte)
	k.Contains = c.expandAny(k.Contains)
	k.Regex = c.expand(k.Regex)
	return k
}

// stepsCallback turns declarative steps into one scenario callback. A
// scenario without steps still gets a callback so it is fetched.
func stepsCallback(steps []Step, optional bool) scenario.Callback {
	return func(a *scenario.AssertionContext) error {
		for _, step := range steps {
			if err := runStep(a, step, optional || step.Optional); err != nil {
				return err
			}
		}
		return nil
	}
}

func runStep(a *scenario.AssertionContext, step Step, optional bool) error {
	expect := func(v any) *scenario.Assertion {
		x := a.Expect(v)
		if optional {
			x.Optional()
		}
		return x
	}

	switch {
	case step.Status != nil:
		expect(a.Status()).Equals(*step.Status)
		return nil
	case step.BodyContains != "":
		expect(a.Body()).Contains(step.BodyContains)
		return nil
	case step.Header != "":
		return applyOrExists(expect(a.Header(step.Header)), step.Check)
	}

	sel := step.selector()
	quantified := step.Every != nil || step.Some != nil || step.None != nil || step.Count != nil
	if !quantified {
		return applyOrExists(expect(a.Find(sel)), step.Check)
	}

	x := a.ExpectAll(sel, a.FindAll(sel))
	if optional {
		x.Optional()
	}
	var errs []error
	each := func(c Check) func(*scenario.Assertion) {
		return func(item *scenario.Assertion) {
			if err := apply(item, c); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if step.Count != nil {
		x.HasLength(*step.Count)
	}
	if step.Every != nil {
		x.Every(each(*step.Every))
	}
	if step.Some != nil {
		x.Some(each(*step.Some))
	}
	if step.None != nil {
		x.None(each(*step.None))
	}
	return errors.Join(errs...)
}

func applyOrExists(x *scenario.Assertion, c Check) error {
	if c.empty() {
		x.Exists()
		return nil
	}
	return apply(x, c)
}

// apply evaluates every operator set on c, in a fixed order.
func apply(x *scenario.Assertion, c Check) error {
	if c.Exists != nil {
		if *c.Exists {
			x.Exists()
		} else {
			x.Not().Exists()
		}
	}
	if c.Eq != nil {
		x.Equals(c.Eq)
	}
	if c.Ne != nil {
		x.Not().Equals(c.Ne)
	}
	if c.Gt != nil {
		x.GreaterThan(c.Gt)
	}
	if c.Gte != nil {
		x.GreaterThanOrEquals(c.Gte)
	}
	if c.Lt != nil {
		x.LessThan(c.Lt)
	}
	if c.Lte != nil {
		x.LessThanOrEquals(c.Lte)
	}
	if c.Contains != nil {
		x.Contains(c.Contains)
	}
	if c.Regex != "" {
		re, err := compileRegex(c.Regex)
		if err != nil {
			return err
		}
		x.Matches(re)
	}
	if c.Length != nil {
		x.HasLength(*c.Length)
	}
	if c.Kind != "" {
		x.IsType(c.Kind)
	}
	return nil
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return re, nil
}
