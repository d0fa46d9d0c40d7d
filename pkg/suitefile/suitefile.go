// Package suitefile loads declarative YAML suites and compiles them into
// runnable scenario suites.
package suitefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

// File is one suite file.
type File struct {
	Name            string            `yaml:"name"`
	BaseURL         string            `yaml:"base_url"`
	Concurrency     int               `yaml:"concurrency"`
	ScenarioTimeout string            `yaml:"scenario_timeout"`
	MaxDuration     string            `yaml:"max_duration"`
	Report          string            `yaml:"report"`
	Variables       map[string]string `yaml:"variables"`
	Scenarios       []Scenario        `yaml:"scenarios"`

	// Path is where the file was loaded from, if anywhere.
	Path string `yaml:"-"`
}

// Scenario declares one request and the checks run on its response.
type Scenario struct {
	Name         string            `yaml:"name"`
	Type         string            `yaml:"type"`
	URL          string            `yaml:"url"`
	Curl         string            `yaml:"curl"`
	Method       string            `yaml:"method"`
	Headers      map[string]string `yaml:"headers"`
	Query        map[string]string `yaml:"query"`
	Cookies      map[string]string `yaml:"cookies"`
	Body         *Body             `yaml:"body"`
	Auth         *Auth             `yaml:"auth"`
	Timeout      string            `yaml:"timeout"`
	WaitFor      string            `yaml:"wait_for"`
	Capabilities map[string]any    `yaml:"capabilities"`
	Optional     bool              `yaml:"optional"`
	Assert       []Step            `yaml:"assert"`
}

// Body holds exactly one kind of request body.
type Body struct {
	JSON      any               `yaml:"json"`
	Form      map[string]string `yaml:"form"`
	Multipart map[string]string `yaml:"multipart"`
	Text      string            `yaml:"text"`
}

// Auth configures request authentication. Type is basic, digest or bearer.
type Auth struct {
	Type     string `yaml:"type"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
}

// Step is one declarative check. The subject is the status code, a
// header, the body, or the value a selector finds; the embedded Check
// says what must hold for it. Every, Some and None apply their check to
// each value the selector finds instead.
type Step struct {
	Status       *int   `yaml:"status"`
	Header       string `yaml:"header"`
	BodyContains string `yaml:"body_contains"`
	Select       string `yaml:"select"`
	Path         string `yaml:"path"`
	Optional     bool   `yaml:"optional"`

	Check `yaml:",inline"`

	Every *Check `yaml:"every"`
	Some  *Check `yaml:"some"`
	None  *Check `yaml:"none"`
	Count *int   `yaml:"count"`
}

// Check lists operators. Unset operators are not evaluated.
type Check struct {
	Exists   *bool  `yaml:"exists"`
	Eq       any    `yaml:"eq"`
	Ne       any    `yaml:"ne"`
	Gt       any    `yaml:"gt"`
	Gte      any    `yaml:"gte"`
	Lt       any    `yaml:"lt"`
	Lte      any    `yaml:"lte"`
	Contains any    `yaml:"contains"`
	Regex    string `yaml:"regex"`
	Length   *int   `yaml:"length"`
	Kind     string `yaml:"is"`
}

func (c Check) empty() bool {
	return c.Exists == nil && c.Eq == nil && c.Ne == nil && c.Gt == nil && c.Gte == nil &&
		c.Lt == nil && c.Lte == nil && c.Contains == nil && c.Regex == "" && c.Length == nil && c.Kind == ""
}

// selector returns the select/path expression; path is an alias.
func (s Step) selector() string {
	if s.Select != "" {
		return s.Select
	}
	return s.Path
}

// Load reads and validates a suite file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported suite format %q (expected .yaml or .yml)", ext)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}
	f.Path = path
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f, nil
}

// LoadDir loads every .yaml and .yml file in dir.
func LoadDir(dir string) ([]*File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading suite directory %s: %w", dir, err)
	}

	var files []*File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		f, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no suite files found in %s", dir)
	}
	return files, nil
}

// Parse decodes and validates suite YAML. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks everything that can be checked before variables are
// substituted. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	if len(f.Scenarios) == 0 {
		errs = append(errs, errors.New("at least one scenario is required"))
	}
	if f.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", f.Concurrency))
	}
	for field, d := range map[string]string{"scenario_timeout": f.ScenarioTimeout, "max_duration": f.MaxDuration} {
		if _, err := parseDuration(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	if _, err := report.ParseFormat(f.Report); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]int, len(f.Scenarios))
	for i, sc := range f.Scenarios {
		if sc.Name == "" {
			continue
		}
		if _, dup := names[sc.Name]; dup {
			errs = append(errs, fmt.Errorf("scenario %q is declared more than once", sc.Name))
			continue
		}
		names[sc.Name] = i
	}

	for i, sc := range f.Scenarios {
		where := sc.label(i)
		if sc.Type != "" {
			if _, err := response.ParseType(sc.Type); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}
		if sc.URL != "" && sc.Curl != "" {
			errs = append(errs, fmt.Errorf("%s: url and curl are mutually exclusive", where))
		}
		if _, err := parseDuration(sc.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("%s: timeout: %w", where, err))
		}
		if sc.Body != nil && sc.Body.kinds() != 1 {
			errs = append(errs, fmt.Errorf("%s: body must set exactly one of json, form, multipart or text", where))
		}
		if sc.Auth != nil {
			switch strings.ToLower(sc.Auth.Type) {
			case "basic", "digest", "bearer":
			default:
				errs = append(errs, fmt.Errorf("%s: unknown auth type %q (want basic, digest or bearer)", where, sc.Auth.Type))
			}
		}
		if sc.WaitFor != "" {
			if sc.WaitFor == sc.Name {
				errs = append(errs, fmt.Errorf("%s: cannot wait for itself", where))
			} else if _, ok := names[sc.WaitFor]; !ok {
				errs = append(errs, fmt.Errorf("%s: wait_for names unknown scenario %q", where, sc.WaitFor))
			}
		}
		for j, step := range sc.Assert {
			if err := step.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: assert[%d]: %w", where, j, err))
			}
		}
	}

	if cycle := f.waitCycle(names); cycle != "" {
		errs = append(errs, fmt.Errorf("wait_for cycle: %s", cycle))
	}
	return errors.Join(errs...)
}

func (sc Scenario) label(i int) string {
	if sc.Name != "" {
		return fmt.Sprintf("scenario %q", sc.Name)
	}
	return fmt.Sprintf("scenario #%d", i+1)
}

func (b *Body) kinds() int {
	n := 0
	if b.JSON != nil {
		n++
	}
	if b.Form != nil {
		n++
	}
	if b.Multipart != nil {
		n++
	}
	if b.Text != "" {
		n++
	}
	return n
}

func (s Step) validate() error {
	subjects := 0
	if s.Status != nil {
		subjects++
	}
	if s.Header != "" {
		subjects++
	}
	if s.BodyContains != "" {
		subjects++
	}
	if s.selector() != "" {
		subjects++
	}
	if subjects != 1 {
		return errors.New("exactly one of status, header, body_contains or select is required")
	}

	quantified := s.Every != nil || s.Some != nil || s.None != nil || s.Count != nil
	if quantified && s.selector() == "" {
		return errors.New("every, some, none and count need a select")
	}
	if quantified && !s.Check.empty() {
		return errors.New("operators go inside every, some or none when those are used")
	}
	if s.Status != nil && !s.Check.empty() {
		return errors.New("status takes no operators")
	}
	for _, c := range []*Check{&s.Check, s.Every, s.Some, s.None} {
		if c == nil || c.Regex == "" {
			continue
		}
		if _, err := compileRegex(c.Regex); err != nil {
			return err
		}
	}
	return nil
}

// waitCycle returns a description of the first wait_for cycle, if any.
func (f *File) waitCycle(names map[string]int) string {
	for _, start := range f.Scenarios {
		if start.Name == "" {
			continue
		}
		seen := map[string]bool{start.Name: true}
		path := []string{start.Name}
		cur := start
		for cur.WaitFor != "" {
			i, ok := names[cur.WaitFor]
			if !ok {
				break
			}
			path = append(path, cur.WaitFor)
			if seen[cur.WaitFor] {
				if cur.WaitFor == start.Name {
					return strings.Join(path, " -> ")
				}
				break
			}
			seen[cur.WaitFor] = true
			cur = f.Scenarios[i]
		}
	}
	return ""
}

// parseDuration accepts Go durations and bare seconds. Empty is zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		d, err = time.ParseDuration(s + "s")
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}
