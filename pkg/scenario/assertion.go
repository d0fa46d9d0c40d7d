package scenario

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/value"
)

// tally counts evaluations made in ignored mode, for quantifiers.
type tally struct {
	evaluated int
	failed    int
}

// Assertion is a chain of checks on one subject. Each check records one
// line in the scenario log, unless the assertion is ignored.
type Assertion struct {
	actx     *AssertionContext
	subject  value.Value
	items    []value.Value
	hasItems bool

	negate   bool
	optional bool
	ignored  bool
	tally    *tally
	passed   bool
}

// Subject is the value under test.
func (x *Assertion) Subject() value.Value { return x.subject }

// Passed is the outcome of the most recent check.
func (x *Assertion) Passed() bool { return x.passed }

// Not negates the next check only.
func (x *Assertion) Not() *Assertion {
	x.negate = !x.negate
	return x
}

// Optional makes failures of this assertion's checks informational: they
// are logged as optional failures and never fail the scenario.
func (x *Assertion) Optional() *Assertion {
	x.optional = true
	return x
}

// Expect starts an assertion on v that shares this assertion's mode, so
// checks inside a quantifier stay unlogged.
func (x *Assertion) Expect(v any) *Assertion {
	return &Assertion{
		actx:     x.actx,
		subject:  value.Of(v),
		optional: x.optional,
		ignored:  x.ignored,
		tally:    x.tally,
	}
}

// Assert records cond (flipped by a pending Not) with the matching
// message. It is the primitive every check goes through.
func (x *Assertion) Assert(cond bool, pass, fail string) *Assertion {
	result := cond != x.negate
	x.negate = false
	x.passed = result

	if x.tally != nil {
		x.tally.evaluated++
		if !result {
			x.tally.failed++
		}
	}
	if x.ignored {
		return x
	}

	s := x.actx.scenario
	switch {
	case result:
		s.record(report.LinePass, pass)
	case x.optional:
		s.record(report.LineOptionalFail, fail)
	default:
		s.record(report.LineFail, fail)
	}
	return x
}

// check builds messages for a check phrased like "equals 200".
func (x *Assertion) check(cond bool, expectation string) *Assertion {
	return x.checkWith(cond, expectation, describeActual(x.subject))
}

func (x *Assertion) checkWith(cond bool, expectation, actual string) *Assertion {
	if x.negate {
		expectation = "not " + expectation
	}
	label := x.label()
	pass := label + " " + expectation
	fail := fmt.Sprintf("%s %s, got %s", label, expectation, actual)
	return x.Assert(cond, pass, fail)
}

func (x *Assertion) label() string {
	if d := x.subject.Describe(); d != "" {
		return d
	}
	return "value"
}

// Equals compares loosely: "1" equals 1.
func (x *Assertion) Equals(expected any) *Assertion {
	return x.check(x.subject.LooseEqual(expected), "equals "+describeExpected(expected))
}

// ExactlyEquals requires the same kind and deeply equal data.
func (x *Assertion) ExactlyEquals(expected any) *Assertion {
	return x.check(x.subject.Equal(expected), "exactly equals "+describeExpected(expected))
}

// Contains looks for a substring in text, an item in arrays and a key in
// objects.
func (x *Assertion) Contains(needle any) *Assertion {
	found := false
	switch {
	case x.subject.IsArray():
		for _, item := range x.subject.Items() {
			if item.LooseEqual(needle) {
				found = true
				break
			}
		}
	case x.subject.IsObject():
		found = x.subject.Get(value.Of(needle).String()).Exists()
	case x.subject.Exists():
		found = strings.Contains(x.subject.String(), value.Of(needle).String())
	}
	return x.check(found, "contains "+describeExpected(needle))
}

// Matches tests the text form against a regular expression, given as a
// string or *regexp.Regexp.
func (x *Assertion) Matches(pattern any) *Assertion {
	var re *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		re = p
	case string:
		compiled, err := regexp.Compile(p)
		if err != nil {
			return x.checkWith(false, "matches /"+p+"/", "invalid pattern: "+err.Error())
		}
		re = compiled
	default:
		return x.checkWith(false, fmt.Sprintf("matches %v", pattern), fmt.Sprintf("unsupported pattern type %T", pattern))
	}
	return x.check(x.subject.Exists() && re.MatchString(x.subject.String()), "matches /"+re.String()+"/")
}

func (x *Assertion) StartsWith(prefix string) *Assertion {
	return x.check(x.subject.Exists() && strings.HasPrefix(x.subject.String(), prefix), "starts with "+strconv.Quote(prefix))
}

func (x *Assertion) EndsWith(suffix string) *Assertion {
	return x.check(x.subject.Exists() && strings.HasSuffix(x.subject.String(), suffix), "ends with "+strconv.Quote(suffix))
}

func (x *Assertion) compare(bound any, op string, ok func(a, b float64) bool) *Assertion {
	a, b := x.subject.Float(), value.Of(bound).Float()
	cond := !math.IsNaN(a) && !math.IsNaN(b) && ok(a, b)
	return x.check(cond, op+" "+describeExpected(bound))
}

func (x *Assertion) GreaterThan(n any) *Assertion {
	return x.compare(n, "is greater than", func(a, b float64) bool { return a > b })
}

func (x *Assertion) GreaterThanOrEquals(n any) *Assertion {
	return x.compare(n, "is greater than or equal to", func(a, b float64) bool { return a >= b })
}

func (x *Assertion) LessThan(n any) *Assertion {
	return x.compare(n, "is less than", func(a, b float64) bool { return a < b })
}

func (x *Assertion) LessThanOrEquals(n any) *Assertion {
	return x.compare(n, "is less than or equal to", func(a, b float64) bool { return a <= b })
}

// Between is inclusive at both ends.
func (x *Assertion) Between(low, high any) *Assertion {
	v, lo, hi := x.subject.Float(), value.Of(low).Float(), value.Of(high).Float()
	cond := !math.IsNaN(v) && !math.IsNaN(lo) && !math.IsNaN(hi) && v >= lo && v <= hi
	return x.check(cond, fmt.Sprintf("is between %s and %s", describeExpected(low), describeExpected(high)))
}

func (x *Assertion) Exists() *Assertion {
	return x.check(x.subject.Exists(), "exists")
}

func (x *Assertion) IsNull() *Assertion {
	return x.check(x.subject.IsNull(), "is null")
}

// IsType checks the kind by name: null, boolean, number, string, array,
// object, node or element.
func (x *Assertion) IsType(kind string) *Assertion {
	k, ok := value.ParseKind(kind)
	if !ok {
		return x.checkWith(false, "is of type "+kind, "unknown type name")
	}
	return x.checkWith(x.subject.Kind() == k, "is of type "+kind, x.subject.Kind().String())
}

// In passes when the subject loosely equals one of options.
func (x *Assertion) In(options ...any) *Assertion {
	found := false
	names := make([]string, len(options))
	for i, o := range options {
		names[i] = describeExpected(o)
		if x.subject.LooseEqual(o) {
			found = true
		}
	}
	return x.check(found, "is one of ["+strings.Join(names, ", ")+"]")
}

// HasLength checks Len: items, keys, characters or child nodes.
func (x *Assertion) HasLength(n int) *Assertion {
	length := x.subject.Len()
	if x.hasItems {
		length = len(x.items)
	}
	return x.checkWith(length == n, fmt.Sprintf("has length %d", n), strconv.Itoa(length))
}

// IsTrue checks truthiness.
func (x *Assertion) IsTrue() *Assertion {
	return x.check(x.subject.Bool(), "is true")
}

// Every passes when check passes for every item. Checks made on each item
// are not logged; one summary line is.
func (x *Assertion) Every(check func(item *Assertion)) *Assertion {
	return x.quantify("every", check, func(passed, total int) bool { return passed == total })
}

// Some passes when check passes for at least one item.
func (x *Assertion) Some(check func(item *Assertion)) *Assertion {
	return x.quantify("some", check, func(passed, _ int) bool { return passed > 0 })
}

// None passes when check passes for no item.
func (x *Assertion) None(check func(item *Assertion)) *Assertion {
	return x.quantify("no", check, func(passed, _ int) bool { return passed == 0 })
}

func (x *Assertion) collection() []value.Value {
	if x.hasItems {
		return x.items
	}
	return x.subject.Items()
}

func (x *Assertion) quantify(kind string, check func(item *Assertion), ok func(passed, total int) bool) *Assertion {
	items := x.collection()
	passed := 0
	for _, item := range items {
		t := &tally{}
		check(&Assertion{actx: x.actx, subject: item, ignored: true, tally: t})
		if t.failed == 0 {
			passed++
		}
	}
	actual := fmt.Sprintf("%d of %d passed", passed, len(items))
	return x.checkWith(ok(passed, len(items)), kind+" item passes", actual)
}

func describeExpected(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case value.Value:
		return t.Raw()
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}

func describeActual(v value.Value) string {
	raw := v.Raw()
	if v.IsNode() {
		raw = strconv.Quote(v.String())
	}
	const limit = 120
	if len(raw) > limit {
		raw = raw[:limit] + "..."
	}
	return raw
}
