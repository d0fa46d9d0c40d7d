package response

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

const (
	platformAndroid = "android"
	platformIOS     = "ios"

	strategyUiAutomator = "-android uiautomator"
	strategyPredicate   = "-ios predicate string"
)

// mobileAdapter locates elements through an automation session using
// "strategy/value" selectors such as "id/login" or
// "class name/android.widget.TextView".
type mobileAdapter struct {
	base
	session ElementFinder
}

func newMobile(b base, session ElementFinder) *mobileAdapter {
	if session == nil {
		b.rec.Fail("mobile session was not created")
	} else {
		b.rec.Pass("mobile session created")
	}
	return &mobileAdapter{base: b, session: session}
}

// Root returns the ElementFinder session.
func (a *mobileAdapter) Root() any { return a.session }

func (a *mobileAdapter) RootValue() value.Value {
	return value.Null("session", "", a)
}

func (a *mobileAdapter) Find(ctx context.Context, selector string, opts FindOptions) (value.Value, error) {
	first, ok := a.session.(FirstElementFinder)
	if !ok || opts.Offset > 0 {
		return findFirst(ctx, a.FindAll, selector, opts, a)
	}
	using, target, opts := a.locate(selector, opts)
	if opts.filtered() {
		return findFirst(ctx, a.FindAll, selector, opts, a)
	}

	e, err := first.FindElement(ctx, using, target)
	if err != nil {
		return value.Null(selector, selector, a), fmt.Errorf("find %s: %w", selector, err)
	}
	if e == nil {
		return value.Null(selector, selector, a), nil
	}
	return value.FromElement(e, selector, selector+"[0]", a), nil
}

func (a *mobileAdapter) FindAll(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error) {
	if a.session == nil {
		return []value.Value{}, nil
	}

	using, target, opts := a.locate(selector, opts)
	elems, err := a.session.FindElements(ctx, using, target)
	if err != nil {
		return []value.Value{}, fmt.Errorf("find %s: %w", selector, err)
	}
	matches := make([]value.Value, len(elems))
	for i, e := range elems {
		matches[i] = value.FromElement(e, selector, selector+"["+strconv.Itoa(i)+"]", a)
	}
	return applyOptions(matches, opts), nil
}

// locate resolves selector to a WebDriver strategy, folding a text filter
// into it when the platform allows.
func (a *mobileAdapter) locate(selector string, opts FindOptions) (string, string, FindOptions) {
	using, target := splitLocator(selector, opts.FindBy)
	if opts.Contains != "" {
		if u, t, ok := textContainsLocator(a.session.Platform(), using, target, opts.Contains); ok {
			using, target = u, t
			opts.Contains = ""
		}
	}
	return using, target, opts
}

func (a *mobileAdapter) WaitFor(ctx context.Context, selector string, opts FindOptions, timeout time.Duration) (value.Value, error) {
	return poll(ctx, timeout, func(ctx context.Context) (value.Value, error) {
		return a.Find(ctx, selector, opts)
	})
}

// splitLocator turns "strategy/value" into its parts. An explicit findBy
// takes the whole selector as the value.
func splitLocator(selector, findBy string) (string, string) {
	if findBy != "" {
		return findBy, selector
	}
	using, target, ok := strings.Cut(selector, "/")
	if !ok {
		return "id", selector
	}
	return strings.TrimSpace(using), target
}

// textContainsLocator folds a text-contains filter into a native query,
// since WebDriver has no text-contains strategy of its own.
func textContainsLocator(platform, using, target, text string) (string, string, bool) {
	switch strings.ToLower(platform) {
	case platformAndroid:
		sel := "new UiSelector()"
		switch using {
		case "id":
			sel += ".resourceId(" + strconv.Quote(target) + ")"
		case "class name":
			sel += ".className(" + strconv.Quote(target) + ")"
		case "accessibility id":
			sel += ".description(" + strconv.Quote(target) + ")"
		case "":
		default:
			return "", "", false
		}
		return strategyUiAutomator, sel + ".textContains(" + strconv.Quote(text) + ")", true

	case platformIOS:
		var clauses []string
		switch using {
		case "id", "accessibility id":
			clauses = append(clauses, "name == "+strconv.Quote(target))
		case "class name":
			clauses = append(clauses, "type == "+strconv.Quote(target))
		case "":
		default:
			return "", "", false
		}
		clauses = append(clauses, "label CONTAINS "+strconv.Quote(text))
		return strategyPredicate, strings.Join(clauses, " AND "), true
	}
	return "", "", false
}
