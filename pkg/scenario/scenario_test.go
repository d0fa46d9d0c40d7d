package scenario

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/httpsuite/pkg/report"
	"github.com/vikasavnish/httpsuite/pkg/response"
)

const todoURL = "http://svc.test/todos/1"

func todoTransport() *fakeTransport {
	return newTransport().add(todoURL, 200, "application/json", `{"id":1,"title":"write tests","done":false}`)
}

func waitDone(t *testing.T, sc *Scenario) {
	t.Helper()
	select {
	case <-sc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("scenario %q did not finish", sc.Title())
	}
}

func hasLine(lines []report.Line, typ report.LineType, prefix string) bool {
	for _, l := range lines {
		if l.Type == typ && strings.HasPrefix(l.Message, prefix) {
			return true
		}
	}
	return false
}

func TestExecuteAtMostOnce(t *testing.T) {
	tr := todoTransport()
	s := newSuite(t, Config{Transport: tr})

	var runs int
	sc := s.Scenario("todo", response.JSON).Open(todoURL).Next(func(*AssertionContext) error {
		runs++
		return nil
	})

	sc.Execute()
	sc.Execute()
	sc.Method("POST").Header("X-Late", "1")
	waitDone(t, sc)
	sc.Execute()

	require.Len(t, tr.requests(), 1)
	assert.Equal(t, "GET", tr.requests()[0].Request.Method)
	assert.NotContains(t, tr.requests()[0].Request.Headers, "X-Late")
	assert.Equal(t, 1, runs)
	assert.Equal(t, Completed, sc.Disposition())
	assert.ErrorIs(t, sc.Err(), ErrAlreadyStarted)
	assert.Equal(t, "GET", sc.Request().Request.Method)
}

func TestCallbackOrdering(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var order []int
	sc := s.Scenario("todo", response.JSON).Open(todoURL).
		Next(func(*AssertionContext) error {
			order = append(order, 1)
			return nil
		}).
		Next(func(a *AssertionContext) error {
			order = append(order, 2)
			a.Next(func(*AssertionContext) error {
				order = append(order, 4)
				return nil
			})
			return nil
		}).
		Next(func(*AssertionContext) error {
			order = append(order, 3)
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	assert.True(t, sc.Passed())
}

func TestCapabilityPanicHaltsScenario(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var after bool
	sc := s.Scenario("todo", response.JSON).Open(todoURL).
		Next(func(a *AssertionContext) error {
			a.Expect(a.Status()).Equals(200)
			a.JSON().Get("id").Tag()
			return nil
		}).
		Next(func(*AssertionContext) error {
			after = true
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	assert.False(t, after)
	assert.Equal(t, Completed, sc.Disposition())
	assert.False(t, sc.Passed())
	assert.True(t, hasLine(sc.Lines(), report.LineFail, "callback failed: Tag is not supported on number value"))
}

func TestBrowserActionOnPlainScenario(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	sc := s.Scenario("todo", response.JSON).Open(todoURL).Next(func(a *AssertionContext) error {
		return a.Click("#save")
	})

	require.NoError(t, s.Run(testContext(t)))
	assert.False(t, sc.Passed())
	assert.True(t, hasLine(sc.Lines(), report.LineFail, "callback failed: Click: "+ErrNotBrowser.Error()))
}

func TestPlainPanicIsRecovered(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	sc := s.Scenario("todo", response.JSON).Open(todoURL).Next(func(*AssertionContext) error {
		panic("unexpected")
	})

	require.NoError(t, s.Run(testContext(t)))
	assert.True(t, hasLine(sc.Lines(), report.LineFail, "callback failed: panic: unexpected"))
}

func TestOptionalFailureKeepsPass(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	sc := s.Scenario("todo", response.JSON).Open(todoURL).Next(func(a *AssertionContext) error {
		a.Expect(a.Status()).Equals(200)
		a.Expect(a.Find("title")).Optional().Equals("something else")
		return nil
	})

	require.NoError(t, s.Run(testContext(t)))
	assert.True(t, sc.Passed())
	assert.Equal(t, 0, sc.Failures())

	rep := sc.Report()
	assert.Equal(t, 1, rep.Count(report.LineOptionalFail))
	assert.Equal(t, 0, rep.Count(report.LineFail))
	assert.Contains(t, messages(sc.Lines(), report.LineOptionalFail), `title equals "something else", got "write tests"`)
}

func TestScenarioWithoutURLIsSkipped(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	sc := s.Scenario("nothing", response.JSON).Next(func(*AssertionContext) error { return nil })

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, Skipped, sc.Disposition())
	assert.True(t, sc.Passed())
	assert.True(t, hasLine(sc.Lines(), report.LineComment, "skipped: no url to open"))
	assert.True(t, s.Passed())
}

func TestCancelPending(t *testing.T) {
	tr := todoTransport()
	s := newSuite(t, Config{Transport: tr})

	sc := s.Scenario("todo", response.JSON).Open(todoURL)
	sc.Cancel("not needed")
	sc.Execute()
	waitDone(t, sc)

	assert.Equal(t, Cancelled, sc.Disposition())
	assert.False(t, sc.Passed())
	assert.Empty(t, tr.requests())
	assert.True(t, hasLine(sc.Lines(), report.LineComment, "cancelled: not needed"))

	sc.Skip("too late")
	assert.Equal(t, Cancelled, sc.Disposition())
	assert.ErrorIs(t, sc.Err(), ErrAlreadyStarted)
}

func TestScenarioTimeoutAborts(t *testing.T) {
	tr := todoTransport()
	tr.delay = 5 * time.Second
	s := newSuite(t, Config{Transport: tr})

	var ran bool
	sc := s.Scenario("slow", response.JSON).Open(todoURL).Timeout(50 * time.Millisecond).
		Next(func(*AssertionContext) error {
			ran = true
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, Aborted, sc.Disposition())
	assert.Equal(t, report.AbortTimeout, sc.AbortReason())
	assert.False(t, sc.Passed())
	assert.False(t, ran)
	assert.True(t, hasLine(sc.Lines(), report.LineFail, "scenario exceeded its maximum duration"))
}

func TestTransportFailureAborts(t *testing.T) {
	tr := newTransport().fail(todoURL, errors.New("connection refused"))
	s := newSuite(t, Config{Transport: tr})

	var ran bool
	sc := s.Scenario("down", response.JSON).Open(todoURL).Next(func(*AssertionContext) error {
		ran = true
		return nil
	})

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, Aborted, sc.Disposition())
	assert.Equal(t, report.AbortTransport, sc.AbortReason())
	assert.False(t, ran)
	assert.True(t, hasLine(sc.Lines(), report.LineFail, "request failed: connection refused"))
	assert.Nil(t, sc.Response())
}

func TestHookOrder(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var mu sync.Mutex
	var order []string
	record := func(name string) Hook {
		return func(*Scenario) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	s.BeforeEach(record("beforeEach")).AfterEach(record("afterEach"))

	sc := s.Scenario("todo", response.JSON).Open(todoURL).
		Before(record("before")).
		After(record("after")).
		Success(record("success")).
		Failure(record("failure")).
		Finally(record("finally")).
		Subscribe(record("subscriber")).
		Next(func(*AssertionContext) error { return nil })

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, []string{"beforeEach", "before", "after", "success", "finally", "subscriber", "afterEach"}, order)
	assert.Equal(t, Completed, sc.Disposition())
}

func TestFailureHook(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var failed, succeeded bool
	sc := s.Scenario("todo", response.JSON).Open(todoURL).
		Success(func(*Scenario) { succeeded = true }).
		Failure(func(*Scenario) { failed = true }).
		Next(func(a *AssertionContext) error {
			a.Expect(a.Status()).Equals(201)
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	assert.True(t, failed)
	assert.False(t, succeeded)
	assert.Equal(t, 1, sc.Failures())
	assert.Contains(t, messages(sc.Lines(), report.LineFail), "status code equals 201, got 200")
}

func TestScratchStore(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var got any
	sc := s.Scenario("todo", response.JSON).Open(todoURL).
		Next(func(a *AssertionContext) error {
			a.Set("id", a.Find("id").Int())
			return nil
		}).
		Next(func(a *AssertionContext) error {
			got = a.Get("id")
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, sc.Get("id"))
}

func TestWaitForFinishedSelf(t *testing.T) {
	s := newSuite(t, Config{Transport: todoTransport()})

	var err error
	s.Scenario("todo", response.JSON).Open(todoURL).Next(func(a *AssertionContext) error {
		err = a.WaitForFinished(a.Scenario())
		return nil
	})

	require.NoError(t, s.Run(testContext(t)))
	assert.ErrorIs(t, err, errSelfWait)
}

func TestOpenCurl(t *testing.T) {
	tr := newTransport().add("http://svc.test/items", 201, "application/json", `{"ok":true}`)
	s := newSuite(t, Config{Transport: tr})

	sc := s.Scenario("", response.JSON).
		OpenCurl(`curl -X POST http://svc.test/items -H 'X-Trace: abc' -d '{"name":"widget"}'`).
		Next(func(a *AssertionContext) error {
			a.Expect(a.Status()).Equals(201)
			return nil
		})

	require.NoError(t, s.Run(testContext(t)))
	require.Len(t, tr.requests(), 1)
	req := tr.requests()[0]
	assert.Equal(t, "POST", req.Request.Method)
	assert.Equal(t, "abc", req.Request.Headers["X-Trace"])
	assert.Equal(t, "http://svc.test/items", sc.Title())
	assert.True(t, sc.Passed())

	bad := s.Scenario("bad", response.JSON).OpenCurl(`curl 'unterminated`)
	assert.Error(t, bad.Err())
}

func TestConfigureWhileRunningFails(t *testing.T) {
	tr := todoTransport()
	tr.delay = 100 * time.Millisecond
	s := newSuite(t, Config{Transport: tr})

	sc := s.Scenario("todo", response.JSON).Open(todoURL).Next(func(*AssertionContext) error { return nil })
	sc.Execute()
	sc.Method("POST")
	waitDone(t, sc)

	assert.Equal(t, Completed, sc.Disposition())
	assert.False(t, sc.Passed())
	assert.ErrorIs(t, sc.Err(), ErrAlreadyStarted)
	assert.Contains(t, messages(sc.Lines(), report.LineFail), "Method: scenario already started")
	assert.Equal(t, "GET", tr.requests()[0].Request.Method)
}
