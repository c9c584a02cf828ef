package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkmark/linkmark/pkg/audit/browser"
)

func TestNavigationCompletedTopFrame(t *testing.T) {
	c := newClassifier(DefaultTimeoutOverruleCount)
	c.observe("ctx-1")

	out := c.navigationCompleted(browser.NavigationCompleted{
		ContextID: "ctx-1", URL: "https://example.com",
		FrameID: browser.TopFrameID, Status: browser.StatusComplete,
	})
	assert.True(t, out.verdict)
	assert.True(t, out.success)
}

func TestNavigationCompletedSubFrameOrPartial(t *testing.T) {
	c := newClassifier(DefaultTimeoutOverruleCount)

	sub := c.navigationCompleted(browser.NavigationCompleted{FrameID: 3, Status: browser.StatusComplete})
	assert.False(t, sub.verdict)

	partial := c.navigationCompleted(browser.NavigationCompleted{FrameID: browser.TopFrameID, Status: "loading"})
	assert.False(t, partial.verdict)
}

func TestParkedURLErrorOverridesCompletion(t *testing.T) {
	c := newClassifier(DefaultTimeoutOverruleCount)
	c.parkURLError("https://example.com", KindAuthRequired)

	out := c.navigationCompleted(browser.NavigationCompleted{
		URL: "https://example.com", FrameID: browser.TopFrameID, Status: browser.StatusComplete,
	})
	assert.True(t, out.verdict)
	assert.False(t, out.success)
	assert.Equal(t, KindAuthRequired, out.kind)

	// Consumed: the next completion for the same URL succeeds.
	again := c.navigationCompleted(browser.NavigationCompleted{
		URL: "https://example.com", FrameID: browser.TopFrameID, Status: browser.StatusComplete,
	})
	assert.True(t, again.success)
}

func TestNavigationErrorCodeTable(t *testing.T) {
	testCases := []struct {
		code uint32
		kind ErrorKind
	}{
		{browser.CodeServerNotFound, KindServerNotFound},
		{browser.CodeConnectionRefused, KindConnectionRefused},
		{browser.CodeInvalidCertificate, KindInvalidCertificate},
		{browser.CodeAborted, KindAborted},
		{browser.CodeConnectionInterrupted, KindConnectionInterrupted},
	}
	c := newClassifier(DefaultTimeoutOverruleCount)
	for _, tc := range testCases {
		out := c.navigationError(browser.NavigationError{FrameID: browser.TopFrameID, ErrorCode: tc.code})
		assert.True(t, out.verdict, "code %d", tc.code)
		assert.Equal(t, tc.kind, out.kind, "code %d", tc.code)
	}
}

func TestNavigationErrorNonVerdictCases(t *testing.T) {
	c := newClassifier(DefaultTimeoutOverruleCount)

	// Sub-frame failures never condemn the page.
	sub := c.navigationError(browser.NavigationError{FrameID: 7, ErrorCode: browser.CodeServerNotFound})
	assert.False(t, sub.verdict)

	// A redirect is a notice, not a failure.
	redirect := c.navigationError(browser.NavigationError{FrameID: browser.TopFrameID, ErrorCode: browser.CodeRedirect})
	assert.False(t, redirect.verdict)

	// Unrecognized codes are left to the timeout path.
	unknown := c.navigationError(browser.NavigationError{FrameID: browser.TopFrameID, ErrorCode: 42})
	assert.False(t, unknown.verdict)
	assert.False(t, knownCode(42))
	assert.True(t, knownCode(browser.CodeRedirect))
}

func TestSubRequestCompletedStatusTable(t *testing.T) {
	testCases := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindAuthRequired},
		{403, KindAuthRequired},
		{405, KindAuthRequired},
		{407, KindAuthRequired},
		{404, KindResourceNotFound},
		{500, KindUnspecified},
		{418, KindUnspecified},
	}
	c := newClassifier(DefaultTimeoutOverruleCount)
	for _, tc := range testCases {
		out := c.subRequestCompleted(browser.SubRequestCompleted{
			ContextID: "ctx-1", StatusCode: tc.status, TopFrame: true,
		})
		assert.True(t, out.verdict, "status %d", tc.status)
		assert.Equal(t, tc.kind, out.kind, "status %d", tc.status)
	}
}

func TestSubRequestErrorOnSubResourceIsIgnored(t *testing.T) {
	c := newClassifier(DefaultTimeoutOverruleCount)
	out := c.subRequestCompleted(browser.SubRequestCompleted{
		ContextID: "ctx-1", StatusCode: 404, TopFrame: false,
	})
	assert.False(t, out.verdict)
}

func TestTimeoutOverruleIsStrict(t *testing.T) {
	c := newClassifier(5)
	c.observe("ctx-1")

	// Exactly the threshold is not enough.
	for i := 0; i < 5; i++ {
		c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: 200})
	}
	out := c.timeout("ctx-1")
	assert.True(t, out.verdict)
	assert.Equal(t, KindTimeout, out.kind)

	// One more successful exchange overrules the timeout.
	c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: 200})
	out = c.timeout("ctx-1")
	assert.True(t, out.success)
}

func TestOnlySuccessStatusesFeedOverrule(t *testing.T) {
	c := newClassifier(0)
	c.observe("ctx-1")

	// Informational and redirect exchanges keep the context alive without
	// counting toward the overrule threshold.
	for _, status := range []int{100, 101, 301, 302, 304, 399} {
		out := c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: status})
		assert.False(t, out.verdict, "status %d", status)
	}
	out := c.timeout("ctx-1")
	assert.Equal(t, KindTimeout, out.kind)

	// Boundary 2xx statuses do count.
	c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: 200})
	assert.True(t, c.timeout("ctx-1").success)
	c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: 299})
	assert.True(t, c.timeout("ctx-1").success)
}

func TestTimeoutUntrackedContext(t *testing.T) {
	c := newClassifier(0)
	out := c.timeout("ctx-unknown")
	assert.Equal(t, KindTimeout, out.kind)
}

func TestForgetDropsTracking(t *testing.T) {
	c := newClassifier(0)
	c.observe("ctx-1")
	c.subRequestCompleted(browser.SubRequestCompleted{ContextID: "ctx-1", StatusCode: 200})
	c.forget("ctx-1")
	out := c.timeout("ctx-1")
	assert.Equal(t, KindTimeout, out.kind)
}
