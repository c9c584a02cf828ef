package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmark/linkmark/internal/testutil"
	"github.com/linkmark/linkmark/pkg/audit"
	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
	"github.com/linkmark/linkmark/pkg/audit/browser"
)

// errorScript fails the top-level document request with the given status.
func errorScript(status int) testutil.ContextScript {
	return func(contextID, url string, emit func(browser.Event)) {
		emit(browser.SubRequestCompleted{ContextID: contextID, URL: url, FrameID: browser.TopFrameID, StatusCode: status, TopFrame: true})
	}
}

// stalledScript emits n successful exchanges and then never completes.
func stalledScript(n int) testutil.ContextScript {
	return func(contextID, url string, emit func(browser.Event)) {
		for i := 0; i < n; i++ {
			emit(browser.SubRequestCompleted{ContextID: contextID, URL: url, FrameID: 1, StatusCode: 200})
		}
	}
}

func silentScript(string, string, func(browser.Event)) {}

func testOptions(root *bookmarks.Node, contexts *testutil.ScriptedContexts) audit.Options {
	return audit.Options{
		Bookmarks: testutil.NewTreeStore(root),
		Contexts:  contexts,
		// Successful contexts are discarded immediately; tests that need the
		// grace window set their own delay.
		SuccessGraceDelay: -1,
	}
}

func runEngine(t *testing.T, opts audit.Options) audit.Report {
	t.Helper()
	engine, err := audit.NewEngine(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := engine.Run(ctx)
	require.NoError(t, err)
	return report
}

func TestNewEngineRequiresBookmarks(t *testing.T) {
	_, err := audit.NewEngine(audit.Options{})
	require.ErrorIs(t, err, audit.ErrConfigValidation)
}

func TestRunAllSuccessful(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
		testutil.Leaf("b2", "Two", "https://two.example.com"),
		testutil.Leaf("b3", "Three", "https://three.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	hooks := &testutil.RecordingHooks{}
	opts := testOptions(root, contexts)
	opts.EventHooks = hooks

	report := runEngine(t, opts)

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 3, report.Summary.Processed)
	assert.Equal(t, 0, report.Summary.ErrorCount)
	assert.Equal(t, 3, report.Summary.SuccessCount)
	assert.Equal(t, 100, report.Summary.Percent)
	assert.Equal(t, []audit.Status{audit.StatusChecking, audit.StatusSuccess}, hooks.StatusesFor("b1"))
	require.Len(t, hooks.Reports, 1)
}

func TestRunClassifiesBrokenLinks(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("ok", "OK", "https://ok.example.com"),
		testutil.Leaf("gone", "Gone", "https://gone.example.com"),
		testutil.Leaf("auth", "Auth", "https://auth.example.com"),
		testutil.Leaf("err", "Err", "https://err.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://gone.example.com", errorScript(404))
	contexts.Script("https://auth.example.com", errorScript(401))
	contexts.Script("https://err.example.com", errorScript(503))

	report := runEngine(t, testOptions(root, contexts))

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	assert.Equal(t, 4, report.Summary.Processed)
	require.Len(t, report.Errors, 3)
	kinds := map[string]audit.ErrorKind{}
	for _, rec := range report.Errors {
		kinds[rec.ID] = rec.Kind
	}
	assert.Equal(t, audit.KindResourceNotFound, kinds["gone"])
	assert.Equal(t, audit.KindAuthRequired, kinds["auth"])
	assert.Equal(t, audit.KindUnspecified, kinds["err"])
}

func TestRunClassifiesLifecycleErrors(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("dns", "DNS", "https://dns.example.com"),
		testutil.Leaf("tls", "TLS", "https://tls.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://dns.example.com", func(contextID, url string, emit func(browser.Event)) {
		emit(browser.NavigationError{ContextID: contextID, URL: url, FrameID: browser.TopFrameID, ErrorCode: browser.CodeServerNotFound})
	})
	contexts.Script("https://tls.example.com", func(contextID, url string, emit func(browser.Event)) {
		emit(browser.NavigationError{ContextID: contextID, URL: url, FrameID: browser.TopFrameID, ErrorCode: browser.CodeInvalidCertificate})
	})

	report := runEngine(t, testOptions(root, contexts))

	kinds := map[string]audit.ErrorKind{}
	for _, rec := range report.Errors {
		kinds[rec.ID] = rec.Kind
	}
	assert.Equal(t, audit.KindServerNotFound, kinds["dns"])
	assert.Equal(t, audit.KindInvalidCertificate, kinds["tls"])
}

func TestRunAuthChallengeFinalizesImmediately(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "Intranet", "https://intranet.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://intranet.example.com", func(contextID, url string, emit func(browser.Event)) {
		emit(browser.AuthRequired{URL: url})
	})

	report := runEngine(t, testOptions(root, contexts))

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, audit.KindAuthRequired, report.Errors[0].Kind)
}

func TestRunDetectsDuplicates(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "First", "https://example.com"),
		testutil.Leaf("b2", "Copy", "https://example.com"),
	)
	contexts := testutil.NewScriptedContexts()

	report := runEngine(t, testOptions(root, contexts))

	assert.Equal(t, 2, report.Summary.Processed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "b2", report.Errors[0].ID)
	assert.Equal(t, audit.KindDuplicate, report.Errors[0].Kind)
	// Only the first copy hits the network.
	assert.Equal(t, []string{"https://example.com"}, contexts.Created)
}

func TestRunAppliesFilterPolicy(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Folder("arch", "Archive",
			testutil.Leaf("b1", "Old", "https://old.example.com"),
		),
		testutil.Leaf("b2", "Kept", "https://kept.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	opts := testOptions(root, contexts)
	opts.IgnoredDirs = []string{"archive"}
	opts.IgnoredDirsActive = true

	report := runEngine(t, opts)

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Ignored)
	assert.Equal(t, 1, report.Summary.Processed)
	assert.Equal(t, []string{"https://kept.example.com"}, contexts.Created)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var children []*bookmarks.Node
	urls := []string{}
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5", "b6"} {
		url := "https://" + id + ".example.com"
		children = append(children, testutil.Leaf(id, id, url))
		urls = append(urls, url)
	}
	root := testutil.Folder("root", "", children...)
	contexts := testutil.NewScriptedContexts()
	for _, url := range urls {
		contexts.Script(url, func(contextID, u string, emit func(browser.Event)) {
			time.Sleep(20 * time.Millisecond)
			emit(browser.NavigationCompleted{ContextID: contextID, URL: u, FrameID: browser.TopFrameID, Status: browser.StatusComplete})
		})
	}
	opts := testOptions(root, contexts)
	opts.MaxConcurrentWorkers = 2

	report := runEngine(t, opts)

	assert.Equal(t, 6, report.Summary.Processed)
	assert.LessOrEqual(t, contexts.MaxActive, 2)
	assert.Equal(t, 2, report.Summary.Concurrency)
}

func TestRunSurvivesContextCreationFailure(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("bad", "Bad", "https://bad.example.com"),
		testutil.Leaf("good", "Good", "https://good.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.FailURLs["https://bad.example.com"] = true
	hooks := &testutil.RecordingHooks{}
	store := &testutil.MemStateStore{}
	opts := testOptions(root, contexts)
	opts.EventHooks = hooks
	opts.StateStore = store

	report := runEngine(t, opts)

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	// The undispatchable item is neither processed nor errored; the next run
	// retries it.
	assert.Equal(t, 1, report.Summary.Processed)
	assert.Empty(t, report.Errors)
	assert.Equal(t, []audit.Status{audit.StatusChecking, audit.StatusFailed}, hooks.StatusesFor("bad"))
	assert.NotContains(t, store.Record.Processed, "bad")
}

func TestRunTimeoutAndOverrule(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("slow", "Slow", "https://slow.example.com"),
		testutil.Leaf("busy", "Busy", "https://busy.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	// Two successful exchanges equal the threshold: not enough.
	contexts.Script("https://slow.example.com", stalledScript(2))
	// Three exceed it: the page is deemed alive.
	contexts.Script("https://busy.example.com", stalledScript(3))
	opts := testOptions(root, contexts)
	opts.TimeoutOverruleCount = 2
	opts.RequestTimeout = 100 * time.Millisecond

	report := runEngine(t, opts)

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "slow", report.Errors[0].ID)
	assert.Equal(t, audit.KindTimeout, report.Errors[0].Kind)
	assert.Equal(t, 1, report.Summary.SuccessCount)
}

func TestRunRedirectExchangesDoNotOverruleTimeout(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("loopy", "Loopy", "https://loopy.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	// A page cycling through redirects keeps the wire busy without ever
	// delivering content; only 2xx exchanges count toward the overrule.
	contexts.Script("https://loopy.example.com", func(contextID, url string, emit func(browser.Event)) {
		for i := 0; i < 3; i++ {
			emit(browser.SubRequestCompleted{ContextID: contextID, URL: url, FrameID: 1, StatusCode: 302})
		}
	})
	opts := testOptions(root, contexts)
	opts.TimeoutOverruleCount = 2
	opts.RequestTimeout = 100 * time.Millisecond

	report := runEngine(t, opts)

	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, audit.KindTimeout, report.Errors[0].Kind)
}

func TestRunReportsFavicons(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.Favicons["https://one.example.com"] = "https://one.example.com/favicon.ico"
	opts := testOptions(root, contexts)
	opts.ShowFavicons = true

	report := runEngine(t, opts)

	require.Len(t, report.Successes, 1)
	assert.Equal(t, "https://one.example.com/favicon.ico", report.Successes[0].FaviconURL)
}

func TestPauseAndResume(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
		testutil.Leaf("b2", "Two", "https://two.example.com"),
		testutil.Leaf("b3", "Three", "https://three.example.com"),
	)
	store := &testutil.MemStateStore{}

	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://two.example.com", silentScript)
	contexts.Script("https://three.example.com", silentScript)

	var engine *audit.Engine
	var once sync.Once
	hooks := &testutil.RecordingHooks{}
	hooks.OnStatus = func(ev testutil.StatusEvent) {
		if ev.Status == audit.StatusSuccess {
			// Pause must not be called from the event loop itself.
			once.Do(func() { go engine.Pause() })
		}
	}

	opts := testOptions(root, contexts)
	opts.MaxConcurrentWorkers = 1
	opts.EventHooks = hooks
	opts.StateStore = store

	engine, err := audit.NewEngine(opts)
	require.NoError(t, err)
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, audit.RunPaused, report.Summary.Phase)
	require.True(t, store.Has)
	assert.Contains(t, store.Record.Processed, "b1")
	assert.Less(t, len(store.Record.Processed), 3)

	// Second pass: the stalled URLs now load normally.
	resumeContexts := testutil.NewScriptedContexts()
	resumeOpts := testOptions(root, resumeContexts)
	resumeOpts.StateStore = store

	resumed := runEngine(t, resumeOpts)

	assert.Equal(t, audit.RunFinished, resumed.Summary.Phase)
	assert.True(t, resumed.Summary.Resumed)
	assert.Equal(t, 3, resumed.Summary.Processed)
	assert.Equal(t, 3, resumed.Summary.Total)
	// The already processed item is not re-dispatched.
	assert.NotContains(t, resumeContexts.Created, "https://one.example.com")
}

func TestCancelDiscardsState(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
		testutil.Leaf("b2", "Two", "https://two.example.com"),
	)
	store := &testutil.MemStateStore{}
	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://one.example.com", silentScript)
	contexts.Script("https://two.example.com", silentScript)

	var engine *audit.Engine
	var once sync.Once
	hooks := &testutil.RecordingHooks{}
	hooks.OnStatus = func(ev testutil.StatusEvent) {
		if ev.Status == audit.StatusChecking {
			once.Do(func() { go engine.Cancel() })
		}
	}

	opts := testOptions(root, contexts)
	opts.EventHooks = hooks
	opts.StateStore = store

	engine, err := audit.NewEngine(opts)
	require.NoError(t, err)
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, audit.RunCancelled, report.Summary.Phase)
	assert.False(t, store.Has)
	assert.GreaterOrEqual(t, store.Clears, 1)
}

func TestContextCancellationPausesRun(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
	)
	contexts := testutil.NewScriptedContexts()
	contexts.Script("https://one.example.com", silentScript)
	store := &testutil.MemStateStore{}

	ctx, cancel := context.WithCancel(context.Background())
	hooks := &testutil.RecordingHooks{}
	var once sync.Once
	hooks.OnStatus = func(ev testutil.StatusEvent) {
		if ev.Status == audit.StatusChecking {
			once.Do(cancel)
		}
	}
	opts := testOptions(root, contexts)
	opts.EventHooks = hooks
	opts.StateStore = store

	engine, err := audit.NewEngine(opts)
	require.NoError(t, err)
	report, err := engine.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, audit.RunPaused, report.Summary.Phase)
}

func TestPauseWithoutActiveRun(t *testing.T) {
	root := testutil.Folder("root", "")
	engine, err := audit.NewEngine(testOptions(root, testutil.NewScriptedContexts()))
	require.NoError(t, err)
	assert.ErrorIs(t, engine.Pause(), audit.ErrNotRunning)
	assert.ErrorIs(t, engine.Cancel(), audit.ErrNotRunning)
}

func TestRunClearStateBeforeRun(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "One", "https://one.example.com"),
	)
	store := &testutil.MemStateStore{
		Record: audit.RunRecord{Total: 5, Processed: map[string]bool{"b1": true}},
		Has:    true,
	}
	opts := testOptions(root, testutil.NewScriptedContexts())
	opts.StateStore = store
	opts.ClearStateBeforeRun = true

	report := runEngine(t, opts)

	assert.False(t, report.Summary.Resumed)
	// The item is re-checked despite the stale record.
	assert.Equal(t, 1, report.Summary.Processed)
}

func TestRunEmptyTreeFinishesImmediately(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Folder("menu", "Menu"),
	)
	report := runEngine(t, testOptions(root, testutil.NewScriptedContexts()))
	assert.Equal(t, audit.RunFinished, report.Summary.Phase)
	assert.Equal(t, 0, report.Summary.Total)
}
