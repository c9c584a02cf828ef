package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkmark/linkmark/pkg/audit/browser"
)

type controlAction int

const (
	controlPause controlAction = iota
	controlCancel
)

type controlMsg struct {
	action controlAction
	done   chan struct{}
}

// scheduler drives a single validation pass. All RunState mutation happens
// on its event loop goroutine; worker contexts, timers and control callers
// only ever publish messages into its channels. That serialization is what
// makes the state machine race-free without locks.
type scheduler struct {
	maxWorkers      int
	requestTimeout  time.Duration
	graceDelay      time.Duration
	showFavicons    bool
	state           *RunState
	class           *classifier
	contexts        browser.ContextManager
	hooks           Hooks
	logger          *slog.Logger
	events          chan browser.Event
	timerC          chan string
	control         chan controlMsg
	done            chan struct{}
	requestTimers   map[string]*time.Timer
	graceTimers     map[string]*time.Timer
	startTimes      map[string]time.Time
}

func newScheduler(opts *Options, state *RunState, class *classifier, logger *slog.Logger) *scheduler {
	return &scheduler{
		maxWorkers:     opts.MaxConcurrentWorkers,
		requestTimeout: opts.RequestTimeout,
		graceDelay:     opts.SuccessGraceDelay,
		showFavicons:   opts.ShowFavicons,
		state:          state,
		class:          class,
		contexts:       opts.Contexts,
		hooks:          opts.EventHooks,
		logger:         logger,
		events:         make(chan browser.Event, 4*opts.MaxConcurrentWorkers+16),
		timerC:         make(chan string, 2*opts.MaxConcurrentWorkers),
		control:        make(chan controlMsg),
		done:           make(chan struct{}),
		requestTimers:  make(map[string]*time.Timer),
		graceTimers:    make(map[string]*time.Timer),
		startTimes:     make(map[string]time.Time),
	}
}

// pause asks the event loop to suspend the run and waits for it to settle.
// Returns false if the loop already exited.
func (s *scheduler) pause() bool { return s.signal(controlPause) }

// cancel asks the event loop to abort the run and waits for it to settle.
func (s *scheduler) cancel() bool { return s.signal(controlCancel) }

func (s *scheduler) signal(action controlAction) bool {
	msg := controlMsg{action: action, done: make(chan struct{})}
	select {
	case s.control <- msg:
		<-msg.done
		return true
	case <-s.done:
		return false
	}
}

// run executes the pass to one of its terminal phases. Cancelling ctx is
// treated as a pause so that progress survives an interrupted process.
func (s *scheduler) run(ctx context.Context) RunPhase {
	s.state.phase = RunActive
	s.contexts.Subscribe(s.events)
	defer s.contexts.Unsubscribe()
	defer s.teardown()

	s.fillSlots()
	s.reportProgress()
	if s.state.drained() {
		s.state.phase = RunFinished
		return s.state.phase
	}

	for {
		select {
		case <-ctx.Done():
			s.suspend(RunPaused)
			return s.state.phase
		case msg := <-s.control:
			switch msg.action {
			case controlPause:
				s.suspend(RunPaused)
			case controlCancel:
				s.suspend(RunCancelled)
			}
			close(msg.done)
			return s.state.phase
		case contextID := <-s.timerC:
			s.onRequestTimeout(contextID)
		case ev := <-s.events:
			s.onEvent(ev)
		}
		if s.state.phase == RunFinished {
			return s.state.phase
		}
	}
}

// fillSlots dispatches pending items until the concurrency bound is reached
// or the queue is empty. Items whose context cannot be created are dropped
// from this run so the slot frees up for the next one.
func (s *scheduler) fillSlots() {
	for len(s.state.inFlight) < s.maxWorkers {
		item, ok := s.state.popPending()
		if !ok {
			return
		}
		s.notifyStatus(item, StatusChecking, "")
		contextID, err := s.contexts.Create(item.URL)
		if err != nil {
			s.logger.Warn("Worker context creation failed, skipping item",
				slog.String("id", item.ID),
				slog.String("url", item.URL),
				slog.Any("error", err))
			s.notifyStatus(item, StatusFailed, fmt.Sprintf("context creation failed: %v", err))
			s.state.dropItem(item)
			continue
		}
		s.state.beginFlight(contextID, item)
		s.class.observe(contextID)
		s.startTimes[contextID] = time.Now()
		s.startRequestTimer(contextID)
		s.logger.Debug("Dispatched item",
			slog.String("id", item.ID),
			slog.String("url", item.URL),
			slog.String("context", contextID))
	}
}

func (s *scheduler) startRequestTimer(contextID string) {
	s.requestTimers[contextID] = time.AfterFunc(s.requestTimeout, func() {
		select {
		case s.timerC <- contextID:
		case <-s.done:
		}
	})
}

func (s *scheduler) stopRequestTimer(contextID string) {
	if t, ok := s.requestTimers[contextID]; ok {
		t.Stop()
		delete(s.requestTimers, contextID)
	}
}

func (s *scheduler) onEvent(ev browser.Event) {
	switch ev := ev.(type) {
	case browser.Removed:
		s.onRemoved(ev.ContextID)
	case browser.NavigationCompleted:
		s.applyOutcome(ev.ContextID, s.class.navigationCompleted(ev))
	case browser.NavigationError:
		if ev.FrameID == browser.TopFrameID && ev.ErrorCode == browser.CodeRedirect {
			if item, ok := s.state.itemByContext(ev.ContextID); ok {
				s.logger.Info("Bookmark redirects", slog.String("id", item.ID), slog.String("url", item.URL))
			}
		} else if ev.FrameID == browser.TopFrameID && !knownCode(ev.ErrorCode) {
			// Left to the request timeout.
			s.logger.Error("Unrecognized lifecycle error code",
				slog.String("context", ev.ContextID),
				slog.String("url", ev.URL),
				slog.Uint64("code", uint64(ev.ErrorCode)))
		}
		s.applyOutcome(ev.ContextID, s.class.navigationError(ev))
	case browser.SubRequestCompleted:
		s.applyOutcome(ev.ContextID, s.class.subRequestCompleted(ev))
	case browser.AuthRequired:
		// Auth challenges are auto-denied and finalize the item right away
		// when its context is resolvable by URL. Otherwise the verdict is
		// parked and joined in when that URL's navigation completes.
		if contextID, ok := s.state.contextByURL(ev.URL); ok {
			s.applyOutcome(contextID, errorVerdict(KindAuthRequired))
		} else {
			s.class.parkURLError(ev.URL, KindAuthRequired)
		}
	}
}

func (s *scheduler) onRequestTimeout(contextID string) {
	if _, ok := s.state.itemByContext(contextID); !ok {
		return
	}
	delete(s.requestTimers, contextID)
	s.applyOutcome(contextID, s.class.timeout(contextID))
}

// applyOutcome commits a verdict for the context's item. Verdicts for
// unknown contexts, or second verdicts for an already finalized item, are
// discarded.
func (s *scheduler) applyOutcome(contextID string, out outcome) {
	if !out.verdict {
		return
	}
	item, ok := s.state.itemByContext(contextID)
	if !ok {
		return
	}
	var info SuccessInfo
	if out.success {
		info = s.successInfo(contextID, item)
	}
	if !s.state.recordVerdict(contextID, out.success, out.kind, info) {
		return
	}
	s.stopRequestTimer(contextID)
	if out.success {
		s.notifyStatus(item, StatusSuccess, "")
		s.scheduleRemoval(contextID)
	} else {
		s.notifyStatus(item, StatusFailed, string(out.kind))
		s.contexts.Remove(contextID)
	}
	s.reportProgress()
}

// successInfo captures duration and, when configured, the favicon the
// context discovered while loading.
func (s *scheduler) successInfo(contextID string, item BookmarkItem) SuccessInfo {
	info := SuccessInfo{ID: item.ID, URL: item.URL}
	if started, ok := s.startTimes[contextID]; ok {
		info.Duration = time.Since(started)
		info.DurationMs = info.Duration.Milliseconds()
	}
	if s.showFavicons {
		if fp, ok := s.contexts.(browser.FaviconProvider); ok {
			info.FaviconURL = fp.Favicon(contextID)
		}
	}
	return info
}

// scheduleRemoval keeps a successful context alive briefly so late resources
// (favicons most of all) can still arrive, then discards it.
func (s *scheduler) scheduleRemoval(contextID string) {
	if s.graceDelay <= 0 {
		s.contexts.Remove(contextID)
		return
	}
	s.graceTimers[contextID] = time.AfterFunc(s.graceDelay, func() {
		s.contexts.Remove(contextID)
	})
}

// onRemoved frees the context's slot, counts its item as processed and
// refills. This is the only place the run can transition to finished.
func (s *scheduler) onRemoved(contextID string) {
	s.stopRequestTimer(contextID)
	if t, ok := s.graceTimers[contextID]; ok {
		t.Stop()
		delete(s.graceTimers, contextID)
	}
	s.class.forget(contextID)
	delete(s.startTimes, contextID)

	if _, ok := s.state.completeContext(contextID); !ok {
		return
	}
	s.fillSlots()
	s.reportProgress()
	if s.state.drained() {
		s.state.phase = RunFinished
	}
}

// suspend tears all in-flight contexts down and parks the run in the given
// terminal-for-this-process phase. Unfinalized items revert to pending.
func (s *scheduler) suspend(phase RunPhase) {
	contexts := s.state.abandonFlights()
	for _, id := range contexts {
		s.contexts.Remove(id)
	}
	s.state.phase = phase
	s.reportProgress()
	s.logger.Info("Run suspended",
		slog.String("phase", string(phase)),
		slog.Int("abandoned", len(contexts)))
}

func (s *scheduler) teardown() {
	close(s.done)
	for id, t := range s.requestTimers {
		t.Stop()
		delete(s.requestTimers, id)
	}
	for id, t := range s.graceTimers {
		t.Stop()
		s.contexts.Remove(id)
		delete(s.graceTimers, id)
	}
}

func (s *scheduler) reportProgress() {
	if err := s.hooks.OnProgress(s.state.progress()); err != nil {
		s.logger.Warn("Progress hook failed", slog.Any("error", err))
	}
}

func (s *scheduler) notifyStatus(item BookmarkItem, status Status, message string) {
	if err := s.hooks.OnItemStatusUpdate(item, status, message); err != nil {
		s.logger.Warn("Status hook failed", slog.Any("error", err))
	}
}
