// Package audit validates a bookmark hierarchy by loading every checkable
// URL in an isolated worker context and classifying the outcome. The engine
// runs a bounded number of contexts concurrently, reports progress through
// hooks, and persists its state so an interrupted pass can be resumed.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/linkmark/linkmark/pkg/audit/browser"
)

// Engine orchestrates validation runs. Construct one with NewEngine; a
// single Engine runs at most one pass at a time, but may be reused for
// consecutive passes.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	sched *scheduler
}

// NewEngine validates the options, applies defaults for optional
// dependencies, and returns a ready engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Bookmarks == nil {
		return nil, fmt.Errorf("%w: Bookmarks store is required", ErrConfigValidation)
	}
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(io.Discard, nil)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	if opts.StateStore == nil {
		opts.StateStore = &NoOpStateStore{}
	}
	if opts.MaxConcurrentWorkers <= 0 {
		opts.MaxConcurrentWorkers = DefaultMaxConcurrentWorkers
	}
	if opts.RequestTimeoutSeconds <= 0 {
		opts.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if opts.TimeoutOverruleCount < 0 {
		opts.TimeoutOverruleCount = DefaultTimeoutOverruleCount
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Duration(opts.RequestTimeoutSeconds) * time.Second
	}
	if opts.SuccessGraceDelay == 0 {
		opts.SuccessGraceDelay = DefaultSuccessGraceDelay
	}
	if opts.SortLocale == "" {
		opts.SortLocale = DefaultSortLocale
	}
	if opts.Contexts == nil {
		opts.Contexts = browser.NewHTTPManager(opts.Logger, nil, browser.DefaultMaxSubResources)
	}
	return &Engine{
		opts:   opts,
		logger: slog.New(opts.Logger).With(slog.String("component", "engine")),
	}, nil
}

// Run executes one validation pass and returns its report. A persisted
// record from an earlier interrupted pass is resumed automatically unless
// ClearStateBeforeRun is set. Cancelling ctx suspends the pass as a pause,
// preserving its progress.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	record, resumed := e.loadRecord()

	root, err := e.opts.Bookmarks.Tree()
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrSourceLoad, err)
	}

	if e.opts.SortEnabled {
		sorter := NewSorter(e.opts.Bookmarks, e.opts.SortLocale, e.opts.SortUnfiledByDate, e.opts.Logger)
		if err := sorter.Sort(root); err != nil {
			// Sorting is a convenience pass; a failure must not block
			// validation.
			e.logger.Warn("Bookmark sorting failed", slog.Any("error", err))
		}
	}

	state := newRunState(record)
	enumerator := NewEnumerator(e.opts.FilterPolicy(), e.opts.ToLowercaseTitles,
		state.processedIDs(), e.opts.Bookmarks, e.opts.EventHooks, e.opts.Logger)
	state.applyEnumeration(enumerator.Enumerate(root))

	class := newClassifier(e.opts.TimeoutOverruleCount)
	sched := newScheduler(&e.opts, state, class, e.logger)

	e.mu.Lock()
	if e.sched != nil {
		e.mu.Unlock()
		return Report{}, ErrRunActive
	}
	e.sched = sched
	e.mu.Unlock()

	e.logger.Info("Validation run starting",
		slog.Int("total", state.total),
		slog.Int("ignored", len(state.ignored)),
		slog.Int("pending", len(state.pending)),
		slog.Bool("resumed", resumed),
		slog.Int("concurrency", e.opts.MaxConcurrentWorkers))

	phase := sched.run(ctx)

	e.mu.Lock()
	e.sched = nil
	e.mu.Unlock()

	persistErr := e.persistRecord(phase, state)

	report := e.buildReport(state, phase, resumed, time.Since(start))
	if err := e.opts.EventHooks.OnRunComplete(report); err != nil {
		e.logger.Warn("Run-complete hook failed", slog.Any("error", err))
	}
	e.logger.Info("Validation run ended",
		slog.String("phase", string(phase)),
		slog.Int("processed", state.processed),
		slog.Int("errors", len(state.errors)),
		slog.Duration("duration", time.Since(start)))

	return report, persistErr
}

// Pause suspends the active run. Run returns with a paused report once all
// in-flight contexts are torn down and the record is persisted.
func (e *Engine) Pause() error { return e.signal(controlPause) }

// Cancel aborts the active run and discards its persisted record.
func (e *Engine) Cancel() error { return e.signal(controlCancel) }

func (e *Engine) signal(action controlAction) error {
	e.mu.Lock()
	sched := e.sched
	e.mu.Unlock()
	if sched == nil {
		return ErrNotRunning
	}
	var ok bool
	if action == controlPause {
		ok = sched.pause()
	} else {
		ok = sched.cancel()
	}
	if !ok {
		return ErrNotRunning
	}
	return nil
}

// loadRecord retrieves the persisted run record, honoring the clear-first
// option and discarding records from runs that already finished. Load
// failures degrade to a fresh run rather than aborting.
func (e *Engine) loadRecord() (RunRecord, bool) {
	if e.opts.ClearStateBeforeRun {
		if err := e.opts.StateStore.Clear(); err != nil {
			e.logger.Warn("Failed to clear run record", slog.Any("error", err))
		}
		return RunRecord{}, false
	}
	record, found, err := e.opts.StateStore.Load()
	if err != nil {
		e.logger.Warn("Failed to load run record, starting fresh", slog.Any("error", err))
		return RunRecord{}, false
	}
	if !found || record.Empty() {
		return RunRecord{}, false
	}
	if record.Complete() {
		// The previous pass ran to completion; its record only exists for
		// inspection and must not suppress a full re-check.
		if err := e.opts.StateStore.Clear(); err != nil {
			e.logger.Warn("Failed to clear completed run record", slog.Any("error", err))
		}
		return RunRecord{}, false
	}
	e.logger.Info("Resuming interrupted run",
		slog.Int("processedBefore", len(record.Processed)),
		slog.Int("errorsBefore", len(record.Errors)))
	return record, true
}

// persistRecord saves progress for paused and finished runs and clears it
// for cancelled ones.
func (e *Engine) persistRecord(phase RunPhase, state *RunState) error {
	switch phase {
	case RunCancelled:
		if err := e.opts.StateStore.Clear(); err != nil {
			return fmt.Errorf("%w: %v", ErrStatePersist, err)
		}
	case RunPaused, RunFinished:
		if err := e.opts.StateStore.Save(state.record()); err != nil {
			return fmt.Errorf("%w: %v", ErrStatePersist, err)
		}
	}
	return nil
}

func (e *Engine) buildReport(state *RunState, phase RunPhase, resumed bool, elapsed time.Duration) Report {
	progress := state.progress()
	return Report{
		Summary: ReportSummary{
			BookmarksPath:   e.opts.BookmarksPath,
			ProfileUsed:     e.opts.ProfileName,
			ConfigFilePath:  e.opts.ConfigFilePath,
			Phase:           phase,
			Resumed:         resumed,
			Total:           state.total,
			Ignored:         len(state.ignored),
			Processed:       state.processed,
			ErrorCount:      len(state.errors),
			SuccessCount:    len(state.successes),
			Percent:         progress.Percent,
			Concurrency:     e.opts.MaxConcurrentWorkers,
			DurationSeconds: elapsed.Seconds(),
			Timestamp:       time.Now().UTC(),
		},
		Errors:    append([]ErrorRecord(nil), state.errors...),
		Successes: append([]SuccessInfo(nil), state.successes...),
	}
}
