// Package hooks bridges audit engine events to the CLI's UI layer: the
// Bubble Tea TUI when it is active, the progress bar or structured logs
// otherwise.
package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/linkmark/linkmark/pkg/audit"
)

// TUI message structs. The ui package's model consumes these.

// ItemDiscoveredMsg signals that the enumerator found a checkable bookmark.
type ItemDiscoveredMsg struct{ Item audit.BookmarkItem }

// ItemStatusUpdateMsg signals a change in a bookmark's validation status.
type ItemStatusUpdateMsg struct {
	Item    audit.BookmarkItem
	Status  audit.Status
	Message string
}

// ProgressMsg carries a fresh progress snapshot.
type ProgressMsg struct{ Progress audit.Progress }

// RunCompleteMsg signals the completion of the validation run.
type RunCompleteMsg struct{ Report audit.Report }

// TUIProgram is the interface needed to interact with the Bubble Tea
// program.
type TUIProgram interface {
	Send(msg interface{})
}

// ProgressBar is the interface needed to interact with the progress bar.
type ProgressBar interface {
	Add(num int) error
	Describe(description string) error
	Close() error
}

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg interface{}) {}

// NoOpProgressBar provides a default null implementation.
type NoOpProgressBar struct{}

// Add implements ProgressBar.
func (n *NoOpProgressBar) Add(num int) error { return nil }

// Describe implements ProgressBar.
func (n *NoOpProgressBar) Describe(description string) error { return nil }

// Close implements ProgressBar.
func (n *NoOpProgressBar) Close() error { return nil }

// CLIHooks implements audit.Hooks for the command-line frontend.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar
	mu             sync.Mutex // protects progressBar
	lastProcessed  int
}

// NewCLIHooks creates the hook bridge. Pass nil for tuiProg or progBar when
// not applicable; NoOp versions are substituted.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) audit.Hooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	if progBar == nil {
		progBar = &NoOpProgressBar{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
	}
}

// OnItemDiscovered handles the event when the enumerator finds a checkable
// bookmark.
func (h *CLIHooks) OnItemDiscovered(item audit.BookmarkItem) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ItemDiscoveredMsg{Item: item})
	} else if h.verboseEnabled {
		h.logger.Debug("Bookmark discovered",
			slog.String("id", item.ID),
			slog.String("path", item.Path),
			slog.String("url", item.URL))
	}
	return nil
}

// OnItemStatusUpdate handles per-bookmark status changes.
func (h *CLIHooks) OnItemStatusUpdate(item audit.BookmarkItem, status audit.Status, message string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ItemStatusUpdateMsg{Item: item, Status: status, Message: message})
		return nil
	}

	if h.verboseEnabled {
		logLevel := slog.LevelDebug
		logMsg := "Bookmark status updated"
		attrs := []any{
			slog.String("id", item.ID),
			slog.String("url", item.URL),
			slog.String("status", string(status)),
		}
		if message != "" {
			logKey := "message"
			if status == audit.StatusFailed {
				logKey = "error"
			}
			attrs = append(attrs, slog.String(logKey, message))
		}
		switch status {
		case audit.StatusSuccess, audit.StatusSkipped:
			logLevel = slog.LevelInfo
		case audit.StatusFailed:
			logLevel = slog.LevelError
			logMsg = "Bookmark check failed"
		}
		h.logger.Log(nil, logLevel, logMsg, attrs...)
		return nil
	}

	// Progress bar mode still reports failures on the log.
	if status == audit.StatusFailed {
		h.logger.Error("Bookmark check failed",
			slog.String("url", item.URL),
			slog.String("error", message))
	}
	return nil
}

// OnProgress advances the progress bar (or relays the snapshot to the TUI).
func (h *CLIHooks) OnProgress(p audit.Progress) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ProgressMsg{Progress: p})
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if delta := p.Processed - h.lastProcessed; delta > 0 {
		_ = h.progressBar.Add(delta)
		h.lastProcessed = p.Processed
	}
	return nil
}

// OnRunComplete finishes the active UI surface; the final report rendering
// is handled by the CLI mainline.
func (h *CLIHooks) OnRunComplete(report audit.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	h.mu.Lock()
	_ = h.progressBar.Close()
	h.mu.Unlock()
	// Keep the shell prompt off the bar's final line.
	_, _ = fmt.Fprintf(os.Stderr, "\n")
	return nil
}
