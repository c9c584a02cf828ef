// Package cli wires the validated configuration to the audit engine: it
// builds the concrete dependencies, picks the UI surface, runs the engine
// and renders the final report.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/linkmark/linkmark/internal/cli/hooks"
	"github.com/linkmark/linkmark/internal/cli/ui"
	"github.com/linkmark/linkmark/pkg/audit"
	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
	"github.com/linkmark/linkmark/pkg/audit/browser"
	"github.com/linkmark/linkmark/pkg/audit/store"
)

// Run orchestrates the main application logic after configuration loading.
// Cancelling ctx (the first interrupt signal) pauses the run and persists
// its progress.
func Run(ctx context.Context, opts audit.Options, logger *slog.Logger) error {
	fileStore, err := bookmarks.NewFileStore(opts.BookmarksPath, opts.Logger)
	if err != nil {
		logger.Error("Failed to load bookmarks file", slog.Any("error", err))
		return err
	}
	opts.Bookmarks = fileStore
	opts.StateStore = store.NewFileStateStore(opts.StatePath, opts.AppVersion, opts.Logger)
	opts.Contexts = browser.NewHTTPManager(opts.Logger, nil, browser.DefaultMaxSubResources)

	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	tuiActive := opts.TuiEnabled && isTTY

	var program *tea.Program
	var bar hooks.ProgressBar
	if tuiActive {
		model := ui.NewModel(opts.AppVersion)
		program = tea.NewProgram(&model, tea.WithOutput(os.Stderr))
		opts.EventHooks = hooks.NewCLIHooks(logger, true, opts.Verbose, &programAdapter{program: program}, nil)
	} else {
		if isTTY && !opts.Verbose {
			bar = newProgressBar()
		}
		opts.EventHooks = hooks.NewCLIHooks(logger, false, opts.Verbose, nil, bar)
	}

	engine, err := audit.NewEngine(opts)
	if err != nil {
		logger.Error("Failed to construct audit engine", slog.Any("error", err))
		return err
	}

	var report audit.Report
	var runErr error
	if tuiActive {
		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			report, runErr = engine.Run(ctx)
			program.Quit()
		}()
		if _, uiErr := program.Run(); uiErr != nil {
			logger.Error("TUI terminated abnormally", slog.Any("error", uiErr))
		}
		// The user quitting the TUI before the pass finished is a pause
		// request.
		if pauseErr := engine.Pause(); pauseErr != nil && !errors.Is(pauseErr, audit.ErrNotRunning) {
			logger.Warn("Failed to pause run", slog.Any("error", pauseErr))
		}
		<-runDone
	} else {
		report, runErr = engine.Run(ctx)
	}
	if runErr != nil {
		logger.Error("Validation run failed", slog.Any("error", runErr))
		return runErr
	}

	// Title rewrites and sort moves only exist in memory until persisted.
	if fileStore.Dirty() {
		if err := fileStore.Persist(); err != nil {
			logger.Error("Failed to write bookmarks file", slog.Any("error", err))
			return err
		}
		logger.Info("Bookmarks file updated", slog.String("path", opts.BookmarksPath))
	}

	return renderReport(os.Stdout, report, opts.OutputFormat)
}

// renderReport writes the final report in the configured format.
func renderReport(w io.Writer, report audit.Report, format audit.OutputFormat) error {
	switch format {
	case audit.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case audit.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	default:
		return renderTextReport(w, report)
	}
}

func renderTextReport(w io.Writer, report audit.Report) error {
	s := report.Summary
	fmt.Fprintf(w, "Run %s: %d checked of %d bookmarks (%d ignored), %d broken, %d%% complete in %.1fs\n",
		s.Phase, s.Processed, s.Total-s.Ignored, s.Ignored, s.ErrorCount, s.Percent, s.DurationSeconds)
	if s.Resumed {
		fmt.Fprintln(w, "Resumed from a previously interrupted run.")
	}
	if s.Phase == audit.RunPaused {
		fmt.Fprintln(w, "Progress saved; run again to resume.")
	}
	if len(report.Errors) > 0 {
		fmt.Fprintf(w, "\nBroken bookmarks:\n")
		for _, rec := range report.Errors {
			title := rec.Title
			if title == "" {
				title = rec.URL
			}
			location := rec.URL
			if rec.Path != "" {
				location = rec.Path + "  " + rec.URL
			}
			fmt.Fprintf(w, "  [%s] %s\n      %s\n", rec.Kind, title, location)
		}
	}
	return nil
}

// newProgressBar builds the non-TUI progress surface. The total is unknown
// until enumeration finishes, so the bar runs in spinner mode and counts
// processed bookmarks.
func newProgressBar() hooks.ProgressBar {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("checking bookmarks"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)
	return &barAdapter{bar: bar}
}

// programAdapter bridges the Bubble Tea program to the hooks.TUIProgram
// interface, whose Send takes interface{} rather than the named tea.Msg.
type programAdapter struct {
	program *tea.Program
}

func (a *programAdapter) Send(msg interface{}) { a.program.Send(msg) }

// barAdapter bridges the schollz progress bar to the hooks.ProgressBar
// interface.
type barAdapter struct {
	bar *progressbar.ProgressBar
}

func (a *barAdapter) Add(num int) error { return a.bar.Add(num) }

func (a *barAdapter) Describe(description string) error {
	a.bar.Describe(description)
	return nil
}

func (a *barAdapter) Close() error { return a.bar.Close() }
