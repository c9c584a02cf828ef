package audit

import (
	"log/slog"
	"time"

	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
	"github.com/linkmark/linkmark/pkg/audit/browser"
)

// Defaults for the validation run. These mirror the values used when setting
// up Viper defaults in the configuration loading process.
const (
	DefaultRequestTimeoutSeconds = 20
	DefaultTimeoutOverruleCount  = 5
	DefaultMaxConcurrentWorkers  = 5
	DefaultSuccessGraceDelay     = 2 * time.Second
	DefaultIgnoredDirsActive     = false
	DefaultIncludedDirsActive    = false
	DefaultIgnoredURLsActive     = true
	DefaultShowFavicons          = true
	DefaultToLowercaseTitles     = false
	DefaultSortEnabled           = false
	DefaultSortUnfiledByDate     = false
	DefaultClearStateBeforeRun   = false
	DefaultSortLocale            = "en"
)

// DefaultIgnoredDirs returns the default directory block-list.
func DefaultIgnoredDirs() []string { return []string{"archive", "local"} }

// DefaultIgnoredURLs returns the default URL block-list, covering local and
// private-network addresses that are pointless to validate from outside.
func DefaultIgnoredURLs() []string {
	return []string{"localhost", "192.168.", "172.16.", "10."}
}

// Hooks defines callbacks for status updates during a validation run.
// Implementations MUST be safe for calls from the scheduler goroutine.
type Hooks interface {
	OnItemDiscovered(item BookmarkItem) error
	OnItemStatusUpdate(item BookmarkItem, status Status, message string) error
	OnProgress(p Progress) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of Hooks.
type NoOpHooks struct{}

// OnItemDiscovered implements Hooks. It performs no action.
func (h *NoOpHooks) OnItemDiscovered(item BookmarkItem) error { return nil }

// OnItemStatusUpdate implements Hooks. It performs no action.
func (h *NoOpHooks) OnItemStatusUpdate(item BookmarkItem, status Status, message string) error {
	return nil
}

// OnProgress implements Hooks. It performs no action.
func (h *NoOpHooks) OnProgress(p Progress) error { return nil }

// OnRunComplete implements Hooks. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// RunRecord is the durable projection of a run persisted on pause and
// finish, and reloaded to offer resume.
type RunRecord struct {
	Total     int             `json:"total"`
	Ignored   []string        `json:"ignored"`
	Processed map[string]bool `json:"processed"`
	Errors    []ErrorRecord   `json:"errors"`
}

// Empty reports whether the record carries no progress worth resuming.
func (r RunRecord) Empty() bool { return len(r.Processed) == 0 }

// Complete reports whether the recorded run processed its whole checkable
// population.
func (r RunRecord) Complete() bool {
	checkable := r.Total - len(r.Ignored)
	return checkable > 0 && len(r.Processed) >= checkable
}

// StateStore persists run records across pause/resume.
type StateStore interface {
	// Save writes the record to durable storage.
	Save(record RunRecord) error
	// Load returns the persisted record and whether one was found.
	Load() (RunRecord, bool, error)
	// Clear removes any persisted record.
	Clear() error
}

// NoOpStateStore is a StateStore that persists nothing. Used when pause and
// resume across processes is not needed.
type NoOpStateStore struct{}

// Save implements StateStore, performs no action.
func (s *NoOpStateStore) Save(record RunRecord) error { return nil }

// Load implements StateStore, always reports no record.
func (s *NoOpStateStore) Load() (RunRecord, bool, error) { return RunRecord{}, false, nil }

// Clear implements StateStore, performs no action.
func (s *NoOpStateStore) Clear() error { return nil }

// Options holds all configuration for a validation run. The struct is
// treated as immutable once the engine is constructed.
type Options struct {
	// --- Core paths ---
	BookmarksPath string `mapstructure:"bookmarks"` // Source bookmark export (informational in the library)
	StatePath     string `mapstructure:"stateFile"` // Resolved path of the persisted run record

	// --- Application info ---
	AppVersion     string `mapstructure:"-"` // Used for run-record compatibility checks
	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`

	// --- Run behavior ---
	RequestTimeoutSeconds int  `mapstructure:"requestTimeoutSeconds"`
	TimeoutOverruleCount  int  `mapstructure:"timeoutOverruleCount"`
	MaxConcurrentWorkers  int  `mapstructure:"maxConcurrentWorkers"`
	ClearStateBeforeRun   bool `mapstructure:"clearStateBeforeRun"`

	// --- Filtering policy ---
	IgnoredDirs        []string `mapstructure:"ignoredDirs"`
	IgnoredDirsActive  bool     `mapstructure:"ignoredDirsActive"`
	IncludedDirs       []string `mapstructure:"includedDirs"`
	IncludedDirsActive bool     `mapstructure:"includedDirsActive"`
	IgnoredURLs        []string `mapstructure:"ignoredUrls"`
	IgnoredURLsActive  bool     `mapstructure:"ignoredUrlsActive"`

	// --- Ingestion policies ---
	ShowFavicons      bool   `mapstructure:"showFavicons"`
	ToLowercaseTitles bool   `mapstructure:"toLowercaseTitles"`
	SortEnabled       bool   `mapstructure:"sortEnabled"`
	SortUnfiledByDate bool   `mapstructure:"sortUnfiledByDate"`
	SortLocale        string `mapstructure:"sortLocale"`

	// --- CLI presentation (ignored by the library) ---
	Verbose      bool         `mapstructure:"verbose"`
	TuiEnabled   bool         `mapstructure:"tuiEnabled"`
	OutputFormat OutputFormat `mapstructure:"outputFormat"`

	// --- Derived ---
	RequestTimeout    time.Duration `mapstructure:"-"`
	SuccessGraceDelay time.Duration `mapstructure:"-"`

	// --- Injected dependencies ---
	EventHooks Hooks                  `mapstructure:"-"` // Defaults to NoOpHooks
	Logger     slog.Handler           `mapstructure:"-"` // Required
	Contexts   browser.ContextManager `mapstructure:"-"` // Defaults to browser.HTTPManager
	Bookmarks  bookmarks.Store        `mapstructure:"-"` // Required
	StateStore StateStore             `mapstructure:"-"` // Defaults to NoOpStateStore
}

// FilterPolicy derives the filter value from the configured lists.
func (o *Options) FilterPolicy() FilterPolicy {
	return FilterPolicy{
		IgnoredDirs:        o.IgnoredDirs,
		IgnoredDirsActive:  o.IgnoredDirsActive,
		IncludedDirs:       o.IncludedDirs,
		IncludedDirsActive: o.IncludedDirsActive,
		IgnoredURLs:        o.IgnoredURLs,
		IgnoredURLsActive:  o.IgnoredURLsActive,
	}
}
