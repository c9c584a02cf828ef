package audit

import "errors"

// Sentinel errors returned by the engine. Callers can test against these
// with errors.Is.
var (
	// ErrConfigValidation indicates the provided Options failed validation
	// before a run could start.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrSourceLoad indicates the bookmark hierarchy could not be read.
	ErrSourceLoad = errors.New("failed to load bookmark hierarchy")

	// ErrStateLoad indicates a persisted run record could not be loaded.
	// Treated as "no record" unless the failure is critical I/O.
	ErrStateLoad = errors.New("failed to load run record")

	// ErrStatePersist indicates the run record could not be written on
	// pause or finish.
	ErrStatePersist = errors.New("failed to persist run record")

	// ErrRunActive indicates Run was called while a pass is in progress.
	ErrRunActive = errors.New("a validation run is already active")

	// ErrNotRunning indicates Pause or Cancel was called with no active run.
	ErrNotRunning = errors.New("no validation run is active")
)
