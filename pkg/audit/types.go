package audit

// ErrorKind is the closed taxonomy of terminal outcomes other than success.
type ErrorKind string

// Custom kinds decided by the engine itself.
const (
	KindDuplicate ErrorKind = "duplicate"
	KindTimeout   ErrorKind = "timeout"
)

// Kinds derived from HTTP responses on the top-level frame.
const (
	KindUnspecified      ErrorKind = "unspecified_40x/50x"
	KindResourceNotFound ErrorKind = "resource_not_found"
	KindAuthRequired     ErrorKind = "authentication_required"
)

// Kinds derived from navigation lifecycle errors. KindRedirect is a warning,
// not a finalizing error: the context keeps loading.
const (
	KindServerNotFound        ErrorKind = "server_not_found"
	KindConnectionRefused     ErrorKind = "connection_refused"
	KindInvalidCertificate    ErrorKind = "invalid_certificate"
	KindRedirect              ErrorKind = "redirect"
	KindAborted               ErrorKind = "aborted"
	KindConnectionInterrupted ErrorKind = "connection_interrupted"
)

// ItemPhase is the position of an item in its lifecycle.
type ItemPhase int

const (
	PhasePending ItemPhase = iota
	PhaseInFlight
	PhaseSuccess
	PhaseError
)

// ItemState is the tagged per-item state: the phase, plus the error kind
// when the phase is PhaseError.
type ItemState struct {
	Phase ItemPhase
	Kind  ErrorKind
}

// Finalized reports whether the item reached a terminal verdict.
func (s ItemState) Finalized() bool {
	return s.Phase == PhaseSuccess || s.Phase == PhaseError
}

// RunPhase describes the state of a validation pass as a whole.
type RunPhase string

const (
	RunIdle      RunPhase = "idle"
	RunActive    RunPhase = "active"
	RunPaused    RunPhase = "paused"
	RunFinished  RunPhase = "finished"
	RunCancelled RunPhase = "cancelled"
)

// Status is the per-item progress state reported through Hooks.
type Status string

const (
	StatusPending  Status = "pending"
	StatusChecking Status = "checking"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// OutputFormat selects the rendering of the final report.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// BookmarkItem is a single checkable entry produced by enumeration. It is
// never mutated after creation; once a verdict is reached it survives only
// as an ErrorRecord or SuccessInfo projection.
type BookmarkItem struct {
	ID        string
	URL       string
	Title     string
	Path      string
	ParentID  string
	DateAdded int64
}
