package audit

import "time"

// ErrorRecord is the durable, UI-independent projection of an item that
// reached an error verdict: the only representation retained past its
// terminal state.
type ErrorRecord struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	URL   string    `json:"url"`
	Path  string    `json:"path"`
	Kind  ErrorKind `json:"error"`
}

// SuccessInfo records a successfully validated item, including the icon the
// worker context discovered while loading it (when favicon capture is on).
type SuccessInfo struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	FaviconURL string        `json:"faviconUrl,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
}

// Report summarizes the result of a single validation run.
type Report struct {
	Summary   ReportSummary `json:"summary"`
	Errors    []ErrorRecord `json:"errors"`
	Successes []SuccessInfo `json:"successes,omitempty"`
}

// ReportSummary contains aggregated statistics for a run.
type ReportSummary struct {
	BookmarksPath   string    `json:"bookmarksPath,omitempty"`
	ProfileUsed     string    `json:"profileUsed,omitempty"`
	ConfigFilePath  string    `json:"configFilePath,omitempty"`
	Phase           RunPhase  `json:"phase"`
	Resumed         bool      `json:"resumed"`
	Total           int       `json:"total"`
	Ignored         int       `json:"ignored"`
	Processed       int       `json:"processed"`
	ErrorCount      int       `json:"errorCount"`
	SuccessCount    int       `json:"successCount"`
	Percent         int       `json:"percent"`
	Concurrency     int       `json:"concurrency"`
	DurationSeconds float64   `json:"durationSeconds"`
	Timestamp       time.Time `json:"timestamp"`
}
