// Package browser models the worker-context collaborator of the audit
// engine: an isolated, disposable execution environment that loads one URL
// and reports lifecycle and network events, modeled on a browser tab.
package browser

// Lifecycle error codes reported through NavigationError events. The numeric
// values are the codes emitted by the host environment and are matched
// bit-exact by the outcome classifier.
const (
	CodeServerNotFound        uint32 = 2152398878
	CodeConnectionRefused     uint32 = 2152398861
	CodeInvalidCertificate    uint32 = 2153394164
	CodeRedirect              uint32 = 2152398850
	CodeAborted               uint32 = 2147500036
	CodeConnectionInterrupted uint32 = 2152398919
)

// StatusComplete is the load status a context reports once its top-level
// frame has finished loading.
const StatusComplete = "complete"

// TopFrameID identifies the top-level frame of a context. Sub-resource
// events carry a non-zero frame id.
const TopFrameID = 0

// Event is a lifecycle or network signal scoped to a worker context.
// Consumers must treat events for unknown context ids as stale and ignore
// them; delivery order across event kinds is not guaranteed.
type Event interface{ event() }

// Removed is the terminal event for a context: its slot is free.
type Removed struct {
	ContextID string
}

// NavigationCompleted signals that a frame of the context finished loading.
type NavigationCompleted struct {
	ContextID string
	URL       string
	FrameID   int
	Status    string
}

// NavigationError signals a low-level load failure, carrying one of the
// lifecycle codes above (or an unknown code for unclassified failures).
type NavigationError struct {
	ContextID string
	URL       string
	FrameID   int
	ErrorCode uint32
}

// SubRequestCompleted signals an HTTP exchange finished inside the context.
// TopFrame marks the request for the document itself rather than one of its
// sub-resources.
type SubRequestCompleted struct {
	ContextID  string
	URL        string
	FrameID    int
	StatusCode int
	TopFrame   bool
}

// AuthRequired signals that a load hit an authentication challenge which was
// auto-denied. The context id may not be known yet at emission time, so the
// event is keyed by URL only.
type AuthRequired struct {
	URL string
}

func (Removed) event()             {}
func (NavigationCompleted) event() {}
func (NavigationError) event()     {}
func (SubRequestCompleted) event() {}
func (AuthRequired) event()        {}

// ContextManager is the capability the scheduler needs from the host: open a
// context for a URL, discard it again, and observe its events. Subscription
// is explicit and must be released with Unsubscribe before the subscriber's
// channel is abandoned.
type ContextManager interface {
	// Create opens a worker context loading the given URL and returns its id.
	Create(url string) (string, error)
	// Remove discards the context. Removing an unknown id is a no-op; a
	// Removed event is emitted at most once per context.
	Remove(id string)
	// Subscribe routes all subsequent events into ch. The channel should be
	// buffered; events are dropped when no subscriber is registered.
	Subscribe(ch chan<- Event)
	// Unsubscribe detaches the current subscriber.
	Unsubscribe()
}

// FaviconProvider is an optional capability of a ContextManager: report the
// icon discovered while loading a context, if any.
type FaviconProvider interface {
	Favicon(contextID string) string
}
