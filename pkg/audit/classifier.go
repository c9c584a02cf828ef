package audit

import "github.com/linkmark/linkmark/pkg/audit/browser"

// outcome is the classifier's answer for a single event: either no verdict
// yet, or a terminal success/error verdict for the owning context.
type outcome struct {
	verdict bool
	success bool
	kind    ErrorKind
}

func noVerdict() outcome                { return outcome{} }
func successVerdict() outcome           { return outcome{verdict: true, success: true} }
func errorVerdict(kind ErrorKind) outcome { return outcome{verdict: true, kind: kind} }

// contextTrack accumulates per-context observations that feed a later
// verdict, most importantly the count of successful HTTP exchanges used to
// overrule a timeout.
type contextTrack struct {
	okRequests int
}

// classifier turns raw context events into terminal verdicts. It holds no
// item identity; the scheduler resolves context ids to items. URL-keyed
// signals that arrive before their context is resolvable are parked in
// pendingByURL and joined in when the navigation for that URL completes.
type classifier struct {
	timeoutOverrule int
	tracks          map[string]*contextTrack
	pendingByURL    map[string]ErrorKind
}

func newClassifier(timeoutOverrule int) *classifier {
	return &classifier{
		timeoutOverrule: timeoutOverrule,
		tracks:          make(map[string]*contextTrack),
		pendingByURL:    make(map[string]ErrorKind),
	}
}

// observe registers a newly dispatched context.
func (c *classifier) observe(contextID string) {
	c.tracks[contextID] = &contextTrack{}
}

// forget drops all tracking for a removed context.
func (c *classifier) forget(contextID string) {
	delete(c.tracks, contextID)
}

// parkURLError records a URL-keyed error signal whose context could not be
// resolved yet. It is consumed when the load of that URL completes.
func (c *classifier) parkURLError(url string, kind ErrorKind) {
	c.pendingByURL[url] = kind
}

// navigationCompleted classifies a frame-load completion. Only the top-level
// frame with a complete status yields a verdict; a parked URL error for the
// loaded URL takes precedence over the successful load.
func (c *classifier) navigationCompleted(ev browser.NavigationCompleted) outcome {
	if ev.FrameID != browser.TopFrameID || ev.Status != browser.StatusComplete {
		return noVerdict()
	}
	if kind, ok := c.pendingByURL[ev.URL]; ok {
		delete(c.pendingByURL, ev.URL)
		return errorVerdict(kind)
	}
	return successVerdict()
}

// navigationError classifies a lifecycle failure. Sub-frame failures never
// condemn the context, a redirect is a notice rather than a verdict, and an
// unrecognized code leaves the item to its own timeout.
func (c *classifier) navigationError(ev browser.NavigationError) outcome {
	if ev.FrameID != browser.TopFrameID {
		return noVerdict()
	}
	switch ev.ErrorCode {
	case browser.CodeRedirect:
		return noVerdict()
	case browser.CodeServerNotFound:
		return errorVerdict(KindServerNotFound)
	case browser.CodeConnectionRefused:
		return errorVerdict(KindConnectionRefused)
	case browser.CodeInvalidCertificate:
		return errorVerdict(KindInvalidCertificate)
	case browser.CodeAborted:
		return errorVerdict(KindAborted)
	case browser.CodeConnectionInterrupted:
		return errorVerdict(KindConnectionInterrupted)
	default:
		return noVerdict()
	}
}

// knownCode reports whether the lifecycle code belongs to the mapped table.
func knownCode(code uint32) bool {
	switch code {
	case browser.CodeRedirect, browser.CodeServerNotFound, browser.CodeConnectionRefused,
		browser.CodeInvalidCertificate, browser.CodeAborted, browser.CodeConnectionInterrupted:
		return true
	}
	return false
}

// subRequestCompleted classifies an HTTP exchange inside the context.
// Successful exchanges feed the timeout-overrule counter; an error status on
// the document request itself is terminal.
func (c *classifier) subRequestCompleted(ev browser.SubRequestCompleted) outcome {
	if ev.StatusCode < 400 {
		if ev.StatusCode >= 200 && ev.StatusCode < 300 {
			if track, ok := c.tracks[ev.ContextID]; ok {
				track.okRequests++
			}
		}
		return noVerdict()
	}
	if !ev.TopFrame {
		return noVerdict()
	}
	switch ev.StatusCode {
	case 401, 403, 405, 407:
		return errorVerdict(KindAuthRequired)
	case 404:
		return errorVerdict(KindResourceNotFound)
	default:
		return errorVerdict(KindUnspecified)
	}
}

// timeout classifies an expired request timer. A context that has already
// performed strictly more successful exchanges than the overrule threshold
// is deemed alive and passes; otherwise the item times out.
func (c *classifier) timeout(contextID string) outcome {
	if track, ok := c.tracks[contextID]; ok && track.okRequests > c.timeoutOverrule {
		return successVerdict()
	}
	return errorVerdict(KindTimeout)
}
