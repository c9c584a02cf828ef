package browser

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// ErrContextCreate indicates a worker context could not be opened for a URL.
var ErrContextCreate = errors.New("failed to create worker context")

const (
	// DefaultMaxSubResources bounds how many referenced resources a context
	// fetches while loading a page.
	DefaultMaxSubResources = 20
	// maxDocumentBytes bounds how much of the top-level document is parsed
	// for sub-resource references.
	maxDocumentBytes = 1 << 20
)

// HTTPManager implements ContextManager with plain HTTP loads. Each context
// fetches the top-level document, follows redirects while reporting them as
// redirect notices, extracts up to MaxSubResources script/image/stylesheet
// references and fetches those as sub-frame requests, then reports a
// "complete" navigation. Authentication challenges are auto-denied.
type HTTPManager struct {
	logger          *slog.Logger
	transport       http.RoundTripper
	maxSubResources int

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	favicons map[string]string

	subMu      sync.RWMutex
	subscriber chan<- Event
	detached   chan struct{}
}

// NewHTTPManager creates a manager using the given transport (nil for
// http.DefaultTransport).
func NewHTTPManager(loggerHandler slog.Handler, transport http.RoundTripper, maxSubResources int) *HTTPManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if maxSubResources <= 0 {
		maxSubResources = DefaultMaxSubResources
	}
	return &HTTPManager{
		logger:          slog.New(loggerHandler).With(slog.String("component", "httpContexts")),
		transport:       transport,
		maxSubResources: maxSubResources,
		cancels:         make(map[string]context.CancelFunc),
		favicons:        make(map[string]string),
	}
}

// Subscribe implements ContextManager.
func (m *HTTPManager) Subscribe(ch chan<- Event) {
	m.subMu.Lock()
	m.subscriber = ch
	m.detached = make(chan struct{})
	m.subMu.Unlock()
}

// Unsubscribe implements ContextManager. Load goroutines blocked on a full
// event channel are released; their pending events are dropped.
func (m *HTTPManager) Unsubscribe() {
	m.subMu.Lock()
	m.subscriber = nil
	if m.detached != nil {
		close(m.detached)
		m.detached = nil
	}
	m.subMu.Unlock()
}

func (m *HTTPManager) emit(ev Event) {
	m.subMu.RLock()
	ch, detached := m.subscriber, m.detached
	m.subMu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-detached:
	}
}

// Create implements ContextManager. The load runs on its own goroutine; the
// caller observes its outcome exclusively through events.
func (m *HTTPManager) Create(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: unsupported url %q", ErrContextCreate, rawURL)
	}

	id := uuid.NewString()
	loadCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()

	go m.load(loadCtx, id, parsed)
	m.logger.Debug("Context created", slog.String("contextID", id), slog.String("url", rawURL))
	return id, nil
}

// Remove implements ContextManager. The Removed event is emitted
// asynchronously and may overtake events still in flight from the load
// goroutine; consumers must treat those as stale.
func (m *HTTPManager) Remove(id string) {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	if ok {
		delete(m.cancels, id)
	}
	delete(m.favicons, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	go m.emit(Removed{ContextID: id})
}

// Favicon implements FaviconProvider.
func (m *HTTPManager) Favicon(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favicons[id]
}

// newClient builds a client whose redirect notices carry the given frame id,
// so a redirecting sub-resource is never mistaken for a page-level redirect.
func (m *HTTPManager) newClient(id string, frameID int) *http.Client {
	return &http.Client{
		Transport: m.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are a warning, not a failure: report the notice and
			// keep loading toward the final location.
			m.emit(NavigationError{
				ContextID: id,
				URL:       via[len(via)-1].URL.String(),
				FrameID:   frameID,
				ErrorCode: CodeRedirect,
			})
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}

func (m *HTTPManager) load(ctx context.Context, id string, target *url.URL) {
	client := m.newClient(id, TopFrameID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		m.emit(NavigationError{ContextID: id, URL: target.String(), FrameID: TopFrameID, ErrorCode: lifecycleCode(err)})
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		m.emit(NavigationError{ContextID: id, URL: target.String(), FrameID: TopFrameID, ErrorCode: lifecycleCode(err)})
		return
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL

	if challenged(resp) {
		m.logger.Warn("Canceling authentication for request", slog.String("url", finalURL.String()))
		m.emit(AuthRequired{URL: finalURL.String()})
	}
	m.emit(SubRequestCompleted{
		ContextID:  id,
		URL:        finalURL.String(),
		FrameID:    TopFrameID,
		StatusCode: resp.StatusCode,
		TopFrame:   true,
	})
	if resp.StatusCode >= 400 {
		// The classifier finalizes from the status; nothing more to load.
		return
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		refs, favicon := extractResources(io.LimitReader(resp.Body, maxDocumentBytes), finalURL, m.maxSubResources)
		if favicon != "" {
			m.mu.Lock()
			if _, live := m.cancels[id]; live {
				m.favicons[id] = favicon
			}
			m.mu.Unlock()
		}
		subClient := m.newClient(id, 1)
		for _, ref := range refs {
			if ctx.Err() != nil {
				return
			}
			m.fetchSubResource(ctx, subClient, id, ref)
		}
	}
	if ctx.Err() != nil {
		return
	}
	m.emit(NavigationCompleted{
		ContextID: id,
		URL:       finalURL.String(),
		FrameID:   TopFrameID,
		Status:    StatusComplete,
	})
}

func (m *HTTPManager) fetchSubResource(ctx context.Context, client *http.Client, id, ref string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		m.emit(NavigationError{ContextID: id, URL: ref, FrameID: 1, ErrorCode: lifecycleCode(err)})
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))
	_ = resp.Body.Close()
	m.emit(SubRequestCompleted{
		ContextID:  id,
		URL:        ref,
		FrameID:    1,
		StatusCode: resp.StatusCode,
		TopFrame:   false,
	})
}

// challenged reports whether the response is an auth challenge that a
// browser would answer with a credentials prompt.
func challenged(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return resp.Header.Get("WWW-Authenticate") != ""
	case http.StatusProxyAuthRequired:
		return resp.Header.Get("Proxy-Authenticate") != ""
	}
	return false
}

func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml")
}

// extractResources parses an HTML document and returns sub-resource URLs
// (scripts, images, stylesheets) resolved against base, plus the icon link
// if the document declares one.
func extractResources(r io.Reader, base *url.URL, limit int) (refs []string, favicon string) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, ""
	}
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img", "script":
				if src := attr(n, "src"); src != "" && len(refs) < limit {
					if resolved := resolveRef(base, src); resolved != "" {
						refs = append(refs, resolved)
					}
				}
			case "link":
				rel := strings.ToLower(attr(n, "rel"))
				href := attr(n, "href")
				if href == "" {
					break
				}
				if strings.Contains(rel, "icon") {
					if favicon == "" {
						favicon = resolveRef(base, href)
					}
				} else if strings.Contains(rel, "stylesheet") && len(refs) < limit {
					if resolved := resolveRef(base, href); resolved != "" {
						refs = append(refs, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return refs, favicon
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// lifecycleCode maps a transport error onto the lifecycle code taxonomy.
// Unrecognized failures map to 0, which the classifier logs as severe and
// leaves to the timeout path.
func lifecycleCode(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return CodeAborted
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF):
		return CodeConnectionInterrupted
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeServerNotFound
	}
	var certVerifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certVerifyErr) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) || errors.As(err, &certInvalid) {
		return CodeInvalidCertificate
	}
	return 0
}
