// Package testutil provides fake implementations of the audit library's
// collaborator interfaces. The fakes are deliberately deterministic so
// scheduler tests can script worker-context behavior per URL.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/linkmark/linkmark/pkg/audit"
	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
	"github.com/linkmark/linkmark/pkg/audit/browser"
)

// TreeStore is an in-memory bookmarks.Store backed by a prebuilt tree. It
// records mutations without applying structural moves, which is all the
// engine tests need.
type TreeStore struct {
	mu            sync.Mutex
	Root          *bookmarks.Node
	TitleUpdates  map[string]string
	URLUpdates    map[string]string
	MoveCalls     []string
	RemovedIDs    []string
	TreeErr       error
}

// NewTreeStore wraps the given root node.
func NewTreeStore(root *bookmarks.Node) *TreeStore {
	return &TreeStore{
		Root:         root,
		TitleUpdates: make(map[string]string),
		URLUpdates:   make(map[string]string),
	}
}

// Tree implements bookmarks.Store.
func (s *TreeStore) Tree() (*bookmarks.Node, error) {
	if s.TreeErr != nil {
		return nil, s.TreeErr
	}
	return s.Root, nil
}

// UpdateTitle implements bookmarks.Store.
func (s *TreeStore) UpdateTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TitleUpdates[id] = title
	return nil
}

// UpdateURL implements bookmarks.Store.
func (s *TreeStore) UpdateURL(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URLUpdates[id] = url
	return nil
}

// Move implements bookmarks.Store.
func (s *TreeStore) Move(id, parentID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MoveCalls = append(s.MoveCalls, fmt.Sprintf("%s->%s@%d", id, parentID, index))
	return nil
}

// Remove implements bookmarks.Store.
func (s *TreeStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RemovedIDs = append(s.RemovedIDs, id)
	return nil
}

// MemStateStore is an audit.StateStore kept in memory.
type MemStateStore struct {
	mu      sync.Mutex
	Record  audit.RunRecord
	Has     bool
	Saves   int
	Clears  int
	SaveErr error
	LoadErr error
}

// Save implements audit.StateStore.
func (s *MemStateStore) Save(record audit.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Record = record
	s.Has = true
	s.Saves++
	return nil
}

// Load implements audit.StateStore.
func (s *MemStateStore) Load() (audit.RunRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return audit.RunRecord{}, false, s.LoadErr
	}
	return s.Record, s.Has, nil
}

// Clear implements audit.StateStore.
func (s *MemStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Record = audit.RunRecord{}
	s.Has = false
	s.Clears++
	return nil
}

// StatusEvent is one recorded OnItemStatusUpdate call.
type StatusEvent struct {
	ID      string
	Status  audit.Status
	Message string
}

// RecordingHooks records every hook invocation. Safe for concurrent calls.
type RecordingHooks struct {
	mu           sync.Mutex
	Discovered   []string
	Statuses     []StatusEvent
	LastProgress audit.Progress
	Reports      []audit.Report

	// OnStatus, when set, is invoked (outside the lock) for every status
	// update. Used by pause tests to trigger control calls mid-run.
	OnStatus func(ev StatusEvent)
}

// OnItemDiscovered implements audit.Hooks.
func (h *RecordingHooks) OnItemDiscovered(item audit.BookmarkItem) error {
	h.mu.Lock()
	h.Discovered = append(h.Discovered, item.ID)
	h.mu.Unlock()
	return nil
}

// OnItemStatusUpdate implements audit.Hooks.
func (h *RecordingHooks) OnItemStatusUpdate(item audit.BookmarkItem, status audit.Status, message string) error {
	ev := StatusEvent{ID: item.ID, Status: status, Message: message}
	h.mu.Lock()
	h.Statuses = append(h.Statuses, ev)
	callback := h.OnStatus
	h.mu.Unlock()
	if callback != nil {
		callback(ev)
	}
	return nil
}

// OnProgress implements audit.Hooks.
func (h *RecordingHooks) OnProgress(p audit.Progress) error {
	h.mu.Lock()
	h.LastProgress = p
	h.mu.Unlock()
	return nil
}

// OnRunComplete implements audit.Hooks.
func (h *RecordingHooks) OnRunComplete(report audit.Report) error {
	h.mu.Lock()
	h.Reports = append(h.Reports, report)
	h.mu.Unlock()
	return nil
}

// StatusesFor returns the recorded statuses for one item id.
func (h *RecordingHooks) StatusesFor(id string) []audit.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []audit.Status
	for _, ev := range h.Statuses {
		if ev.ID == id {
			out = append(out, ev.Status)
		}
	}
	return out
}

// ContextScript drives one scripted worker context. It runs on its own
// goroutine; emit publishes events to the scheduler's subscriber channel.
type ContextScript func(contextID, url string, emit func(browser.Event))

// ScriptedContexts is a browser.ContextManager whose contexts behave
// according to a per-URL script. The default script completes the load
// immediately with one successful document request.
type ScriptedContexts struct {
	mu         sync.Mutex
	subscriber chan<- browser.Event
	scripts    map[string]ContextScript
	Default    ContextScript
	FailURLs   map[string]bool
	Favicons   map[string]string // url → favicon reported for its context

	urls      map[string]string // context id → url
	removed   map[string]bool
	nextID    int
	active    int
	MaxActive int
	Created   []string
}

// NewScriptedContexts builds a manager with the immediate-success default
// script.
func NewScriptedContexts() *ScriptedContexts {
	return &ScriptedContexts{
		scripts:  make(map[string]ContextScript),
		FailURLs: make(map[string]bool),
		Favicons: make(map[string]string),
		urls:     make(map[string]string),
		removed:  make(map[string]bool),
		Default: func(contextID, url string, emit func(browser.Event)) {
			emit(browser.SubRequestCompleted{ContextID: contextID, URL: url, FrameID: browser.TopFrameID, StatusCode: 200, TopFrame: true})
			emit(browser.NavigationCompleted{ContextID: contextID, URL: url, FrameID: browser.TopFrameID, Status: browser.StatusComplete})
		},
	}
}

// Script installs a per-URL behavior.
func (c *ScriptedContexts) Script(url string, script ContextScript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[url] = script
}

// Create implements browser.ContextManager.
func (c *ScriptedContexts) Create(url string) (string, error) {
	c.mu.Lock()
	if c.FailURLs[url] {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: scripted failure for %q", browser.ErrContextCreate, url)
	}
	c.nextID++
	id := fmt.Sprintf("ctx-%d", c.nextID)
	c.urls[id] = url
	c.Created = append(c.Created, url)
	c.active++
	if c.active > c.MaxActive {
		c.MaxActive = c.active
	}
	script, ok := c.scripts[url]
	if !ok {
		script = c.Default
	}
	c.mu.Unlock()

	go script(id, url, c.emit)
	return id, nil
}

// Remove implements browser.ContextManager. The Removed event is emitted at
// most once per context, asynchronously like a real host environment.
func (c *ScriptedContexts) Remove(id string) {
	c.mu.Lock()
	if _, known := c.urls[id]; !known || c.removed[id] {
		c.mu.Unlock()
		return
	}
	c.removed[id] = true
	c.active--
	c.mu.Unlock()
	go c.emit(browser.Removed{ContextID: id})
}

// Subscribe implements browser.ContextManager.
func (c *ScriptedContexts) Subscribe(ch chan<- browser.Event) {
	c.mu.Lock()
	c.subscriber = ch
	c.mu.Unlock()
}

// Unsubscribe implements browser.ContextManager.
func (c *ScriptedContexts) Unsubscribe() {
	c.mu.Lock()
	c.subscriber = nil
	c.mu.Unlock()
}

// Favicon implements browser.FaviconProvider.
func (c *ScriptedContexts) Favicon(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Favicons[c.urls[id]]
}

func (c *ScriptedContexts) emit(ev browser.Event) {
	c.mu.Lock()
	ch := c.subscriber
	c.mu.Unlock()
	if ch == nil {
		return
	}
	// A script may still emit after the scheduler stopped draining; give up
	// instead of blocking the goroutine forever.
	select {
	case ch <- ev:
	case <-time.After(2 * time.Second):
	}
}
