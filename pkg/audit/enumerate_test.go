package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
)

// titleStore records UpdateTitle calls; the other store operations are
// unused by the enumerator.
type titleStore struct {
	bookmarks.Store
	titles map[string]string
}

func (s *titleStore) UpdateTitle(id, title string) error {
	if s.titles == nil {
		s.titles = make(map[string]string)
	}
	s.titles[id] = title
	return nil
}

// recordingHooks collects hook calls for assertions inside the package.
type recordingHooks struct {
	NoOpHooks
	discovered []string
	skipped    []string
}

func (h *recordingHooks) OnItemDiscovered(item BookmarkItem) error {
	h.discovered = append(h.discovered, item.ID)
	return nil
}

func (h *recordingHooks) OnItemStatusUpdate(item BookmarkItem, status Status, _ string) error {
	if status == StatusSkipped {
		h.skipped = append(h.skipped, item.ID)
	}
	return nil
}

func folder(id, title string, children ...*bookmarks.Node) *bookmarks.Node {
	if children == nil {
		children = []*bookmarks.Node{}
	}
	n := &bookmarks.Node{ID: id, Title: title, Children: children}
	for _, c := range children {
		c.ParentID = id
	}
	return n
}

func leaf(id, title, url string) *bookmarks.Node {
	return &bookmarks.Node{ID: id, Title: title, URL: url}
}

func TestEnumerateDiscoversLeavesDepthFirst(t *testing.T) {
	root := folder("root", "",
		folder("menu", "Menu",
			leaf("b1", "One", "https://one.example.com"),
			folder("sub", "Sub",
				leaf("b2", "Two", "https://two.example.com"),
			),
		),
		leaf("b3", "Three", "http://three.example.com"),
	)
	hooks := &recordingHooks{}
	e := NewEnumerator(FilterPolicy{}, false, nil, nil, hooks, nil)

	result := e.Enumerate(root)

	require.Len(t, result.checkable, 3)
	assert.Equal(t, 3, result.total)
	assert.Equal(t, []string{"b1", "b2", "b3"}, hooks.discovered)
	assert.Equal(t, "menu", result.checkable[0].Path)
	assert.Equal(t, "menu/sub", result.checkable[1].Path)
	assert.Equal(t, "", result.checkable[2].Path)
}

func TestEnumerateSkipsNonHTTPSchemes(t *testing.T) {
	root := folder("root", "",
		leaf("b1", "App", "ftp://example.com/file"),
		leaf("b2", "Note", "place:sort=8"),
		leaf("b3", "Site", "https://example.com"),
	)
	e := NewEnumerator(FilterPolicy{}, false, nil, nil, nil, nil)

	result := e.Enumerate(root)

	require.Len(t, result.checkable, 1)
	assert.Equal(t, "b3", result.checkable[0].ID)
	// Non-http leaves do not even count toward the total.
	assert.Equal(t, 1, result.total)
}

func TestEnumerateAppliesFilterPolicy(t *testing.T) {
	root := folder("root", "",
		folder("menu", "Menu",
			folder("arch", "Archive",
				leaf("b1", "Old", "https://old.example.com"),
			),
			leaf("b2", "Local", "http://localhost:3000"),
			leaf("b3", "Kept", "https://kept.example.com"),
		),
	)
	policy := FilterPolicy{
		IgnoredDirs: []string{"archive"}, IgnoredDirsActive: true,
		IgnoredURLs: []string{"localhost"}, IgnoredURLsActive: true,
	}
	hooks := &recordingHooks{}
	e := NewEnumerator(policy, false, nil, nil, hooks, nil)

	result := e.Enumerate(root)

	require.Len(t, result.checkable, 1)
	assert.Equal(t, "b3", result.checkable[0].ID)
	assert.ElementsMatch(t, []string{"b1", "b2"}, result.ignored)
	assert.ElementsMatch(t, []string{"b1", "b2"}, hooks.skipped)
	assert.Equal(t, 3, result.total)
}

func TestEnumerateDetectsDuplicates(t *testing.T) {
	root := folder("root", "",
		leaf("b1", "First", "https://example.com"),
		leaf("b2", "Copy", "https://example.com"),
		leaf("b3", "Other", "https://other.example.com"),
	)
	e := NewEnumerator(FilterPolicy{}, false, nil, nil, nil, nil)

	result := e.Enumerate(root)

	require.Len(t, result.checkable, 2)
	require.Len(t, result.duplicates, 1)
	assert.Equal(t, "b2", result.duplicates[0].ID)
}

func TestEnumerateSkipSeedsDuplicateDetection(t *testing.T) {
	root := folder("root", "",
		leaf("b1", "First", "https://example.com"),
		leaf("b2", "Copy", "https://example.com"),
	)
	// b1 was processed in a previous segment of the run: it must not be
	// re-dispatched, but its URL still marks b2 as a duplicate.
	e := NewEnumerator(FilterPolicy{}, false, map[string]bool{"b1": true}, nil, nil, nil)

	result := e.Enumerate(root)

	assert.Empty(t, result.checkable)
	require.Len(t, result.duplicates, 1)
	assert.Equal(t, "b2", result.duplicates[0].ID)
	assert.Equal(t, 2, result.total)
}

func TestEnumerateLowercasesTitles(t *testing.T) {
	root := folder("root", "",
		leaf("b1", "Mixed Case Title", "https://example.com"),
		leaf("b2", "already lower", "https://other.example.com"),
	)
	store := &titleStore{}
	e := NewEnumerator(FilterPolicy{}, true, nil, store, nil, nil)

	result := e.Enumerate(root)

	require.Len(t, result.checkable, 2)
	assert.Equal(t, "mixed case title", result.checkable[0].Title)
	assert.Equal(t, map[string]string{"b1": "mixed case title"}, store.titles)
}

func TestEnumerateNilRoot(t *testing.T) {
	e := NewEnumerator(FilterPolicy{}, false, nil, nil, nil, nil)
	result := e.Enumerate(nil)
	assert.Empty(t, result.checkable)
	assert.Equal(t, 0, result.total)
}
