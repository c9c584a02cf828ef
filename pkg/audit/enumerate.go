package audit

import (
	"io"
	"log/slog"
	"strings"

	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
)

// enumeration is the outcome of one traversal of the bookmark hierarchy.
type enumeration struct {
	checkable  []BookmarkItem // discovery order, ready for the pending queue
	duplicates []BookmarkItem // second and later discoveries of a URL
	ignored    []string       // ids excluded by policy
	seenURLs   map[string]struct{}
	total      int // checkable leaves discovered, before filtering
}

// Enumerator walks the bookmark hierarchy, applies the filter policy,
// detects duplicates and optionally rewrites titles to lowercase through the
// hierarchy store.
type Enumerator struct {
	policy    FilterPolicy
	lowercase bool
	skip      map[string]bool // ids already processed in a prior run segment
	store     bookmarks.Store
	hooks     Hooks
	logger    *slog.Logger
}

// NewEnumerator creates an Enumerator. skip may be nil; items whose id is in
// skip are counted but neither re-dispatched nor re-classified.
func NewEnumerator(policy FilterPolicy, lowercase bool, skip map[string]bool, store bookmarks.Store, hooks Hooks, loggerHandler slog.Handler) *Enumerator {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	return &Enumerator{
		policy:    policy,
		lowercase: lowercase,
		skip:      skip,
		store:     store,
		hooks:     hooks,
		logger:    slog.New(loggerHandler).With(slog.String("component", "enumerator")),
	}
}

// Enumerate traverses the hierarchy depth-first starting at the root's
// children. Malformed nodes are skipped, never fatal.
func (e *Enumerator) Enumerate(root *bookmarks.Node) enumeration {
	result := enumeration{seenURLs: make(map[string]struct{})}
	if root == nil {
		return result
	}
	e.walk(root, "/", &result)
	e.logger.Debug("Enumeration complete",
		slog.Int("total", result.total),
		slog.Int("checkable", len(result.checkable)),
		slog.Int("ignored", len(result.ignored)),
		slog.Int("duplicates", len(result.duplicates)))
	return result
}

func (e *Enumerator) walk(node *bookmarks.Node, path string, result *enumeration) {
	if node == nil {
		return
	}
	if node.IsLeaf() {
		if !checkableURL(node.URL) {
			return
		}
		// Statistics must count ignored items too.
		result.total++

		item := BookmarkItem{
			ID:        node.ID,
			URL:       node.URL,
			Title:     node.Title,
			Path:      normalizePath(path),
			ParentID:  node.ParentID,
			DateAdded: node.DateAdded,
		}
		if e.policy.Excluded(item.Path, item.URL) {
			result.ignored = append(result.ignored, node.ID)
			_ = e.hooks.OnItemStatusUpdate(item, StatusSkipped, "excluded by policy")
			return
		}
		if e.lowercase {
			lowered := strings.ToLower(node.Title)
			if lowered != node.Title && e.store != nil {
				if err := e.store.UpdateTitle(node.ID, lowered); err != nil {
					e.logger.Warn("Could not lowercase title", slog.String("id", node.ID), slog.String("error", err.Error()))
				}
			}
			item.Title = lowered
		}
		if e.skip[node.ID] {
			// Processed in a previous segment of this run. Its URL still
			// participates in duplicate detection so later copies keep
			// classifying as duplicates after a resume.
			result.seenURLs[item.URL] = struct{}{}
			return
		}
		if _, dup := result.seenURLs[item.URL]; dup {
			result.duplicates = append(result.duplicates, item)
			return
		}
		result.seenURLs[item.URL] = struct{}{}
		result.checkable = append(result.checkable, item)
		_ = e.hooks.OnItemDiscovered(item)
		return
	}
	if node.IsContainer() {
		// Recurse even into excluded folders so ignored/total statistics
		// stay accurate for nested content.
		childPath := path + node.Title + "/"
		for _, child := range node.Children {
			e.walk(child, childPath, result)
		}
	}
	// Neither a valid leaf nor a container: skip without failing.
}

// checkableURL reports whether the URL uses an http-like scheme.
func checkableURL(url string) bool { return strings.HasPrefix(url, "http") }

// normalizePath strips the leading double separator the root contributes and
// the trailing separator, then case-folds. Used only for policy matching.
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "//")
	path = strings.TrimSuffix(path, "/")
	return strings.ToLower(path)
}
