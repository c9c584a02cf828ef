package bookmarks

import "strings"

// Node is a single entry of the bookmark hierarchy. A node carrying a URL is
// a leaf (a bookmark); a node carrying children is a container (a folder).
// Malformed nodes with neither are tolerated and skipped by consumers.
type Node struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parentId,omitempty"`
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	DateAdded int64   `json:"dateAdded,omitempty"` // milliseconds since epoch
	Children  []*Node `json:"children,omitempty"`
}

// IsLeaf reports whether the node is a bookmark entry.
func (n *Node) IsLeaf() bool { return n.URL != "" }

// IsContainer reports whether the node is a folder that can be traversed.
func (n *Node) IsContainer() bool { return n.URL == "" && n.Children != nil }

// UnfiledTitle is the label of the special container whose direct children
// may be ordered by creation time instead of title.
const UnfiledTitle = "unfiled"

// IsUnfiled reports whether the node is the special "unfiled" container.
// Both the Firefox-style GUID and a plain title match are recognized.
func (n *Node) IsUnfiled() bool {
	return n.ID == "unfiled_____" || strings.EqualFold(n.Title, UnfiledTitle)
}

// Store provides read access to a bookmark tree plus the mutation operations
// the audit engine needs: title rewriting, reordering, remediation.
// Implementations must tolerate unknown ids by returning an error rather
// than panicking.
type Store interface {
	// Tree returns the root of the hierarchy. The root itself is never a
	// checkable item; enumeration starts at its children.
	Tree() (*Node, error)
	// UpdateTitle rewrites the display label of the given node.
	UpdateTitle(id, title string) error
	// UpdateURL repoints a bookmark at a new location.
	UpdateURL(id, url string) error
	// Move places the node at the given index under the given parent.
	Move(id, parentID string, index int) error
	// Remove deletes the node (and any children) from the hierarchy.
	Remove(id string) error
}
