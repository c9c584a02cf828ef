package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
)

// Folder builds a container node and wires the children's parent ids.
func Folder(id, title string, children ...*bookmarks.Node) *bookmarks.Node {
	if children == nil {
		children = []*bookmarks.Node{}
	}
	node := &bookmarks.Node{ID: id, Title: title, Children: children}
	for _, child := range children {
		child.ParentID = id
	}
	return node
}

// Leaf builds a bookmark node.
func Leaf(id, title, url string) *bookmarks.Node {
	return &bookmarks.Node{ID: id, Title: title, URL: url}
}

// WriteBookmarksFile marshals the tree into a JSON file under dir and
// returns its path.
func WriteBookmarksFile(t *testing.T, dir string, root *bookmarks.Node) string {
	t.Helper()
	data, err := json.MarshalIndent(root, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "bookmarks.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
