package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmark/linkmark/internal/testutil"
	"github.com/linkmark/linkmark/pkg/audit"
	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
)

func childTitles(n *bookmarks.Node) []string {
	titles := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		titles = append(titles, c.Title)
	}
	return titles
}

func sortedStore(t *testing.T, root *bookmarks.Node) *bookmarks.FileStore {
	t.Helper()
	path := testutil.WriteBookmarksFile(t, t.TempDir(), root)
	store, err := bookmarks.NewFileStore(path, nil)
	require.NoError(t, err)
	return store
}

func TestSortContainersFirstThenAlphabetical(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "zeta", "https://z.example.com"),
		testutil.Folder("f1", "tools", testutil.Leaf("t1", "hammer", "https://t.example.com")),
		testutil.Leaf("b2", "Alpha", "https://a.example.com"),
		testutil.Folder("f2", "Books", testutil.Leaf("k1", "novel", "https://k.example.com")),
	)
	store := sortedStore(t, root)
	tree, err := store.Tree()
	require.NoError(t, err)

	sorter := audit.NewSorter(store, "en", false, nil)
	require.NoError(t, sorter.Sort(tree))

	assert.Equal(t, []string{"Books", "tools", "Alpha", "zeta"}, childTitles(tree))
}

func TestSortIsCaseInsensitive(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "banana", "https://b.example.com"),
		testutil.Leaf("b2", "Apple", "https://a.example.com"),
		testutil.Leaf("b3", "cherry", "https://c.example.com"),
	)
	store := sortedStore(t, root)
	tree, err := store.Tree()
	require.NoError(t, err)

	sorter := audit.NewSorter(store, "en", false, nil)
	require.NoError(t, sorter.Sort(tree))

	assert.Equal(t, []string{"Apple", "banana", "cherry"}, childTitles(tree))
}

func TestSortRecursesIntoSubfolders(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Folder("f1", "Folder",
			testutil.Leaf("b1", "delta", "https://d.example.com"),
			testutil.Leaf("b2", "alpha", "https://a.example.com"),
		),
	)
	store := sortedStore(t, root)
	tree, err := store.Tree()
	require.NoError(t, err)

	sorter := audit.NewSorter(store, "en", false, nil)
	require.NoError(t, sorter.Sort(tree))

	assert.Equal(t, []string{"alpha", "delta"}, childTitles(tree.Children[0]))
}

func TestSortUnfiledByDate(t *testing.T) {
	newest := testutil.Leaf("b1", "newest", "https://n.example.com")
	newest.DateAdded = 3000
	oldest := testutil.Leaf("b2", "oldest", "https://o.example.com")
	oldest.DateAdded = 1000
	middle := testutil.Leaf("b3", "middle", "https://m.example.com")
	middle.DateAdded = 2000

	root := testutil.Folder("root", "",
		testutil.Folder("unfiled_____", "Other Bookmarks", newest, oldest, middle),
	)
	store := sortedStore(t, root)
	tree, err := store.Tree()
	require.NoError(t, err)

	sorter := audit.NewSorter(store, "en", true, nil)
	require.NoError(t, sorter.Sort(tree))

	assert.Equal(t, []string{"oldest", "middle", "newest"}, childTitles(tree.Children[0]))
}

func TestSortBadLocaleFallsBack(t *testing.T) {
	root := testutil.Folder("root", "",
		testutil.Leaf("b1", "beta", "https://b.example.com"),
		testutil.Leaf("b2", "alpha", "https://a.example.com"),
	)
	store := sortedStore(t, root)
	tree, err := store.Tree()
	require.NoError(t, err)

	sorter := audit.NewSorter(store, "no-such-locale!", false, nil)
	require.NoError(t, sorter.Sort(tree))

	assert.Equal(t, []string{"alpha", "beta"}, childTitles(tree))
}

func TestSortNilRoot(t *testing.T) {
	sorter := audit.NewSorter(nil, "en", false, nil)
	assert.NoError(t, sorter.Sort(nil))
}
