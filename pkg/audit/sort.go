package audit

import (
	"io"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/linkmark/linkmark/pkg/audit/bookmarks"
)

// Sorter rewrites the stored order of the hierarchy: containers before
// leaves, ties broken alphabetically by title with a locale-aware
// comparison. Direct children of the special "unfiled" container may instead
// be ordered by creation time. Sorting mutates the hierarchy through the
// store's Move operation only; it never touches the checkable sequence
// already captured by enumeration.
type Sorter struct {
	store         bookmarks.Store
	collator      *collate.Collator
	unfiledByDate bool
	logger        *slog.Logger
}

// NewSorter creates a Sorter using the given BCP 47 locale for title
// comparison; an unparsable locale falls back to English.
func NewSorter(store bookmarks.Store, locale string, unfiledByDate bool, loggerHandler slog.Handler) *Sorter {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Sorter{
		store:         store,
		collator:      collate.New(tag, collate.IgnoreCase),
		unfiledByDate: unfiledByDate,
		logger:        slog.New(loggerHandler).With(slog.String("component", "sorter")),
	}
}

// Sort reorders every container of the tree rooted at root.
func (s *Sorter) Sort(root *bookmarks.Node) error {
	if root == nil {
		return nil
	}
	return s.sortContainer(root)
}

func (s *Sorter) sortContainer(node *bookmarks.Node) error {
	if !node.IsContainer() {
		return nil
	}
	ordered := make([]*bookmarks.Node, len(node.Children))
	copy(ordered, node.Children)

	if s.unfiledByDate && node.IsUnfiled() {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].DateAdded < ordered[j].DateAdded
		})
	} else {
		sort.SliceStable(ordered, func(i, j int) bool {
			li, lj := ordered[i], ordered[j]
			if li.IsContainer() != lj.IsContainer() {
				return li.IsContainer()
			}
			return s.collator.CompareString(li.Title, lj.Title) < 0
		})
	}

	for index, child := range ordered {
		if index < len(node.Children) && node.Children[index] == child {
			continue
		}
		if err := s.store.Move(child.ID, node.ID, index); err != nil {
			s.logger.Warn("Could not move node", slog.String("id", child.ID), slog.String("error", err.Error()))
		}
	}
	for _, child := range ordered {
		if err := s.sortContainer(child); err != nil {
			return err
		}
	}
	return nil
}
