package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrNodeNotFound is returned by mutation operations when no node with the
// given id exists in the loaded tree.
var ErrNodeNotFound = errors.New("bookmark node not found")

// ErrStoreLoad indicates the bookmark export file could not be read or decoded.
var ErrStoreLoad = errors.New("failed to load bookmark file")

// ErrStorePersist indicates the bookmark file could not be written back.
var ErrStorePersist = errors.New("failed to persist bookmark file")

// FileStore implements Store on top of a JSON bookmark export file.
// Mutations are applied in memory and flushed with Persist; Dirty reports
// whether unflushed mutations exist.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	root   *Node
	byID   map[string]*Node
	parent map[string]*Node
	dirty  bool
	logger *slog.Logger
}

// NewFileStore loads the bookmark tree from the given JSON file.
func NewFileStore(path string, loggerHandler slog.Handler) (*FileStore, error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "bookmarkStore"))

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Cannot read bookmark file", slog.String("path", path), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreLoad, path, err)
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		logger.Error("Cannot decode bookmark file", slog.String("path", path), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreLoad, path, err)
	}

	s := &FileStore{
		path:   path,
		root:   &root,
		byID:   make(map[string]*Node),
		parent: make(map[string]*Node),
		logger: logger,
	}
	s.index(&root, nil)
	logger.Debug("Bookmark tree loaded", slog.String("path", path), slog.Int("nodes", len(s.byID)))
	return s, nil
}

func (s *FileStore) index(n *Node, parent *Node) {
	if n.ID != "" {
		s.byID[n.ID] = n
		if parent != nil {
			s.parent[n.ID] = parent
			if n.ParentID == "" {
				n.ParentID = parent.ID
			}
		}
	}
	for _, c := range n.Children {
		s.index(c, n)
	}
}

// Tree implements Store.
func (s *FileStore) Tree() (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, nil
}

// UpdateTitle implements Store.
func (s *FileStore) UpdateTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.Title == title {
		return nil
	}
	n.Title = title
	s.dirty = true
	return nil
}

// UpdateURL implements Store.
func (s *FileStore) UpdateURL(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.URL = url
	s.dirty = true
	s.logger.Info("Bookmark updated", slog.String("id", id), slog.String("url", url))
	return nil
}

// Move implements Store. The index is clamped to the target's child count.
func (s *FileStore) Move(id, parentID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	target, ok := s.byID[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
	}
	if old := s.parent[id]; old != nil {
		old.Children = removeChild(old.Children, n)
	}
	if index < 0 {
		index = 0
	}
	if index > len(target.Children) {
		index = len(target.Children)
	}
	target.Children = append(target.Children[:index], append([]*Node{n}, target.Children[index:]...)...)
	s.parent[id] = target
	n.ParentID = target.ID
	s.dirty = true
	return nil
}

// Remove implements Store.
func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if p := s.parent[id]; p != nil {
		p.Children = removeChild(p.Children, n)
	}
	s.unindex(n)
	s.dirty = true
	s.logger.Info("Bookmark removed", slog.String("id", id))
	return nil
}

func (s *FileStore) unindex(n *Node) {
	delete(s.byID, n.ID)
	delete(s.parent, n.ID)
	for _, c := range n.Children {
		s.unindex(c)
	}
}

// Dirty reports whether mutations have been applied since the last Persist.
func (s *FileStore) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Persist writes the (possibly mutated) tree back to the source file using
// a temp-file-and-rename so a crash cannot truncate the export.
func (s *FileStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.root, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorePersist, err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorePersist, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrStorePersist, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrStorePersist, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrStorePersist, err)
	}
	s.dirty = false
	s.logger.Debug("Bookmark tree persisted", slog.String("path", s.path))
	return nil
}

func removeChild(children []*Node, n *Node) []*Node {
	for i, c := range children {
		if c == n {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}
