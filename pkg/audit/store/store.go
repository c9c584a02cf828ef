// Package store persists run records to the local filesystem so that a
// paused or interrupted validation run can be resumed by a later process.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/linkmark/linkmark/pkg/audit"
)

// StateFileName is the default name of the persisted run record.
const StateFileName = ".linkmark.state"

// StateSchemaVersion is the version of the state file structure. Records
// written under a different schema are invalidated on load.
const StateSchemaVersion = "1.0"

// stateFileHeader carries the compatibility metadata written alongside the
// record. A "dev" app version matches anything.
type stateFileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	AppVersion    string `json:"appVersion"`
}

type stateFile struct {
	Header stateFileHeader `json:"header"`
	Record audit.RunRecord `json:"record"`
}

// FileStateStore implements audit.StateStore on a single JSON file. Writes
// go through a temporary file and an atomic rename so an interrupted save
// never corrupts an existing record.
type FileStateStore struct {
	path       string
	appVersion string
	logger     *slog.Logger
}

// NewFileStateStore creates a store writing to path. appVersion is recorded
// in saved files and checked on load; empty means "dev".
func NewFileStateStore(path, appVersion string, loggerHandler slog.Handler) *FileStateStore {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if appVersion == "" {
		appVersion = "dev"
	}
	return &FileStateStore{
		path:       path,
		appVersion: appVersion,
		logger:     slog.New(loggerHandler).With(slog.String("component", "stateStore")),
	}
}

// Load reads the persisted record. A missing file, a corrupt file or a
// version mismatch all report "no record found" rather than an error, so a
// stale or damaged state file can never block a fresh run. Only critical
// I/O failures (permissions and the like) surface as errors.
func (s *FileStateStore) Load() (audit.RunRecord, bool, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("No run record found", slog.String("path", s.path))
			return audit.RunRecord{}, false, nil
		}
		return audit.RunRecord{}, false, fmt.Errorf("%w: open %q: %v", audit.ErrStateLoad, s.path, err)
	}
	defer file.Close()

	var data stateFile
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		s.logger.Warn("Run record is unreadable, discarding it",
			slog.String("path", s.path), slog.Any("error", err))
		return audit.RunRecord{}, false, nil
	}
	if data.Header.SchemaVersion != StateSchemaVersion {
		s.logger.Warn("Run record schema version mismatch, discarding it",
			slog.String("path", s.path),
			slog.String("fileSchema", data.Header.SchemaVersion),
			slog.String("expectedSchema", StateSchemaVersion))
		return audit.RunRecord{}, false, nil
	}
	if s.appVersion != "dev" && data.Header.AppVersion != "dev" && data.Header.AppVersion != s.appVersion {
		s.logger.Warn("Run record was written by a different app version, discarding it",
			slog.String("path", s.path),
			slog.String("fileVersion", data.Header.AppVersion),
			slog.String("expectedVersion", s.appVersion))
		return audit.RunRecord{}, false, nil
	}
	if data.Record.Processed == nil {
		data.Record.Processed = make(map[string]bool)
	}
	s.logger.Debug("Run record loaded",
		slog.String("path", s.path),
		slog.Int("processed", len(data.Record.Processed)))
	return data.Record, true, nil
}

// Save writes the record atomically.
func (s *FileStateStore) Save(record audit.RunRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: ensure directory %q: %v", audit.ErrStatePersist, dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temporary file in %q: %v", audit.ErrStatePersist, dir, err)
	}
	tempPath := tempFile.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tempFile.Close()
		}
		if _, statErr := os.Stat(tempPath); statErr == nil {
			_ = os.Remove(tempPath)
		}
	}()

	data := stateFile{
		Header: stateFileHeader{SchemaVersion: StateSchemaVersion, AppVersion: s.appVersion},
		Record: record,
	}
	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("%w: encode record to %q: %v", audit.ErrStatePersist, tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		closed = true
		return fmt.Errorf("%w: close %q: %v", audit.ErrStatePersist, tempPath, err)
	}
	closed = true

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("%w: rename %q to %q: %v", audit.ErrStatePersist, tempPath, s.path, err)
	}
	s.logger.Debug("Run record saved",
		slog.String("path", s.path),
		slog.Int("processed", len(record.Processed)),
		slog.Int("errors", len(record.Errors)))
	return nil
}

// Clear removes the record file. Clearing an absent record is a no-op.
func (s *FileStateStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %q: %v", audit.ErrStatePersist, s.path, err)
	}
	return nil
}
