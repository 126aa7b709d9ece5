package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// Store persists the agent's two documents: the single-slot network snapshot
// and the threat cache. Both are written atomically so a reader never
// observes a partial file.
type Store struct {
	statePath string
	cachePath string
	logger    *slog.Logger
}

// New constructs a Store over the configured paths.
func New(statePath, cachePath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{statePath: statePath, cachePath: cachePath, logger: logger}
}

// LoadState returns the previously persisted snapshot, or nil when no usable
// baseline exists. A missing or corrupt file is "no baseline", never an
// error: the first cycle after a restart must not raise anomalies.
func (s *Store) LoadState() *models.Snapshot {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state file unreadable, treating as no baseline", slog.Any("error", err))
		}
		return nil
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn("state file corrupt, treating as no baseline", slog.Any("error", err))
		return nil
	}
	return &snapshot
}

// SaveState overwrites the single snapshot slot.
func (s *Store) SaveState(snapshot models.Snapshot) error {
	if err := writeJSONAtomic(s.statePath, snapshot); err != nil {
		return utils.NewAppError("store.SaveState", "persist snapshot", err)
	}
	return nil
}

// LoadCache returns the persisted threat cache document, or nil when absent
// or unreadable.
func (s *Store) LoadCache() *models.CacheDocument {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache file unreadable", slog.Any("error", err))
		}
		return nil
	}

	var doc models.CacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("cache file corrupt", slog.Any("error", err))
		return nil
	}
	return &doc
}

// SaveCache overwrites the threat cache. Marshalling is deterministic, so
// saving an identical document produces byte-identical file content.
func (s *Store) SaveCache(doc models.CacheDocument) error {
	if err := writeJSONAtomic(s.cachePath, doc); err != nil {
		return utils.NewAppError("store.SaveCache", "persist threat cache", err)
	}
	return nil
}

// writeJSONAtomic marshals v and writes it via a temp file plus rename in the
// target directory, so concurrent readers see either the old or the new
// document in full.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
