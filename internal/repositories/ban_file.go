package repositories

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// banFile is the on-disk layout: {"users": {"<id>": {"endTime": <epoch ms>}}}
type banFile struct {
	Users map[string]banEntry `json:"users"`
}

type banEntry struct {
	EndTime int64 `json:"endTime"`
}

// FileBanStore keeps bans in a JSON file, rewritten in full on every mutation.
// The file is read on first use, so a mutation never overwrites records it has not seen.
type FileBanStore struct {
	mu     sync.Mutex
	path   string
	users  map[string]banEntry
	loaded bool
}

// NewFileBanStore creates a store backed by path
func NewFileBanStore(path string) *FileBanStore {
	return &FileBanStore{
		path:  path,
		users: make(map[string]banEntry),
	}
}

// LoadAll reads the file and returns every record. A missing file is an empty store;
// an unreadable or malformed one is ErrCorruptState.
func (s *FileBanStore) LoadAll(ctx context.Context) ([]models.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readLocked(); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// Put upserts the record and persists the whole store
func (s *FileBanStore) Put(ctx context.Context, subjectID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}

	previous, existed := s.users[subjectID]
	s.users[subjectID] = banEntry{EndTime: expiresAt.UnixMilli()}

	if err := s.flushLocked(); err != nil {
		if existed {
			s.users[subjectID] = previous
		} else {
			delete(s.users, subjectID)
		}
		return err
	}
	return nil
}

// Remove deletes the record if present and persists; absent records are not an error
func (s *FileBanStore) Remove(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}

	previous, existed := s.users[subjectID]
	if !existed {
		return nil
	}
	delete(s.users, subjectID)

	if err := s.flushLocked(); err != nil {
		s.users[subjectID] = previous
		return err
	}
	return nil
}

// Get returns the record for subjectID
func (s *FileBanStore) Get(ctx context.Context, subjectID string) (models.BanRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return models.BanRecord{}, false, err
	}

	entry, ok := s.users[subjectID]
	if !ok {
		return models.BanRecord{}, false, nil
	}
	return toRecord(subjectID, entry), true, nil
}

// IsActive reports whether a record exists with an expiry after now
func (s *FileBanStore) IsActive(ctx context.Context, subjectID string, now time.Time) (bool, error) {
	rec, ok, err := s.Get(ctx, subjectID)
	if err != nil || !ok {
		return false, err
	}
	return rec.IsActive(now), nil
}

func (s *FileBanStore) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}
	return s.readLocked()
}

// readLocked replaces the in-memory records with the file contents
func (s *FileBanStore) readLocked() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", s.path).Msg("Ban file not found, starting with no bans")
		s.users = make(map[string]banEntry)
	case err != nil:
		return errors.Wrapf(apperrors.Mark(err, apperrors.ErrCorruptState), "failed to read ban file %s", s.path)
	default:
		var parsed banFile
		if err := json.Unmarshal(data, &parsed); err != nil {
			return errors.Wrapf(apperrors.Mark(err, apperrors.ErrCorruptState), "failed to parse ban file %s", s.path)
		}
		if parsed.Users == nil {
			return errors.Wrapf(apperrors.ErrCorruptState, "ban file %s has no users object", s.path)
		}
		for id, entry := range parsed.Users {
			if id == "" || entry.EndTime <= 0 {
				return errors.Wrapf(apperrors.ErrCorruptState, "ban file %s has an invalid entry for %q", s.path, id)
			}
		}
		s.users = parsed.Users
	}
	s.loaded = true
	return nil
}

func (s *FileBanStore) snapshotLocked() []models.BanRecord {
	records := make([]models.BanRecord, 0, len(s.users))
	for id, entry := range s.users {
		records = append(records, toRecord(id, entry))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ExpiresAt.Before(records[j].ExpiresAt)
	})
	return records
}

// flushLocked writes to a temp file in the same directory and renames it over the target
func (s *FileBanStore) flushLocked() error {
	data, err := json.MarshalIndent(banFile{Users: s.users}, "", "  ")
	if err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to encode bans")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to create temp ban file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to write ban file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to sync ban file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to close ban file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to replace ban file")
	}
	return nil
}

func toRecord(subjectID string, entry banEntry) models.BanRecord {
	return models.BanRecord{
		SubjectID: subjectID,
		ExpiresAt: time.UnixMilli(entry.EndTime).UTC(),
	}
}
