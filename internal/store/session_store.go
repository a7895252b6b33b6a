package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/model"
)

// SessionStore persists one SessionSnapshot per exam id. Saves are
// whole-snapshot and last-writer-wins: callers read-modify-write their
// in-memory snapshot and hand the full thing back, never a partial
// patch, so a save racing an autosave tick cannot clobber fields.
type SessionStore struct {
	kv  KeyValueStore
	log zerolog.Logger
}

// NewSessionStore wraps a KeyValueStore.
func NewSessionStore(kv KeyValueStore, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		kv:  kv,
		log: log.With().Str("component", "session_store").Logger(),
	}
}

// Load returns the persisted snapshot for the exam, or (nil, false) when
// none exists. Corrupt entries and snapshots written under a different
// schema version are discarded, not surfaced: resuming falls back to a
// fresh session rather than failing the load.
func (s *SessionStore) Load(examID string) (*model.SessionSnapshot, bool) {
	key := config.StorageKey.ExamSessionKey(examID)

	data, err := s.kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Snapshot read failed, starting fresh")
		return nil, false
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Snapshot corrupt, starting fresh")
		return nil, false
	}
	if snap.SchemaVersion != model.SnapshotSchemaVersion {
		s.log.Warn().
			Int("found", snap.SchemaVersion).
			Int("want", model.SnapshotSchemaVersion).
			Msg("Snapshot schema version mismatch, starting fresh")
		return nil, false
	}

	snap.EnsureMaps()
	return &snap, true
}

// Save persists the snapshot, stamping LastPersistedAt. The timestamp is
// supplied by the caller's clock so tests stay deterministic.
func (s *SessionStore) Save(examID string, snap *model.SessionSnapshot, nowMS int64) error {
	snap.LastPersistedAt = nowMS

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.kv.Set(config.StorageKey.ExamSessionKey(examID), data); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Clear erases the exam's snapshot. Called exactly once per session, by
// the finalization path after a confirmed terminal state.
func (s *SessionStore) Clear(examID string) error {
	if err := s.kv.Remove(config.StorageKey.ExamSessionKey(examID)); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
