package store

import (
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/models"
)

const (
	draftKeyPrefix  = "draft/"
	pendingIndexKey = "pending-index"
)

// Store holds per-entity draft snapshots and the pending-sync index on top
// of a KV capability. All operations are synchronous and best-effort:
// storage failures are returned to the caller and logged, never swallowed.
//
// The invariant maintained here: an entity appears in the pending index
// if and only if its stored draft has Synced == false.
type Store struct {
	mu sync.Mutex
	kv KV
}

// New creates a draft store over the given KV.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// SaveLocal merges a partial payload into the stored draft for entityID,
// stamps SavedAt, marks it unsynced and indexes it as pending. The merge
// is last-write-wins per field, so repeated identical saves are idempotent.
func (s *Store) SaveLocal(entityID string, partial map[string]interface{}) (*models.PendingEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.getLocked(entityID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		ent = &models.PendingEntity{EntityID: entityID}
	}

	ent.Merge(partial)
	ent.SavedAt = time.Now()
	ent.Synced = false

	if err := s.putLocked(ent); err != nil {
		logging.Error("Local save failed", err,
			map[string]interface{}{"entity_id": entityID})
		return nil, err
	}

	if err := s.addPendingLocked(entityID); err != nil {
		logging.Error("Failed to index pending entity", err,
			map[string]interface{}{"entity_id": entityID})
		return nil, err
	}

	return ent, nil
}

// GetLocal returns the stored draft for entityID, or nil when absent.
func (s *Store) GetLocal(entityID string) (*models.PendingEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(entityID)
}

// MarkSynced flags the stored draft as synced and removes it from the
// pending index. The draft itself is kept; only the caller may overwrite
// or discard it. No-op when the entity is absent.
func (s *Store) MarkSynced(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.getLocked(entityID)
	if err != nil {
		return err
	}
	if ent == nil {
		return nil
	}

	ent.Synced = true
	if err := s.putLocked(ent); err != nil {
		return err
	}
	return s.removePendingLocked(entityID)
}

// PendingIDs returns the ids awaiting sync, in index insertion order.
func (s *Store) PendingIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// PendingCount returns the number of entities awaiting sync.
func (s *Store) PendingCount() int {
	ids, err := s.PendingIDs()
	if err != nil {
		return 0
	}
	return len(ids)
}

// HasPending reports whether any entity awaits sync.
func (s *Store) HasPending() bool {
	return s.PendingCount() > 0
}

func (s *Store) getLocked(entityID string) (*models.PendingEntity, error) {
	raw, ok, err := s.kv.Get(draftKeyPrefix + entityID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read draft", err)
	}
	if !ok {
		return nil, nil
	}

	var ent models.PendingEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerialization, "failed to decode draft", err)
	}
	return &ent, nil
}

func (s *Store) putLocked(ent *models.PendingEntity) error {
	raw, err := json.Marshal(ent)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSerialization, "failed to encode draft", err)
	}
	if err := s.kv.Set(draftKeyPrefix+ent.EntityID, raw); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write draft", err)
	}
	return nil
}

func (s *Store) pendingLocked() ([]string, error) {
	raw, ok, err := s.kv.Get(pendingIndexKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read pending index", err)
	}
	if !ok {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerialization, "failed to decode pending index", err)
	}
	return ids, nil
}

func (s *Store) writePendingLocked(ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSerialization, "failed to encode pending index", err)
	}
	if err := s.kv.Set(pendingIndexKey, raw); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write pending index", err)
	}
	return nil
}

func (s *Store) addPendingLocked(entityID string) error {
	ids, err := s.pendingLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == entityID {
			return nil
		}
	}
	return s.writePendingLocked(append(ids, entityID))
}

func (s *Store) removePendingLocked(entityID string) error {
	ids, err := s.pendingLocked()
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != entityID {
			out = append(out, id)
		}
	}
	if len(out) == len(ids) {
		return nil
	}
	return s.writePendingLocked(out)
}
