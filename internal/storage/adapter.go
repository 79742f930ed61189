package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/loom-engine/loom/pkg/types"
)

// SessionStore is the persistence adapter for session records: full trees
// are stored as one JSON blob under session/{id}. No separate index is
// kept: LoadIndex reads every session blob to build its listing. History
// is part of the blob in memory
// but stripped before write — undo history does not survive a restart.
type SessionStore struct {
	storage *Storage
}

// NewSessionStore wraps a Storage instance.
func NewSessionStore(s *Storage) *SessionStore {
	return &SessionStore{storage: s}
}

// LoadIndex lists all stored sessions as lightweight metadata, newest
// first.
func (ss *SessionStore) LoadIndex(ctx context.Context) ([]types.SessionMeta, error) {
	var metas []types.SessionMeta
	err := ss.storage.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		var s struct {
			ID        string `json:"id"`
			CreatedAt int64  `json:"createdAt"`
			UpdatedAt int64  `json:"updatedAt"`
			Title     string `json:"title"`
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return nil // skip unreadable records rather than fail the listing
		}
		metas = append(metas, types.SessionMeta{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load session index: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt > metas[j].UpdatedAt })
	return metas, nil
}

// Load reads a full session. The loaded session starts with an empty
// history; the caller owes it an initial snapshot before recording edits.
func (ss *SessionStore) Load(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	if err := ss.storage.Get(ctx, []string{"session", id}, &s); err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load session %q: %v", types.ErrPersistenceFailure, id, err)
	}
	s.History = nil
	s.HistoryIndex = -1
	return &s, nil
}

// Save writes a session record. History is stripped from the stored copy:
// persisting snapshots of every edit would multiply the blob size for a
// feature that is scoped to a single process lifetime anyway.
func (ss *SessionStore) Save(ctx context.Context, s *types.Session) error {
	stored := *s
	stored.History = nil
	stored.HistoryIndex = -1
	if err := ss.storage.Put(ctx, []string{"session", s.ID}, &stored); err != nil {
		return fmt.Errorf("%w: save session %q: %v", types.ErrPersistenceFailure, s.ID, err)
	}
	return nil
}

// Delete moves a session record to the recycle bin.
func (ss *SessionStore) Delete(ctx context.Context, id string) error {
	if err := ss.storage.Trash(ctx, []string{"session", id}); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("%w: delete session %q: %v", types.ErrPersistenceFailure, id, err)
	}
	return nil
}
