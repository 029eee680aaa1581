package context

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/quill/internal/cache"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// DefaultCheckpointCapacity bounds the checkpoint store.
const DefaultCheckpointCapacity = 5

// ErrCheckpointNotFound is returned when rolling back to an unknown or
// evicted checkpoint id.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is an in-memory snapshot of a message sequence.
type Checkpoint struct {
	ID        string
	Label     string
	CreatedAt time.Time
	Messages  []qmodels.ContextMessage
}

// CheckpointStore keeps bounded message snapshots, evicted least recently
// read. It is single-session and not safe for concurrent mutation beyond
// what the backing store provides.
type CheckpointStore struct {
	store *cache.LRU[Checkpoint]
	now   func() time.Time
}

// NewCheckpointStore creates a store holding at most capacity checkpoints
// (default 5).
func NewCheckpointStore(capacity int) *CheckpointStore {
	if capacity <= 0 {
		capacity = DefaultCheckpointCapacity
	}
	return &CheckpointStore{
		store: cache.NewLRU[Checkpoint](capacity),
		now:   time.Now,
	}
}

// Create snapshots the message sequence and returns the checkpoint id. The
// outer sequence and message structs are copied; block values are shared,
// being immutable by convention.
func (s *CheckpointStore) Create(messages []qmodels.ContextMessage, label string) string {
	id := uuid.NewString()
	s.store.Put(id, Checkpoint{
		ID:        id,
		Label:     label,
		CreatedAt: s.now(),
		Messages:  qmodels.CloneMessages(messages),
	})
	return id
}

// Rollback returns a copy of the stored snapshot.
func (s *CheckpointStore) Rollback(id string) ([]qmodels.ContextMessage, error) {
	cp, ok := s.store.Get(id)
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return qmodels.CloneMessages(cp.Messages), nil
}

// Get returns the stored checkpoint without touching recency. The Messages
// slice is the stored snapshot; treat it as read-only.
func (s *CheckpointStore) Get(id string) (Checkpoint, bool) {
	return s.store.Peek(id)
}

// Len reports how many checkpoints are held.
func (s *CheckpointStore) Len() int {
	return s.store.Len()
}

// List returns the stored checkpoints newest first, without touching
// recency. The Messages slices are the stored snapshots; treat them as
// read-only.
func (s *CheckpointStore) List() []Checkpoint {
	keys := s.store.Keys()
	out := make([]Checkpoint, 0, len(keys))
	for _, key := range keys {
		if cp, ok := s.store.Peek(key); ok {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
