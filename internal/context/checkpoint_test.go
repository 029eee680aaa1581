package context

import (
	"errors"
	"fmt"
	"testing"
	"time"

	qmodels "github.com/haasonsaas/quill/pkg/models"
)

func TestCheckpointStore_CreateRollback(t *testing.T) {
	store := NewCheckpointStore(5)
	msgs := pairedConversation()

	id := store.Create(msgs, "before compaction")
	if id == "" {
		t.Fatal("empty checkpoint id")
	}

	restored, err := store.Rollback(id)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if len(restored) != len(msgs) {
		t.Fatalf("restored %d messages, want %d", len(restored), len(msgs))
	}

	// Mutating the originals after the snapshot must not affect it.
	msgs[0].Content = "mutated"
	restored2, _ := store.Rollback(id)
	if restored2[0].Content != "system prompt" {
		t.Error("snapshot shares state with the original slice")
	}

	// Mutating a restored copy must not affect the stored snapshot.
	restored[4].Content = "changed"
	restored3, _ := store.Rollback(id)
	if restored3[4].Content != "done" {
		t.Error("rollback returns shared state")
	}
}

func TestCheckpointStore_NotFound(t *testing.T) {
	store := NewCheckpointStore(2)
	if _, err := store.Rollback("nope"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCheckpointStore_LRUEviction(t *testing.T) {
	store := NewCheckpointStore(2)
	msgs := []qmodels.ContextMessage{{Role: qmodels.RoleUser, Content: "hi"}}

	first := store.Create(msgs, "first")
	second := store.Create(msgs, "second")

	// Reading first makes second the eviction candidate.
	if _, err := store.Rollback(first); err != nil {
		t.Fatal(err)
	}
	third := store.Create(msgs, "third")

	if _, err := store.Rollback(second); !errors.Is(err, ErrCheckpointNotFound) {
		t.Error("least-recently-read checkpoint not evicted")
	}
	for i, id := range []string{first, third} {
		if _, err := store.Rollback(id); err != nil {
			t.Errorf("checkpoint %d unexpectedly gone: %v", i, err)
		}
	}
}

func TestCheckpointStore_List(t *testing.T) {
	store := NewCheckpointStore(5)
	store.now = func() time.Time { return time.UnixMilli(1000) }
	msgs := []qmodels.ContextMessage{{Role: qmodels.RoleUser, Content: "m"}}

	first := store.Create(msgs, "first")
	store.now = func() time.Time { return time.UnixMilli(2000) }
	second := store.Create(msgs, "second")

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d checkpoints", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Errorf("List order = %s, %s; want newest first", list[0].ID, list[1].ID)
	}
	if list[0].Label != "second" || len(list[0].Messages) != 1 {
		t.Errorf("List entry = %+v", list[0])
	}
}

func TestCheckpointStore_DefaultCapacity(t *testing.T) {
	store := NewCheckpointStore(0)
	msgs := []qmodels.ContextMessage{{Role: qmodels.RoleUser, Content: "m"}}
	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		ids = append(ids, store.Create(msgs, fmt.Sprintf("cp-%d", i)))
	}
	if store.Len() != DefaultCheckpointCapacity {
		t.Errorf("Len = %d, want %d", store.Len(), DefaultCheckpointCapacity)
	}
	if _, err := store.Rollback(ids[0]); !errors.Is(err, ErrCheckpointNotFound) {
		t.Error("oldest checkpoint survived over capacity")
	}
}
