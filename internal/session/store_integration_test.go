//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/testutil"
)

func setupStore(t *testing.T) *session.Store {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := session.NewStore(db.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return store
}

func sampleHistory(n int) []session.Message {
	now := time.Now().UTC().Truncate(time.Second)
	h := make([]session.Message, 0, n)
	for i := 0; i < n; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		h = append(h, session.Message{Role: role, Content: "text", Timestamp: now})
	}
	return h
}

func TestLoadMissingSession(t *testing.T) {
	store := setupStore(t)

	history, err := store.Load(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Load() = %v, want empty history", history)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	want := sampleHistory(4)
	if err := store.Save(ctx, "s1", want); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load() returned %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("message %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
	}
}

func TestSaveReplacesHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "s1", sampleHistory(2)); err != nil {
		t.Fatalf("first Save() unexpected error: %v", err)
	}
	if err := store.Save(ctx, "s1", sampleHistory(6)); err != nil {
		t.Fatalf("second Save() unexpected error: %v", err)
	}

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("Load() returned %d messages, want replacement with 6", len(got))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "s1", sampleHistory(2)); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}

	history, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() after delete unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history survived delete: %v", history)
	}

	// Deleting the already-gone session is still a no-op success.
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Errorf("repeat Delete() unexpected error: %v", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, id, sampleHistory(2)); err != nil {
			t.Fatalf("Save(%s) unexpected error: %v", id, err)
		}
	}
	// Touch "a" so it becomes the most recent.
	if err := store.Save(ctx, "a", sampleHistory(4)); err != nil {
		t.Fatalf("Save(a) unexpected error: %v", err)
	}

	infos, err := store.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(infos))
	}
	if infos[0].SessionID != "a" {
		t.Errorf("most recent session = %q, want a", infos[0].SessionID)
	}
	if infos[0].MessageCount != 4 {
		t.Errorf("message count = %d, want 4", infos[0].MessageCount)
	}

	limited, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List(limit=2) unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d sessions", len(limited))
	}
}

func TestConcurrentSaves(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- store.Save(ctx, "contended", sampleHistory(2))
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Save() unexpected error: %v", err)
		}
	}

	got, err := store.Load(ctx, "contended")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	// Every save wrote a complete history; the winner is intact.
	if len(got) != 2 {
		t.Errorf("history = %d messages, want a complete 2-message exchange", len(got))
	}
}
