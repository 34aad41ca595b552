package sessionstore

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(zap.NewNop(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveLoadDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "alice"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	session := ports.StoredSession{
		User: "alice",
		State: ps.PlaybackState{
			CurrentTrack: &ps.Track{ID: "t1", Duration: 180},
			Position:     42.5,
			QueueVersion: 3,
			Volume:       0.7,
			Repeat:       ps.RepeatAll,
		},
		Queue:        []ps.QueueItem{{ID: "t1", AddedAt: 10}, {ID: "t2", AddedAt: 11}},
		QueueVersion: 3,
		DeviceName:   "kitchen",
		UpdatedAt:    1000,
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.State.Position != 42.5 || got.State.CurrentTrack == nil || got.State.CurrentTrack.ID != "t1" {
		t.Fatalf("unexpected state: %+v", got.State)
	}
	if len(got.Queue) != 2 || got.QueueVersion != 3 || got.DeviceName != "kitchen" || got.UpdatedAt != 1000 {
		t.Fatalf("unexpected session: %+v", got)
	}

	session.State.Position = 50
	session.Queue = nil
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	got, _, _ = store.Load(ctx, "alice")
	if got.State.Position != 50 || len(got.Queue) != 0 {
		t.Fatalf("expected replaced session, got %+v", got)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "alice"); ok {
		t.Fatalf("expected session deleted")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := Open(zap.NewNop(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(context.Background(), ports.StoredSession{User: "bob", QueueVersion: 7}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	reopened, err := Open(zap.NewNop(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Load(context.Background(), "bob")
	if err != nil || !ok || got.QueueVersion != 7 {
		t.Fatalf("expected persisted session, got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestSaveRequiresUser(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(context.Background(), ports.StoredSession{}); err == nil {
		t.Fatalf("expected error")
	}
}
