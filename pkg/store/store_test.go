package store

import (
	"context"
	"testing"
	"time"

	"github.com/silapakurthi/collabboard/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutCreateThenGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fields, err := st.Put(ctx, Write{
		BoardID: "b1", DocID: "o1", Fields: map[string]any{"type": "sticky", "x": 1.0}, Mode: ModeCreate,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if fields["x"] != 1.0 {
		t.Errorf("expected x=1.0, got %v", fields["x"])
	}

	rows, err := st.ReadServer(ctx, "b1")
	if err != nil {
		t.Fatalf("read server: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestPutCreateRejectsDuplicateID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	w := Write{BoardID: "b1", DocID: "o1", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate}
	if _, err := st.Put(ctx, w); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := st.Put(ctx, w); err == nil {
		t.Error("expected ErrAlreadyExists on duplicate create")
	}
}

func TestPutMergeOnAbsentDocBehavesAsCreate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fields, err := st.Put(ctx, Write{
		BoardID: "b1", DocID: "ghost", Fields: map[string]any{"x": 5.0}, Mode: ModeMerge,
	})
	if err != nil {
		t.Fatalf("merge on absent doc should succeed, got: %v", err)
	}
	if fields["x"] != 5.0 {
		t.Errorf("expected x=5.0, got %v", fields["x"])
	}
}

func TestPutMergePreservesUnmentionedFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Put(ctx, Write{
		BoardID: "b1", DocID: "o1", Fields: map[string]any{"x": 1.0, "y": 2.0}, Mode: ModeCreate,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fields, err := st.Put(ctx, Write{
		BoardID: "b1", DocID: "o1", Fields: map[string]any{"x": 99.0}, Mode: ModeMerge,
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if fields["x"] != 99.0 || fields["y"] != 2.0 {
		t.Errorf("expected merged fields {x:99, y:2}, got %+v", fields)
	}
}

func TestPutAlwaysStampsServerUpdatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fields, err := st.Put(ctx, Write{
		BoardID: "b1", DocID: "o1",
		Fields: map[string]any{"updatedAt": "2000-01-01T00:00:00Z"},
		Mode:   ModeCreate,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if fields["updatedAt"] == "2000-01-01T00:00:00Z" {
		t.Error("expected the server to overwrite a client-supplied updatedAt")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Delete(ctx, "b1", "does-not-exist"); err != nil {
		t.Errorf("expected delete of a nonexistent doc to be a no-op, got %v", err)
	}
}

func TestBatchAppliesAllOrNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.Batch(ctx, []Write{
		{BoardID: "b1", DocID: "a", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate},
		{BoardID: "b1", DocID: "b", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	rows, err := st.ReadServer(ctx, "b1")
	if err != nil {
		t.Fatalf("read server: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows after batch, got %d", len(rows))
	}
}

func TestBatchRollsBackOnFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Pre-create "a" so the later ModeCreate write in the batch conflicts.
	if _, err := st.Put(ctx, Write{BoardID: "b1", DocID: "a", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate}); err != nil {
		t.Fatalf("pre-create: %v", err)
	}

	err := st.Batch(ctx, []Write{
		{BoardID: "b1", DocID: "fresh", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate},
		{BoardID: "b1", DocID: "a", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate},
	})
	if err == nil {
		t.Fatal("expected the batch to fail due to the duplicate create")
	}

	rows, err := st.ReadServer(ctx, "b1")
	if err != nil {
		t.Fatalf("read server: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected the failed batch to roll back entirely, got %d rows", len(rows))
	}
}

func TestSubscribeDeliversSnapshotBeforeLiveEvents(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := st.Put(ctx, Write{BoardID: "b1", DocID: "existing", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate}); err != nil {
		t.Fatalf("put: %v", err)
	}

	events, unsubscribe, err := st.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	select {
	case evt := <-events:
		if evt.DocID != "existing" || evt.Kind != Added {
			t.Errorf("expected snapshot event for 'existing', got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot event")
	}

	if _, err := st.Put(ctx, Write{BoardID: "b1", DocID: "new", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate}); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case evt := <-events:
		if evt.DocID != "new" {
			t.Errorf("expected live event for 'new', got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestCreateAndGetBoard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := model.Board{ID: "board1", Name: "Test Board", CreatedBy: "alice", CreatedAt: time.Now()}
	if err := st.CreateBoard(ctx, b); err != nil {
		t.Fatalf("create board: %v", err)
	}

	got, err := st.GetBoard(ctx, "board1")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if got == nil || got.Name != "Test Board" {
		t.Errorf("unexpected board: %+v", got)
	}
}

func TestGetBoardMissingReturnsNil(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.GetBoard(ctx, "missing")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing board, got %+v", got)
	}
}

func TestDeleteBoardCascadesObjects(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateBoard(ctx, model.Board{ID: "board1", Name: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create board: %v", err)
	}
	if _, err := st.Put(ctx, Write{BoardID: "board1", DocID: "o1", Fields: map[string]any{"type": "sticky"}, Mode: ModeCreate}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := st.DeleteBoard(ctx, "board1"); err != nil {
		t.Fatalf("delete board: %v", err)
	}

	rows, err := st.ReadServer(ctx, "board1")
	if err != nil {
		t.Fatalf("read server: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no objects after board deletion, got %d", len(rows))
	}
	if got, err := st.GetBoard(ctx, "board1"); err != nil || got != nil {
		t.Errorf("expected the board itself to be gone, got %+v, err %v", got, err)
	}
}
