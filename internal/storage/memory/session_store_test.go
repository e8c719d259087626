package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/storage"
)

func testSession(id string, createdAt time.Time) *domain.Session {
	return &domain.Session{
		ID:                id,
		SourceAccount:     "GSOURCE",
		NetworkPassphrase: "Test SDF Network ; September 2015",
		Status:            domain.StatusPending,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
}

func TestSessionStore_InsertAndGet(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := testSession("sess-1", time.Now())

	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.ID != sess.ID {
		t.Errorf("ID mismatch: got %s, want %s", got.ID, sess.ID)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.StatusPending)
	}
}

func TestSessionStore_DuplicateKey(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := testSession("sess-1", time.Now())

	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	err := store.Insert(ctx, sess)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	err = store.Update(ctx, testSession("missing", time.Now()))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Update on missing session: expected ErrNotFound, got %v", err)
	}
}

func TestSessionStore_Update(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := testSession("sess-1", time.Now())
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := time.Now()
	sess.Status = domain.StatusUploadDone
	sess.WasmHash = "abcdef"
	sess.RecordStep(domain.StepUploadWasm, "tx1", now)

	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Status != domain.StatusUploadDone {
		t.Errorf("Status not updated: got %s", got.Status)
	}
	if len(got.Steps) != 1 || got.Steps[0].Step != domain.StepUploadWasm || got.Steps[0].TxHash != "tx1" {
		t.Errorf("Steps not persisted: %+v", got.Steps)
	}
	if !got.Completed(domain.StepUploadWasm) {
		t.Error("Completed(upload_wasm) should be true")
	}
}

func TestSessionStore_ReturnsCopies(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := testSession("sess-1", time.Now())
	sess.RecordStep(domain.StepUploadWasm, "tx1", time.Now())
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "sess-1")
	got.Status = domain.StatusFailed
	got.Steps[0].TxHash = "mutated"

	fresh, _ := store.GetByID(ctx, "sess-1")
	if fresh.Status == domain.StatusFailed {
		t.Error("mutation of returned session leaked into store")
	}
	if fresh.Steps[0].TxHash == "mutated" {
		t.Error("mutation of returned steps leaked into store")
	}
}

func TestSessionStore_ListUnfinished(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	base := time.Now()

	older := testSession("sess-older", base.Add(-time.Hour))
	newer := testSession("sess-newer", base)
	done := testSession("sess-done", base.Add(-2*time.Hour))
	done.Status = domain.StatusInitialized
	failed := testSession("sess-failed", base.Add(-3*time.Hour))
	failed.Status = domain.StatusFailed

	for _, sess := range []*domain.Session{newer, older, done, failed} {
		if err := store.Insert(ctx, sess); err != nil {
			t.Fatalf("Insert %s failed: %v", sess.ID, err)
		}
	}

	got, err := store.ListUnfinished(ctx)
	if err != nil {
		t.Fatalf("ListUnfinished failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 unfinished sessions, got %d", len(got))
	}
	if got[0].ID != "sess-older" || got[1].ID != "sess-newer" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := testSession("sess-1", time.Now())
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s, _ := store.GetByID(ctx, "sess-1")
			s.Status = domain.StatusUploadDone
			store.Update(ctx, s)
		}()
		go func() {
			defer wg.Done()
			store.GetByID(ctx, "sess-1")
		}()
	}
	wg.Wait()

	if _, err := store.GetByID(ctx, "sess-1"); err != nil {
		t.Fatalf("GetByID after concurrent access failed: %v", err)
	}
}
