package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Yllib/socketclaude/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestSaveAndGetSession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	sess := &domain.Session{ID: "s-1", Title: "first", Cwd: "/tmp", CreatedAt: now, UpdatedAt: now}
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.ID != "s-1" || got.Title != "first" || got.Cwd != "/tmp" {
		t.Errorf("unexpected session: %+v", got)
	}

	missing, err := repo.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession for missing id failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing session, got %+v", missing)
	}
}

func TestPageEntries(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		entry := &domain.ChatEntry{SessionID: "s-1", Kind: domain.EntryUser, Content: "msg"}
		if err := repo.AppendEntry(ctx, entry); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
		if entry.ID == 0 {
			t.Fatal("AppendEntry did not assign an ID")
		}
	}

	entries, total, err := repo.PageEntries(ctx, "s-1", 3, 5)
	if err != nil {
		t.Fatalf("PageEntries failed: %v", err)
	}
	if total != 7 {
		t.Errorf("expected total 7, got %d", total)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries on last page, got %d", len(entries))
	}

	// Chronological order inside a page.
	all, _, err := repo.PageEntries(ctx, "s-1", 10, 0)
	if err != nil {
		t.Fatalf("PageEntries failed: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("entries out of order at index %d", i)
		}
	}
}

func TestMarkQuestionAnswered(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	entry := &domain.ChatEntry{SessionID: "s-1", Kind: domain.EntryQuestion, Content: "ok?", QuestionID: 4}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if err := repo.MarkQuestionAnswered(ctx, "s-1", 4); err != nil {
		t.Fatalf("MarkQuestionAnswered failed: %v", err)
	}

	entries, _, err := repo.PageEntries(ctx, "s-1", 10, 0)
	if err != nil {
		t.Fatalf("PageEntries failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].Answered {
		t.Errorf("expected answered question entry, got %+v", entries)
	}
}

func TestRenameSession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	if err := repo.SaveSession(ctx, &domain.Session{ID: "old", Cwd: "/tmp", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := repo.AppendEntry(ctx, &domain.ChatEntry{SessionID: "old", Kind: domain.EntryUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	if err := repo.RenameSession(ctx, "old", "new"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}

	sess, err := repo.GetSession(ctx, "new")
	if err != nil || sess == nil {
		t.Fatalf("expected renamed session, got %v (err %v)", sess, err)
	}
	_, total, err := repo.PageEntries(ctx, "new", 10, 0)
	if err != nil {
		t.Fatalf("PageEntries failed: %v", err)
	}
	if total != 1 {
		t.Errorf("expected history to follow the rename, got total %d", total)
	}
}

func TestTodosRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	todos := []domain.TodoItem{
		{Content: "write tests", Status: domain.TodoInProgress, ActiveForm: "Writing tests"},
		{Content: "ship", Status: domain.TodoPending},
	}
	if err := repo.SaveTodos(ctx, "s-1", todos); err != nil {
		t.Fatalf("SaveTodos failed: %v", err)
	}

	got, err := repo.GetTodos(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetTodos failed: %v", err)
	}
	if len(got) != 2 || got[0].Content != "write tests" || got[0].Status != domain.TodoInProgress {
		t.Errorf("unexpected todos: %+v", got)
	}

	if err := repo.ClearTodos(ctx, "s-1"); err != nil {
		t.Fatalf("ClearTodos failed: %v", err)
	}
	got, err = repo.GetTodos(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetTodos after clear failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no todos after clear, got %+v", got)
	}
}
