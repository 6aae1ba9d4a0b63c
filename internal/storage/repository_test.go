package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"finanzas/internal/core"
	"finanzas/internal/records"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "test.db"), nil)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(id string, typ core.RecordType, cents int64, d core.Date) core.Record {
	return core.Record{ID: id, Type: typ, Description: "desc " + id, Amount: core.Money{Cents: cents}, Date: d}
}

func TestSQLiteRepository_InsertListDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	in := []core.Record{
		record("b", core.Expense, 5000, core.NewDate(2025, 1, 20)),
		record("a", core.Income, 100000, core.NewDate(2025, 1, 5)),
		record("c", core.Income, 0, core.NewDate(2025, 1, 10)),
	}
	for _, r := range in {
		if err := repo.Insert(ctx, "u1", r); err != nil {
			t.Fatalf("insert %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], in[i])
		}
	}

	if err := repo.DeleteByID(ctx, "u1", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = repo.ListByOwner(ctx, "u1")
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("after delete = %+v", got)
	}
}

func TestSQLiteRepository_OwnershipIsPartitioned(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.Insert(ctx, "alice", record("r1", core.Income, 100, core.NewDate(2025, 2, 1))); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteByID(ctx, "bob", "r1"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
	bob, err := repo.ListByOwner(ctx, "bob")
	if err != nil || len(bob) != 0 {
		t.Fatalf("bob = %+v, %v", bob, err)
	}
	owners, err := repo.Owners(ctx)
	if err != nil || len(owners) != 1 || owners[0] != "alice" {
		t.Fatalf("owners = %v, %v", owners, err)
	}
}

func TestSQLiteRepository_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	cases := map[string]core.Record{
		"negative amount": record("x", core.Expense, -1, core.NewDate(2025, 1, 1)),
		"no date":         {ID: "y", Type: core.Income, Description: "d", Amount: core.Money{Cents: 1}},
		"bad type":        record("z", core.RecordType("gift"), 1, core.NewDate(2025, 1, 1)),
		"no id":           record("", core.Income, 1, core.NewDate(2025, 1, 1)),
	}
	for name, r := range cases {
		if err := repo.Insert(ctx, "u", r); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if err := repo.Insert(ctx, "", record("ok", core.Income, 1, core.NewDate(2025, 1, 1))); !errors.Is(err, records.ErrNoUser) {
		t.Errorf("empty owner err = %v", err)
	}
	if err := repo.Insert(ctx, "u", record("dup", core.Income, 1, core.NewDate(2025, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, "u", record("dup", core.Income, 1, core.NewDate(2025, 1, 1))); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestSQLiteRepository_MirrorBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.Insert(ctx, "u", record("1", core.Income, 1, core.NewDate(2025, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, "u", record("2", core.Income, 1, core.NewDate(2025, 1, 2))); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.PendingMirror(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Owner != "u" || pending[0].Version != 2 {
		t.Fatalf("pending = %+v", pending)
	}

	if err := repo.MarkMirrorError(ctx, "u", errors.New("quota")); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkMirrored(ctx, "u", 2); err != nil {
		t.Fatal(err)
	}
	pending, _ = repo.PendingMirror(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending after mark = %+v", pending)
	}

	// an older version never rewinds the marker
	if err := repo.MarkMirrored(ctx, "u", 1); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteByID(ctx, "u", "1"); err != nil {
		t.Fatal(err)
	}
	v, err := repo.Version(ctx, "u")
	if err != nil || v != 3 {
		t.Fatalf("version = %d, %v", v, err)
	}
	pending, _ = repo.PendingMirror(ctx, 10)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Fatalf("pending after delete = %+v", pending)
	}
	if v, _ := repo.Version(ctx, "nobody"); v != 0 {
		t.Fatalf("unknown owner version = %d", v)
	}
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	repo, err := NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, "u", record("keep", core.Expense, 250, core.NewDate(2024, 2, 29))); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	got, err := repo.ListByOwner(ctx, "u")
	if err != nil || len(got) != 1 || got[0].Date != core.NewDate(2024, 2, 29) {
		t.Fatalf("after reopen = %+v, %v", got, err)
	}
}
