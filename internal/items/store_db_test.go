//go:build integration

package items

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE items RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestPostgresStore_MatchesMemorySemantics(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	if got := mustList(t, s); len(got) != 0 {
		t.Fatalf("fresh table not empty: %v", got)
	}

	mustAdd(t, s,
		Item{ID: 2, Name: "a"},
		Item{ID: 1, Name: "b"},
		Item{ID: 2, Name: "c"},
		Item{ID: 18446744073709551615, Name: "max"},
		Item{ID: 4, Name: "nul\x00inside"},
	)

	it, err := s.Update(ctx, 2, "renamed")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if it != (Item{ID: 2, Name: "renamed"}) {
		t.Fatalf("updated=%+v", it)
	}

	if err := s.Delete(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []Item{
		{ID: 1, Name: "b"},
		{ID: 2, Name: "c"},
		{ID: 18446744073709551615, Name: "max"},
		{ID: 4, Name: "nul\x00inside"},
	}
	if got := mustList(t, s); !slices.Equal(got, want) {
		t.Fatalf("list=%v want=%v", got, want)
	}

	if _, err := s.Update(ctx, 3, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing err=%v", err)
	}
	if err := s.Delete(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing err=%v", err)
	}

	it, err = s.Update(ctx, 1, "\x00")
	if err != nil || it.Name != "\x00" {
		t.Fatalf("update to NUL name=%q err=%v", it.Name, err)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 4 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}
