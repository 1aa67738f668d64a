package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	gen := &Generation{
		ID:        "gen-1",
		ModelID:   "flux-pro-1.1",
		Status:    StatusProcessing,
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"prompt": "a cat"},
	}
	if err := s.Put(ctx, gen); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "gen-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ModelID != "flux-pro-1.1" || got.Status != StatusProcessing {
		t.Errorf("got %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Put did not stamp UpdatedAt")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get returned %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(ctx, &Generation{ID: "gen-1", Status: StatusProcessing}) //nolint:errcheck

	got, _ := s.Get(ctx, "gen-1")
	got.Status = StatusError

	again, _ := s.Get(ctx, "gen-1")
	if again.Status != StatusProcessing {
		t.Error("mutating a returned record leaked into the store")
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(ctx, &Generation{ID: "gen-1", Status: StatusProcessing}) //nolint:errcheck
	s.Put(ctx, &Generation{                                        //nolint:errcheck
		ID:     "gen-1",
		Status: StatusCompleted,
		Images: []Image{{URL: "https://cdn.example/a.png"}},
	})

	got, err := s.Get(ctx, "gen-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || len(got.Images) != 1 {
		t.Errorf("got %+v", got)
	}
}

// fakeRow satisfies pgx.Row with canned scan values.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

// fakeDB records the statements it receives.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	row      fakeRow
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return db.row
}

func TestPostgresStore_PutSerialisesJSONB(t *testing.T) {
	db := &fakeDB{}
	s := NewPostgresStore(db)

	err := s.Put(context.Background(), &Generation{
		ID:      "gen-1",
		ModelID: "flux-pro-1.1",
		Status:  StatusCompleted,
		Images:  []Image{{URL: "https://cdn.example/a.png", Seed: 3}},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("Put issued %v, want a single upsert", db.execSQL)
	}
	args := db.execArgs[0]
	images, ok := args[3].([]byte)
	if !ok || !strings.Contains(string(images), `"seed":3`) {
		t.Errorf("images argument = %v", args[3])
	}
	if meta, ok := args[4].([]byte); !ok || string(meta) != "{}" {
		t.Errorf("nil metadata serialised as %v, want {}", args[4])
	}
}

func TestPostgresStore_Get(t *testing.T) {
	now := time.Now().UTC()
	db := &fakeDB{row: fakeRow{values: []any{
		"gen-1", "flux-pro-1.1", StatusCompleted,
		[]byte(`[{"url":"https://cdn.example/a.png"}]`),
		[]byte(`{"prompt":"a cat"}`),
		"", now, now,
	}}}
	s := NewPostgresStore(db)

	gen, err := s.Get(context.Background(), "gen-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gen.Status != StatusCompleted || len(gen.Images) != 1 {
		t.Errorf("gen = %+v", gen)
	}
	if gen.Metadata["prompt"] != "a cat" {
		t.Errorf("metadata = %v", gen.Metadata)
	}
}

func TestPostgresStore_GetMissing(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	s := NewPostgresStore(db)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get returned %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	db := &fakeDB{}
	s := NewPostgresStore(db)

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS generations") {
		t.Errorf("Migrate issued %v", db.execSQL)
	}
}
