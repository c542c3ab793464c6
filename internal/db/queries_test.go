package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "facet.db"))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertObject_GetObject(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	o := &Object{
		Key:         "01ABC.json",
		ContentType: "application/json",
		Data:        []byte(`{"name":"Jane"}`),
		Size:        15,
		CreatedAt:   1000,
		UpdatedAt:   1000,
	}
	if err := InsertObject(ctx, db, o); err != nil {
		t.Fatalf("InsertObject failed: %v", err)
	}

	got, err := GetObject(ctx, db, "01ABC.json")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if string(got.Data) != `{"name":"Jane"}` {
		t.Errorf("Data = %s", got.Data)
	}
	if got.ContentType != "application/json" || got.Size != 15 || got.CreatedAt != 1000 {
		t.Errorf("got %+v", got)
	}
}

func TestInsertObject_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	o := &Object{Key: "dup.json", Data: []byte("a"), Size: 1, CreatedAt: 1, UpdatedAt: 1}
	if err := InsertObject(ctx, db, o); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	o2 := &Object{Key: "dup.json", Data: []byte("b"), Size: 1, CreatedAt: 2, UpdatedAt: 2}
	if err := InsertObject(ctx, db, o2); !errors.Is(err, ErrUniqueConstraint) {
		t.Fatalf("second insert err = %v, want ErrUniqueConstraint", err)
	}

	got, _ := GetObject(ctx, db, "dup.json")
	if string(got.Data) != "a" {
		t.Errorf("original data overwritten: %s", got.Data)
	}
}

func TestUpsertObject_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := UpsertObject(ctx, db, &Object{Key: "k", Data: []byte("a"), Size: 1, CreatedAt: 10, UpdatedAt: 10}); err != nil {
		t.Fatalf("UpsertObject failed: %v", err)
	}
	if err := UpsertObject(ctx, db, &Object{Key: "k", Data: []byte("bb"), Size: 2, CreatedAt: 20, UpdatedAt: 20}); err != nil {
		t.Fatalf("UpsertObject failed: %v", err)
	}

	got, err := GetObject(ctx, db, "k")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if string(got.Data) != "bb" || got.Size != 2 {
		t.Errorf("data not replaced: %+v", got)
	}
	if got.CreatedAt != 10 || got.UpdatedAt != 20 {
		t.Errorf("CreatedAt/UpdatedAt = %d/%d, want 10/20", got.CreatedAt, got.UpdatedAt)
	}
}

func TestGetObject_NotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := GetObject(context.Background(), db, "missing"); !errors.Is(err, ErrNoObject) {
		t.Fatalf("err = %v, want ErrNoObject", err)
	}
}

func TestListObjects_Prefix(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, key := range []string{"a.json", "a.meta.json", "b.json", "a%_x.json"} {
		if err := InsertObject(ctx, db, &Object{Key: key, Data: []byte("x"), Size: 1, CreatedAt: 1, UpdatedAt: 1}); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}

	got, err := ListObjects(ctx, db, "a.")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a.json" || got[1].Key != "a.meta.json" {
		t.Errorf("ListObjects(a.) = %+v", got)
	}
	if got[0].Data != nil {
		t.Error("ListObjects should not load data")
	}

	// wildcard characters are literal
	got, _ = ListObjects(ctx, db, "a%")
	if len(got) != 1 || got[0].Key != "a%_x.json" {
		t.Errorf("ListObjects(a%%) = %+v", got)
	}

	all, _ := ListObjects(ctx, db, "")
	if len(all) != 4 {
		t.Errorf("ListObjects(\"\") returned %d, want 4", len(all))
	}
}

func TestDeleteObjects(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := InsertObject(ctx, db, &Object{Key: key, Data: []byte("x"), Size: 1, CreatedAt: 1, UpdatedAt: 1}); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}

	if err := DeleteObjects(ctx, db, "a", "b", "missing"); err != nil {
		t.Fatalf("DeleteObjects failed: %v", err)
	}

	left, _ := ListObjects(ctx, db, "")
	if len(left) != 1 || left[0].Key != "c" {
		t.Errorf("remaining = %+v, want [c]", left)
	}

	if err := DeleteObjects(ctx, db); err != nil {
		t.Errorf("DeleteObjects() with no keys = %v", err)
	}
}
