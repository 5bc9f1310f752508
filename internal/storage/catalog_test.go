package storage

import (
	"context"
	"testing"

	"akasha/internal/storage/pager"
)

func TestCatalogCreateTableAndInsertScan(t *testing.T) {
	pool, _ := newTestPool(t, 2, 8)
	ctx := context.Background()

	cat, err := InitThenLoad(ctx, pool.io, pool)
	if err != nil {
		t.Fatalf("InitThenLoad: %v", err)
	}

	pt, err := cat.CreateTable(ctx, "users", []ColumnInfo{
		{ID: 0, Name: "name", DataType: pager.KindText},
		{ID: 1, Name: "age", DataType: pager.KindInt32},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if pt.FileID != firstUserTableFileID {
		t.Fatalf("FileID = %d, want %d", pt.FileID, firstUserTableFileID)
	}

	if err := pt.Heap.InsertTuple(ctx, pager.NewTuple(pager.TextValue("Alice"), pager.Int32Value(30))); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	got, ok := cat.GetTable("users")
	if !ok {
		t.Fatalf("GetTable(users) not found")
	}
	idx, ok := got.Info.GetColumnIndex("age")
	if !ok || idx != 1 {
		t.Fatalf("GetColumnIndex(age) = %d, %v, want 1, true", idx, ok)
	}
}

func TestCatalogCreateTableRejectsDuplicateName(t *testing.T) {
	pool, _ := newTestPool(t, 2, 8)
	ctx := context.Background()

	cat, err := InitThenLoad(ctx, pool.io, pool)
	if err != nil {
		t.Fatalf("InitThenLoad: %v", err)
	}
	if _, err := cat.CreateTable(ctx, "users", []ColumnInfo{{ID: 0, Name: "id", DataType: pager.KindInt64}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	_, err = cat.CreateTable(ctx, "users", []ColumnInfo{{ID: 0, Name: "id", DataType: pager.KindInt64}})
	if _, ok := err.(*TableAlreadyExistsError); !ok {
		t.Fatalf("CreateTable duplicate = %v, want *TableAlreadyExistsError", err)
	}
}

func TestCatalogLoadReconstructsSchemaAndData(t *testing.T) {
	dir := t.TempDir()
	fm, err := NewFileSystemManager(dir)
	if err != nil {
		t.Fatalf("NewFileSystemManager: %v", err)
	}
	io := NewIoManager(fm, nil)
	pool := NewBufferPool(io, 2, 8)
	ctx := context.Background()

	cat, err := InitThenLoad(ctx, io, pool)
	if err != nil {
		t.Fatalf("InitThenLoad: %v", err)
	}
	deflt := pager.Int32Value(0)
	pt, err := cat.CreateTable(ctx, "users", []ColumnInfo{
		{ID: 0, Name: "name", DataType: pager.KindText},
		{ID: 1, Name: "age", DataType: pager.KindInt32, Nullable: true, Default: &deflt},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := pt.Heap.InsertTuple(ctx, pager.NewTuple(pager.TextValue("Dana"), pager.Int32Value(50))); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	pool.Flush()
	if err := io.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	io2 := NewIoManager(fm, nil)
	defer io2.Close()
	pool2 := NewBufferPool(io2, 2, 8)
	cat2, err := Load(ctx, io2, pool2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pt2, ok := cat2.GetTable("users")
	if !ok {
		t.Fatalf("Load did not reconstruct table users")
	}
	ageCol, ok := pt2.Info.Column("age")
	if !ok || ageCol.Default == nil || ageCol.Default.Int32 != 0 {
		t.Fatalf("reloaded column default not preserved: %+v ok=%v", ageCol, ok)
	}

	it := pt2.Heap.Scan(ctx)
	defer it.Close()
	tup, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if tup.Values[0].Text != "Dana" || tup.Values[1].Int32 != 50 {
		t.Fatalf("reloaded tuple = %+v", tup)
	}
}
