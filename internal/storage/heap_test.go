package storage

import (
	"context"
	"crypto/rand"
	"testing"

	"akasha/internal/storage/pager"
)

func TestTableHeapInsertAndScan(t *testing.T) {
	pool, _ := newTestPool(t, 2, 4)
	ctx := context.Background()

	heap, err := NewTableHeap(ctx, 3, pool)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}

	rows := []pager.Tuple{
		pager.NewTuple(pager.TextValue("Alice"), pager.Int32Value(30)),
		pager.NewTuple(pager.TextValue("Bob"), pager.Int32Value(25)),
		pager.NewTuple(pager.TextValue("Carol"), pager.Int32Value(40)),
	}
	for _, r := range rows {
		if err := heap.InsertTuple(ctx, r); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
	}

	it := heap.Scan(ctx)
	defer it.Close()
	var got []pager.Tuple
	for {
		tup, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, tup)
	}

	if len(got) != len(rows) {
		t.Fatalf("scanned %d tuples, want %d", len(got), len(rows))
	}
	for i, want := range rows {
		if got[i].Values[0].Text != want.Values[0].Text || got[i].Values[1].Int32 != want.Values[1].Int32 {
			t.Fatalf("tuple %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestTableHeapScanSnapshotExcludesLaterInserts(t *testing.T) {
	pool, _ := newTestPool(t, 2, 4)
	ctx := context.Background()

	heap, err := NewTableHeap(ctx, 4, pool)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	if err := heap.InsertTuple(ctx, pager.NewTuple(pager.Int32Value(1))); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	it := heap.Scan(ctx)
	if err := heap.InsertTuple(ctx, pager.NewTuple(pager.Int32Value(2))); err != nil {
		t.Fatalf("InsertTuple after snapshot: %v", err)
	}

	count := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	it.Close()

	if count != 1 {
		t.Fatalf("snapshot scan observed %d tuples, want 1", count)
	}
}

func TestTableHeapSpansMultiplePagesWhenFull(t *testing.T) {
	pool, _ := newTestPool(t, 1, 8)
	ctx := context.Background()

	heap, err := NewTableHeap(ctx, 6, pool)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}

	// Must be incompressible: an all-zero blob this size would s2-compress
	// to a sliver of its raw length and never force a second page.
	blob := make([]byte, 1024)
	if _, err := rand.Read(blob); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	n := 0
	for i := 0; i < 20; i++ {
		if err := heap.InsertTuple(ctx, pager.NewTuple(pager.BlobValue(blob))); err != nil {
			t.Fatalf("InsertTuple(%d): %v", i, err)
		}
		n++
	}

	if heap.PageCount() < 2 {
		t.Fatalf("PageCount() = %d, want heap to have spilled onto a second page", heap.PageCount())
	}

	it := heap.Scan(ctx)
	defer it.Close()
	count := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != n {
		t.Fatalf("scanned %d tuples, want %d", count, n)
	}
}
