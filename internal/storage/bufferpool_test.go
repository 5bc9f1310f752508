package storage

import (
	"context"
	"testing"

	"akasha/internal/storage/pager"
)

func newTestPool(t *testing.T, shards, slotsPerShard int) (*BufferPool, *IoManager) {
	t.Helper()
	fm, err := NewFileSystemManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemManager: %v", err)
	}
	io := NewIoManager(fm, nil)
	t.Cleanup(func() { io.Close() })
	return NewBufferPool(io, shards, slotsPerShard), io
}

func TestBufferPoolGetPageReturnsValidHeader(t *testing.T) {
	pool, _ := newTestPool(t, 2, 4)
	ctx := context.Background()

	pp, err := pool.GetPage(ctx, 1, 0)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	page := pp.Page()
	if page.SlotCount() != 0 || page.FreePtr() != pager.PageSize {
		t.Fatalf("fresh frame is not a valid empty page: N=%d F=%d", page.SlotCount(), page.FreePtr())
	}
	pp.Unpin(false)
}

func TestBufferPoolPinBalanceAcrossEviction(t *testing.T) {
	pool, _ := newTestPool(t, 1, 2) // tiny pool: force eviction immediately
	ctx := context.Background()

	for i := uint32(0); i < 10; i++ {
		pp, err := pool.GetPage(ctx, 5, i)
		if err != nil {
			t.Fatalf("GetPage(%d): %v", i, err)
		}
		page := pp.Page()
		page.InsertTuple(pager.NewTuple(pager.Int32Value(int32(i))))
		pp.PutPage(page)
		pp.UnpinAndFlush(true)
	}

	sh := pool.pickShard(5, 0)
	for i := range sh.slots {
		if p := sh.slots[i].pin.Load(); p != 0 {
			t.Fatalf("slot %d has pin=%d after full unpin sequence, want 0", i, p)
		}
	}
}

func TestBufferPoolWriteBackSurvivesEviction(t *testing.T) {
	pool, io := newTestPool(t, 1, 1) // a single frame: every new page evicts the last
	ctx := context.Background()

	pp, err := pool.GetPage(ctx, 9, 0)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	page := pp.Page()
	page.InsertTuple(pager.NewTuple(pager.TextValue("first")))
	pp.PutPage(page)
	pp.Unpin(true)

	// Pin a different page in the same (only) shard/slot, forcing eviction
	// of the dirty page above.
	pp2, err := pool.GetPage(ctx, 9, 1)
	if err != nil {
		t.Fatalf("GetPage second page: %v", err)
	}
	pp2.Unpin(false)

	io.Flush()

	buf := make([]byte, pager.PageSize)
	if err := io.ReadInto(9, 0, buf); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	got := pager.WrapPage(buf)
	tup, ok := got.GetTuple(0)
	if !ok || tup.Values[0].Text != "first" {
		t.Fatalf("evicted page was not written back: %+v ok=%v", tup, ok)
	}
}
