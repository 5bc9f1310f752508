package storage

import (
	"context"
	"fmt"
	"sync"

	"akasha/internal/storage/pager"
)

// TableHeap maps one table onto an ordered sequence of pages in a single
// relation file. Page 0 is allocated at heap creation; heaps loaded from
// disk start with as many page-ids as the file currently holds.
type TableHeap struct {
	fileID uint32
	pool   *BufferPool

	mu      sync.Mutex
	pageIDs []uint32
}

// NewTableHeap creates a brand-new heap for fileID: allocates page 0 and
// initializes it.
func NewTableHeap(ctx context.Context, fileID uint32, pool *BufferPool) (*TableHeap, error) {
	h := &TableHeap{fileID: fileID, pool: pool}
	pp, err := pool.GetPage(ctx, fileID, 0)
	if err != nil {
		return nil, err
	}
	page := pager.NewPage()
	pp.PutPage(page)
	pp.UnpinAndFlush(true)
	h.pageIDs = []uint32{0}
	return h, nil
}

// OpenTableHeap reconstructs a heap over an existing relation file using
// its on-disk page count.
func OpenTableHeap(fileID uint32, pool *BufferPool, io *IoManager) (*TableHeap, error) {
	count, err := io.PageCount(fileID)
	if err != nil {
		return nil, err
	}
	pageIDs := make([]uint32, count)
	for i := range pageIDs {
		pageIDs[i] = uint32(i)
	}
	return &TableHeap{fileID: fileID, pool: pool, pageIDs: pageIDs}, nil
}

// PageCount reports how many pages currently belong to the heap.
func (h *TableHeap) PageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pageIDs)
}

// InsertTuple appends t to the first page with room for it, allocating a
// new page if none has space. The heap's page-id list is locked for the
// duration of the scan-then-maybe-append, serializing inserts into a
// single heap.
func (h *TableHeap) InsertTuple(ctx context.Context, t pager.Tuple) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, pageID := range h.pageIDs {
		pp, err := h.pool.GetPage(ctx, h.fileID, pageID)
		if err != nil {
			return err
		}
		page := pp.Page()
		if _, err := page.InsertTuple(t); err == nil {
			pp.PutPage(page)
			pp.Unpin(true)
			return nil
		}
		pp.Unpin(false)
	}

	newPageID := uint32(len(h.pageIDs))
	pp, err := h.pool.GetPage(ctx, h.fileID, newPageID)
	if err != nil {
		return err
	}
	page := pager.NewPage()
	if _, err := page.InsertTuple(t); err != nil {
		pp.Unpin(false)
		return fmt.Errorf("storage: tuple does not fit in an empty page: %w", err)
	}
	pp.PutPage(page)
	pp.UnpinAndFlush(true)
	h.pageIDs = append(h.pageIDs, newPageID)
	return nil
}

// Scan snapshots the current page-id list and returns an iterator over
// every tuple in (page_id, slot_id) order. Inserts that land on a page
// appended after the snapshot are not observed. The slot counts are not
// snapshotted: each page's slot count is read when the iterator reaches
// that page, so inserts made after Scan into a page of the snapshot are
// observed if they happen before the iterator gets there.
func (h *TableHeap) Scan(ctx context.Context) *TupleIterator {
	h.mu.Lock()
	snapshot := append([]uint32(nil), h.pageIDs...)
	h.mu.Unlock()
	return &TupleIterator{ctx: ctx, heap: h, pageIDs: snapshot, pageIdx: -1}
}

// TupleIterator lazily walks a snapshotted list of page-ids, pinning one
// page at a time and releasing it before moving to the next.
type TupleIterator struct {
	ctx     context.Context
	heap    *TableHeap
	pageIDs []uint32

	pageIdx int
	slotIdx int
	pinned  *PinnedPage
	page    *pager.Page
}

// Next returns the next tuple in the scan, or ok=false once the snapshot
// is exhausted.
func (it *TupleIterator) Next() (pager.Tuple, bool, error) {
	for {
		if it.pinned == nil {
			it.pageIdx++
			if it.pageIdx >= len(it.pageIDs) {
				return pager.Tuple{}, false, nil
			}
			pp, err := it.heap.pool.GetPage(it.ctx, it.heap.fileID, it.pageIDs[it.pageIdx])
			if err != nil {
				return pager.Tuple{}, false, err
			}
			it.pinned = pp
			it.page = pp.Page()
			it.slotIdx = 0
		}

		if it.slotIdx < it.page.SlotCount() {
			tup, ok := it.page.GetTuple(it.slotIdx)
			it.slotIdx++
			if ok {
				return tup, true, nil
			}
			continue
		}

		it.pinned.Unpin(false)
		it.pinned = nil
	}
}

// Close releases any page the iterator currently holds pinned. Callers
// that stop consuming a scan early must call Close.
func (it *TupleIterator) Close() {
	if it.pinned != nil {
		it.pinned.Unpin(false)
		it.pinned = nil
	}
}
