package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"akasha/internal/storage/pager"
	"github.com/dchest/siphash"
)

// DefaultShardCount and DefaultSlotsPerShard size a BufferPool when the
// caller doesn't override them: 4 shards of 1024 frames apiece, 16 MiB
// total.
const (
	DefaultShardCount    = 4
	DefaultSlotsPerShard = 1024
)

const emptyKey = math.MaxUint64

// evictingPin is the sentinel pin value a slot holds while its victim is
// being chosen and its new page read in; it excludes every other pinner
// and evictor from the slot.
const evictingPin = math.MaxInt64

func makeKey(fileID, pageID uint32) uint64 {
	return uint64(fileID)<<32 | uint64(pageID)
}

func splitKey(key uint64) (fileID, pageID uint32) {
	return uint32(key >> 32), uint32(key)
}

// slot is one buffer-pool frame: a pinned, page-sized buffer plus the
// atomic metadata the clock-sweep algorithm needs. Every field is
// accessed exclusively through atomics — there is no per-slot mutex.
type slot struct {
	key    atomic.Uint64
	pin    atomic.Int64
	refBit atomic.Bool
	dirty  atomic.Bool
	buf    [pager.PageSize]byte
}

// shard owns a fixed set of slots and a clock hand. Shards never touch
// each other's slots, so no cross-shard locking is needed.
type shard struct {
	slots []slot
	hand  atomic.Uint64
	io    *IoManager
}

func newShard(slotCount int, io *IoManager) *shard {
	s := &shard{slots: make([]slot, slotCount), io: io}
	for i := range s.slots {
		s.slots[i].key.Store(emptyKey)
	}
	return s
}

// getPage returns a pinned slot holding the requested page, reading it
// from disk (or fabricating an empty page) on a miss.
func (s *shard) getPage(ctx context.Context, fileID, pageID uint32) (*slot, error) {
	key := makeKey(fileID, pageID)

	// Fast path: a single scan for an already-resident, pinnable copy.
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.key.Load() != key {
			continue
		}
		for {
			p := sl.pin.Load()
			if p == evictingPin {
				break // treat as a miss; fall through to the victim search.
			}
			if sl.pin.CompareAndSwap(p, p+1) {
				if sl.key.Load() == key {
					sl.refBit.Store(true)
					return sl, nil
				}
				sl.pin.Add(-1)
				break
			}
		}
		break
	}

	// Victim search: clock-sweep until a slot can be claimed for key.
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx := int(s.hand.Add(1)-1) % len(s.slots)
		sl := &s.slots[idx]

		if sl.pin.Load() != 0 {
			continue
		}
		if !sl.pin.CompareAndSwap(0, evictingPin) {
			continue
		}
		if sl.refBit.Load() {
			sl.refBit.Store(false)
			sl.pin.Store(0)
			runtime.Gosched()
			continue
		}

		oldKey := sl.key.Load()
		if oldKey != emptyKey && sl.dirty.CompareAndSwap(true, false) {
			oldFileID, oldPageID := splitKey(oldKey)
			s.io.ScheduleWrite(oldFileID, oldPageID, sl.buf[:])
		}

		sl.key.Store(key)
		if err := s.io.ReadInto(fileID, pageID, sl.buf[:]); err != nil {
			sl.key.Store(emptyKey)
			sl.pin.Store(0)
			return nil, err
		}
		// A page that was never written reads back as all zeros (F=0);
		// give it the empty-page header N=0, F=PageSize.
		if binary.LittleEndian.Uint16(sl.buf[2:4]) == 0 {
			binary.LittleEndian.PutUint16(sl.buf[2:4], pager.PageSize)
		}
		sl.pin.Store(1)
		sl.refBit.Store(true)
		return sl, nil
	}
}

func (s *shard) find(key uint64) *slot {
	for i := range s.slots {
		if s.slots[i].key.Load() == key {
			return &s.slots[i]
		}
	}
	return nil
}

func (s *shard) unpin(fileID, pageID uint32, wasDirty bool) {
	sl := s.find(makeKey(fileID, pageID))
	if sl == nil {
		return
	}
	prev := sl.pin.Add(-1) + 1
	if wasDirty && prev == 1 {
		sl.dirty.Store(true)
	}
}

func (s *shard) unpinAndFlush(fileID, pageID uint32, wasDirty bool) {
	sl := s.find(makeKey(fileID, pageID))
	if sl == nil {
		return
	}
	prev := sl.pin.Add(-1) + 1
	if wasDirty && prev == 1 {
		sl.dirty.Store(false)
		s.io.ScheduleWrite(fileID, pageID, sl.buf[:])
	}
}

func (s *shard) flushDirty() {
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.dirty.CompareAndSwap(true, false) {
			continue
		}
		key := sl.key.Load()
		if key == emptyKey {
			continue
		}
		fileID, pageID := splitKey(key)
		s.io.ScheduleWrite(fileID, pageID, sl.buf[:])
	}
}

// BufferPool is a fixed-capacity, sharded cache of page frames with
// clock-sweep eviction. Shard selection is a SipHash-2-4 of (fileID,
// pageID) mod shardCount; each shard is internally lock-free,
// coordinated only through the atomic fields of its slots.
type BufferPool struct {
	shards []*shard
	io     *IoManager
}

// NewBufferPool creates a pool of shardCount shards, slotsPerShard slots
// each, backed by io for page reads and scheduled write-back.
func NewBufferPool(io *IoManager, shardCount, slotsPerShard int) *BufferPool {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	if slotsPerShard <= 0 {
		slotsPerShard = DefaultSlotsPerShard
	}
	p := &BufferPool{shards: make([]*shard, shardCount), io: io}
	for i := range p.shards {
		p.shards[i] = newShard(slotsPerShard, io)
	}
	return p
}

// shardHashK0/K1 key the SipHash-2-4 used to spread (fileID, pageID)
// pairs across shards. Fixed, not secret: the goal is avalanche, not
// resistance to an adversarial key chooser.
const (
	shardHashK0 = 0x9e3779b97f4a7c15
	shardHashK1 = 0xbf58476d1ce4e5b9
)

func (p *BufferPool) pickShard(fileID, pageID uint32) *shard {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], fileID)
	binary.LittleEndian.PutUint32(buf[4:8], pageID)
	h := siphash.Hash(shardHashK0, shardHashK1, buf[:])
	return p.shards[h%uint64(len(p.shards))]
}

// PinnedPage is a live claim on a buffer-pool frame. Callers must call
// Unpin or UnpinAndFlush exactly once per successful GetPage.
type PinnedPage struct {
	pool   *BufferPool
	sh     *shard
	fileID uint32
	pageID uint32
	sl     *slot
}

// Bytes returns the frame's raw page-sized buffer. Mutations are visible
// to every other pinner of the same page and are only persisted once the
// page is unpinned dirty and later written back.
func (pp *PinnedPage) Bytes() []byte { return pp.sl.buf[:] }

// Page returns a copy of the frame as a slotted page. Changes to the
// copy reach the frame only through PutPage.
func (pp *PinnedPage) Page() *pager.Page { return pager.WrapPage(pp.sl.buf[:]) }

// PutPage overwrites the frame with the bytes of p (used after mutating a
// pager.Page obtained via a copy rather than in place).
func (pp *PinnedPage) PutPage(p *pager.Page) {
	copy(pp.sl.buf[:], p.Bytes())
}

// Unpin releases the pin. dirty marks whether the caller modified the
// page; the pool defers the actual write-back to eviction time or an
// explicit Flush.
func (pp *PinnedPage) Unpin(dirty bool) {
	pp.sh.unpin(pp.fileID, pp.pageID, dirty)
}

// UnpinAndFlush releases the pin and, if dirty, schedules an immediate
// write-back rather than waiting for eviction or Flush.
func (pp *PinnedPage) UnpinAndFlush(dirty bool) {
	pp.sh.unpinAndFlush(pp.fileID, pp.pageID, dirty)
}

// GetPage returns a pinned frame holding fileID/pageID, reading it from
// disk (or fabricating an empty page, N=0 and F=PageSize, if the file is
// shorter) on a miss.
func (p *BufferPool) GetPage(ctx context.Context, fileID, pageID uint32) (*PinnedPage, error) {
	sh := p.pickShard(fileID, pageID)
	sl, err := sh.getPage(ctx, fileID, pageID)
	if err != nil {
		return nil, fmt.Errorf("storage: get page %d of relation %d: %w", pageID, fileID, err)
	}
	return &PinnedPage{pool: p, sh: sh, fileID: fileID, pageID: pageID, sl: sl}, nil
}

// Flush schedules a write-back for every dirty frame across every shard
// and blocks until the IoManager has drained the resulting writes.
func (p *BufferPool) Flush() {
	for _, sh := range p.shards {
		sh.flushDirty()
	}
	p.io.Flush()
}
