package pager

import "encoding/binary"

// PageSize is the fixed size of every on-disk page, in bytes.
const PageSize = 4096

// slotEntrySize is the byte size of one {offset:u16, length:u16} slot
// directory entry.
const slotEntrySize = 4

// headerSize is the byte size of the fixed page header (slot count +
// free-space pointer).
const headerSize = 4

// ErrFull is returned by InsertTuple when a page has no room left for
// the encoded tuple plus its slot directory entry.
type ErrFull struct{}

func (ErrFull) Error() string { return "pager: page is full" }

// Page is a fixed 4096-byte slotted page. The zero value is not usable;
// construct one with NewPage or wrap an existing on-disk buffer with
// WrapPage.
//
// Layout:
//
//	bytes [0:2]          slot count N, little-endian u16
//	bytes [2:4]          free-space pointer F, little-endian u16
//	bytes [4:4+4N]       slot directory: N entries of {offset u16, length u16}
//	bytes [F:PageSize]   tuple bytes, packed downward from the high end
type Page struct {
	buf [PageSize]byte
}

// NewPage returns a freshly initialized, empty page: N=0, F=PageSize.
func NewPage() *Page {
	p := &Page{}
	p.InitNew()
	return p
}

// WrapPage wraps an existing PageSize-byte buffer (e.g. just read from
// disk) as a Page without modifying its contents. It panics if data is
// not exactly PageSize bytes.
func WrapPage(data []byte) *Page {
	if len(data) != PageSize {
		panic("pager: WrapPage requires exactly PageSize bytes")
	}
	p := &Page{}
	copy(p.buf[:], data)
	return p
}

// InitNew zeroes the page and resets it to the empty state (N=0, F=PageSize).
func (p *Page) InitNew() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	binary.LittleEndian.PutUint16(p.buf[0:2], 0)
	binary.LittleEndian.PutUint16(p.buf[2:4], PageSize)
}

// SlotCount returns N, the number of slots in the directory.
func (p *Page) SlotCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[0:2]))
}

func (p *Page) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(p.buf[0:2], uint16(n))
}

// FreePtr returns F, the offset of the lowest occupied tuple byte.
func (p *Page) FreePtr() int {
	return int(binary.LittleEndian.Uint16(p.buf[2:4]))
}

func (p *Page) setFreePtr(f int) {
	binary.LittleEndian.PutUint16(p.buf[2:4], uint16(f))
}

func (p *Page) slotOffset(i int) int {
	return headerSize + i*slotEntrySize
}

func (p *Page) readSlot(i int) (offset, length int) {
	o := p.slotOffset(i)
	offset = int(binary.LittleEndian.Uint16(p.buf[o : o+2]))
	length = int(binary.LittleEndian.Uint16(p.buf[o+2 : o+4]))
	return
}

func (p *Page) writeSlot(i, offset, length int) {
	o := p.slotOffset(i)
	binary.LittleEndian.PutUint16(p.buf[o:o+2], uint16(offset))
	binary.LittleEndian.PutUint16(p.buf[o+2:o+4], uint16(length))
}

// AvailableSpace returns the usable gap between the slot directory and
// the tuple region: max(0, F - (4+4N)).
func (p *Page) AvailableSpace() int {
	n := p.SlotCount()
	gap := p.FreePtr() - (headerSize + slotEntrySize*n)
	if gap < 0 {
		return 0
	}
	return gap
}

// InsertTuple encodes t and appends it to the page, returning its slot
// index. It returns ErrFull when there is not enough room for both the
// tuple bytes and a new slot directory entry, or when t carries a
// Text/Blob value too large for Append's u16 length prefix to ever
// encode — such a tuple can never fit any page, so it's reported the
// same way as running out of room rather than panicking.
func (p *Page) InsertTuple(t Tuple) (int, error) {
	if t.exceedsMaxLen() {
		return 0, ErrFull{}
	}
	data := t.Encode()
	n := p.SlotCount()
	freePtr := p.FreePtr()
	need := headerSize + slotEntrySize*(n+1)
	if freePtr-len(data) < need {
		return 0, ErrFull{}
	}
	newOffset := freePtr - len(data)
	copy(p.buf[newOffset:newOffset+len(data)], data)
	p.writeSlot(n, newOffset, len(data))
	p.setSlotCount(n + 1)
	p.setFreePtr(newOffset)
	return n, nil
}

// GetTuple decodes and returns the tuple at slot i. ok is false when i is
// out of range [0, SlotCount).
func (p *Page) GetTuple(i int) (t Tuple, ok bool) {
	if i < 0 || i >= p.SlotCount() {
		return Tuple{}, false
	}
	offset, length := p.readSlot(i)
	return DecodeTuple(p.buf[offset : offset+length]), true
}

// Bytes returns the raw page buffer, suitable for writing to disk.
func (p *Page) Bytes() []byte {
	return p.buf[:]
}
