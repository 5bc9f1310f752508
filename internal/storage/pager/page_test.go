package pager

import (
	"crypto/rand"
	"testing"
)

func TestNewPageStartsEmpty(t *testing.T) {
	p := NewPage()
	if p.SlotCount() != 0 {
		t.Fatalf("SlotCount() = %d, want 0", p.SlotCount())
	}
	if p.FreePtr() != PageSize {
		t.Fatalf("FreePtr() = %d, want %d", p.FreePtr(), PageSize)
	}
	if got := p.AvailableSpace(); got != PageSize-headerSize {
		t.Fatalf("AvailableSpace() = %d, want %d", got, PageSize-headerSize)
	}
}

func TestInsertAndGetTuple(t *testing.T) {
	p := NewPage()
	tuples := []Tuple{
		NewTuple(TextValue("Alice"), Int32Value(30)),
		NewTuple(TextValue("Bob"), Int32Value(25)),
		NewTuple(TextValue("Carol"), Int32Value(40)),
	}

	for i, tup := range tuples {
		idx, err := p.InsertTuple(tup)
		if err != nil {
			t.Fatalf("InsertTuple(%d) failed: %v", i, err)
		}
		if idx != i {
			t.Fatalf("InsertTuple(%d) returned slot %d, want %d", i, idx, i)
		}
	}

	if p.SlotCount() != len(tuples) {
		t.Fatalf("SlotCount() = %d, want %d", p.SlotCount(), len(tuples))
	}

	for i, want := range tuples {
		got, ok := p.GetTuple(i)
		if !ok {
			t.Fatalf("GetTuple(%d) ok=false", i)
		}
		if got.Values[0].Text != want.Values[0].Text || got.Values[1].Int32 != want.Values[1].Int32 {
			t.Fatalf("GetTuple(%d) = %+v, want %+v", i, got, want)
		}
	}

	if _, ok := p.GetTuple(len(tuples)); ok {
		t.Fatalf("GetTuple(%d) ok=true, want false (out of range)", len(tuples))
	}
	if _, ok := p.GetTuple(-1); ok {
		t.Fatalf("GetTuple(-1) ok=true, want false")
	}
}

func TestPageInvariantsHoldAfterInsert(t *testing.T) {
	p := NewPage()
	for i := 0; i < 20; i++ {
		tup := NewTuple(Int32Value(int32(i)), TextValue("row"))
		if _, err := p.InsertTuple(tup); err != nil {
			t.Fatalf("InsertTuple(%d) failed: %v", i, err)
		}
		n := p.SlotCount()
		f := p.FreePtr()
		if f < headerSize+slotEntrySize*n || f > PageSize {
			t.Fatalf("invariant violated after insert %d: F=%d, N=%d", i, f, n)
		}
	}
}

func TestInsertTupleReportsFullPreciselyAtBoundary(t *testing.T) {
	p := NewPage()
	// A blob tuple sized to leave exactly one slot entry of slack. The
	// payload must be incompressible, or the Blob codec's s2 pass would
	// shrink it well below payloadLen and this wouldn't be a boundary
	// case at all.
	payloadLen := p.AvailableSpace() - slotEntrySize - 3 // 3 = tag + u16 length prefix
	payload := make([]byte, payloadLen)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	tup := NewTuple(BlobValue(payload))

	if _, err := p.InsertTuple(tup); err != nil {
		t.Fatalf("expected the exactly-fitting tuple to succeed, got %v", err)
	}
	if p.AvailableSpace() != 0 {
		t.Fatalf("AvailableSpace() = %d after exact fit, want 0", p.AvailableSpace())
	}

	if _, err := p.InsertTuple(NewTuple(ByteValue(1))); err == nil {
		t.Fatalf("expected Full error when no space remains")
	} else if _, ok := err.(ErrFull); !ok {
		t.Fatalf("expected ErrFull, got %T: %v", err, err)
	}
}

func TestWrapPagePreservesBytes(t *testing.T) {
	p := NewPage()
	p.InsertTuple(NewTuple(TextValue("hi")))
	raw := append([]byte(nil), p.Bytes()...)

	wrapped := WrapPage(raw)
	if wrapped.SlotCount() != p.SlotCount() {
		t.Fatalf("WrapPage SlotCount() = %d, want %d", wrapped.SlotCount(), p.SlotCount())
	}
	got, ok := wrapped.GetTuple(0)
	if !ok || got.Values[0].Text != "hi" {
		t.Fatalf("WrapPage GetTuple(0) = %+v, ok=%v", got, ok)
	}
}
