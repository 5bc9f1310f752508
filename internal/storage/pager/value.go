// Package pager implements the on-disk record format for akasha: the
// tagged Value codec, the Tuple it composes into, and the fixed-size
// slotted page that tuples are packed into.
//
// The storage format consists of one file per relation made up of
// fixed-size 4 KiB pages. Every page is a self-contained slotted page;
// there is no shared superblock or free-list — the table heap above this
// package tracks which pages belong to which table.
package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/klauspost/compress/s2"
)

func mathFloat32bits(f float32) uint32     { return math.Float32bits(f) }
func mathFloat32frombits(b uint32) float32 { return math.Float32frombits(b) }
func mathFloat64bits(f float64) uint64     { return math.Float64bits(f) }
func mathFloat64frombits(b uint64) float64 { return math.Float64frombits(b) }

// ValueKind is the one-byte tag prefixing every encoded Value.
type ValueKind uint8

// Value kind tags. The numeric values are part of the on-disk format and
// must never change.
const (
	KindNull     ValueKind = 0x00
	KindInt32    ValueKind = 0x01
	KindInt64    ValueKind = 0x02
	KindFloat32  ValueKind = 0x03
	KindFloat64  ValueKind = 0x04
	KindText     ValueKind = 0x05
	KindBoolean  ValueKind = 0x06
	KindDate     ValueKind = 0x07
	KindDateTime ValueKind = 0x08
	KindBlob     ValueKind = 0x09
	KindByte     ValueKind = 0x0A

	// kindBlobCompressed is an on-disk-only tag: a Blob whose payload was
	// worth running through s2 at write time. It never appears as a
	// Value.Kind in memory — DecodeValue always hands back KindBlob.
	kindBlobCompressed ValueKind = 0x0B
)

// blobCompressionThreshold is the largest raw Blob length that is stored
// without trying to compress it. At or below it the s2 frame overhead
// isn't worth paying.
const blobCompressionThreshold = 128

// encodeBlobPayload returns the bytes to actually store for raw, and
// whether they're an s2-compressed frame. Incompressible or small
// blobs are stored as-is.
func encodeBlobPayload(raw []byte) (payload []byte, compressed bool) {
	if len(raw) <= blobCompressionThreshold {
		return raw, false
	}
	c := s2.Encode(nil, raw)
	if len(c) < len(raw) {
		return c, true
	}
	return raw, false
}

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindText:
		return "Text"
	case KindBoolean:
		return "Boolean"
	case KindDate:
		return "Date"
	case KindDateTime:
		return "DateTime"
	case KindBlob:
		return "Blob"
	case KindByte:
		return "Byte"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(k))
	}
}

// MaxBlobLen is the largest payload a Blob or Text value may carry; the
// length prefix is a little-endian uint16.
const MaxBlobLen = 65535

// Date is a plain year/month/day triple with no timezone.
type Date struct {
	Year  int32
	Month uint16
	Day   uint16
}

// DateTime is seconds and nanoseconds since the Unix epoch, UTC.
type DateTime struct {
	Seconds int64
	Nanos   uint32
}

// DateTimeFromTime converts a time.Time (truncating to UTC) into the
// on-disk DateTime representation.
func DateTimeFromTime(t time.Time) DateTime {
	u := t.UTC()
	return DateTime{Seconds: u.Unix(), Nanos: uint32(u.Nanosecond())}
}

// Time reconstructs a time.Time from a DateTime.
func (dt DateTime) Time() time.Time {
	return time.Unix(dt.Seconds, int64(dt.Nanos)).UTC()
}

// Value is a tagged union over every scalar akasha understands. Exactly
// one of the typed fields is meaningful; Kind says which.
type Value struct {
	Kind ValueKind

	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	Text    string
	Boolean bool
	Date    Date
	DateTime DateTime
	Blob    []byte
	Byte    byte
}

// NullValue is the canonical Null value.
func NullValue() Value { return Value{Kind: KindNull} }

func Int32Value(v int32) Value     { return Value{Kind: KindInt32, Int32: v} }
func Int64Value(v int64) Value     { return Value{Kind: KindInt64, Int64: v} }
func Float32Value(v float32) Value { return Value{Kind: KindFloat32, Float32: v} }
func Float64Value(v float64) Value { return Value{Kind: KindFloat64, Float64: v} }
func TextValue(v string) Value     { return Value{Kind: KindText, Text: v} }
func BoolValue(v bool) Value       { return Value{Kind: KindBoolean, Boolean: v} }
func DateValue(v Date) Value       { return Value{Kind: KindDate, Date: v} }
func DateTimeValue(v DateTime) Value { return Value{Kind: KindDateTime, DateTime: v} }
func BlobValue(v []byte) Value     { return Value{Kind: KindBlob, Blob: v} }
func ByteValue(v byte) Value       { return Value{Kind: KindByte, Byte: v} }

// IsNull reports whether the value is the Null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) isNumeric() bool {
	switch v.Kind {
	case KindInt32, KindInt64, KindFloat32, KindFloat64:
		return true
	default:
		return false
	}
}

func (v Value) asFloat64() float64 {
	switch v.Kind {
	case KindInt32:
		return float64(v.Int32)
	case KindInt64:
		return float64(v.Int64)
	case KindFloat32:
		return float64(v.Float32)
	case KindFloat64:
		return v.Float64
	default:
		panic("pager: asFloat64 on non-numeric value")
	}
}

// Compare defines Value's total order, used by Filter operators and
// predicate evaluation. Null sorts before every other variant and
// equals only itself. Numeric kinds compare across kind boundaries (an
// Int32 column against a Float64 literal is a common case from the
// compiler's filter lowering). Text compares byte-wise, Blob likewise.
// Values of two different, non-numeric kinds have no natural ordering;
// Compare falls back to ordering by kind tag so the relation is still
// total, which is all a filter's <, <=, > etc. require.
func (v Value) Compare(other Value) int {
	switch {
	case v.Kind == KindNull && other.Kind == KindNull:
		return 0
	case v.Kind == KindNull:
		return -1
	case other.Kind == KindNull:
		return 1
	}

	if v.isNumeric() && other.isNumeric() {
		a, b := v.asFloat64(), other.asFloat64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}

	if v.Kind == other.Kind {
		switch v.Kind {
		case KindText:
			return strings.Compare(v.Text, other.Text)
		case KindBoolean:
			return boolCompare(v.Boolean, other.Boolean)
		case KindByte:
			return sign(int(v.Byte) - int(other.Byte))
		case KindBlob:
			return bytes.Compare(v.Blob, other.Blob)
		case KindDate:
			if c := int(v.Date.Year) - int(other.Date.Year); c != 0 {
				return sign(c)
			}
			if c := int(v.Date.Month) - int(other.Date.Month); c != 0 {
				return sign(c)
			}
			return sign(int(v.Date.Day) - int(other.Date.Day))
		case KindDateTime:
			if v.DateTime.Seconds != other.DateTime.Seconds {
				return sign(int(v.DateTime.Seconds - other.DateTime.Seconds))
			}
			return sign(int(v.DateTime.Nanos) - int(other.DateTime.Nanos))
		}
	}

	return sign(int(v.Kind) - int(other.Kind))
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// exceedsMaxLen reports whether v's Text or Blob payload (after any
// blob compression) would overflow the u16 length prefix used by
// Append. Every other kind has a fixed width and never exceeds it.
func (v Value) exceedsMaxLen() bool {
	switch v.Kind {
	case KindText:
		return len(v.Text) > MaxBlobLen
	case KindBlob:
		payload, _ := encodeBlobPayload(v.Blob)
		return len(payload) > MaxBlobLen
	default:
		return false
	}
}

// EncodedLen returns the number of bytes Append would write for v.
func (v Value) EncodedLen() int {
	switch v.Kind {
	case KindNull:
		return 1
	case KindInt32:
		return 5
	case KindInt64:
		return 9
	case KindFloat32:
		return 5
	case KindFloat64:
		return 9
	case KindText:
		return 3 + len(v.Text)
	case KindBoolean:
		return 2
	case KindDate:
		return 9
	case KindDateTime:
		return 13
	case KindBlob:
		payload, _ := encodeBlobPayload(v.Blob)
		return 3 + len(payload)
	case KindByte:
		return 2
	default:
		panic(fmt.Sprintf("pager: unknown value kind %v", v.Kind))
	}
}

// Append encodes v onto buf and returns the extended slice.
func (v Value) Append(buf []byte) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// tag only
	case KindInt32:
		buf = appendUint32(buf, uint32(v.Int32))
	case KindInt64:
		buf = appendUint64(buf, uint64(v.Int64))
	case KindFloat32:
		buf = appendUint32(buf, mathFloat32bits(v.Float32))
	case KindFloat64:
		buf = appendUint64(buf, mathFloat64bits(v.Float64))
	case KindText:
		if len(v.Text) > MaxBlobLen {
			panic("pager: text value exceeds max length")
		}
		buf = appendUint16(buf, uint16(len(v.Text)))
		buf = append(buf, v.Text...)
	case KindBoolean:
		if v.Boolean {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindDate:
		buf = appendUint32(buf, uint32(v.Date.Year))
		buf = appendUint16(buf, v.Date.Month)
		buf = appendUint16(buf, v.Date.Day)
	case KindDateTime:
		buf = appendUint64(buf, uint64(v.DateTime.Seconds))
		buf = appendUint32(buf, v.DateTime.Nanos)
	case KindBlob:
		payload, compressed := encodeBlobPayload(v.Blob)
		if len(payload) > MaxBlobLen {
			panic("pager: blob value exceeds max length")
		}
		if compressed {
			buf[len(buf)-1] = byte(kindBlobCompressed)
		}
		buf = appendUint16(buf, uint16(len(payload)))
		buf = append(buf, payload...)
	case KindByte:
		buf = append(buf, v.Byte)
	default:
		panic(fmt.Sprintf("pager: unknown value kind %v", v.Kind))
	}
	return buf
}

// DecodeValue reads one Value from the front of data and returns it along
// with the number of bytes consumed. A malformed tag is a fatal program
// error: data always originates from this same codec, either freshly
// encoded or read back from a page this process wrote.
func DecodeValue(data []byte) (Value, int) {
	if len(data) == 0 {
		panic("pager: DecodeValue on empty buffer")
	}
	kind := ValueKind(data[0])
	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, 1
	case KindInt32:
		return Value{Kind: KindInt32, Int32: int32(binary.LittleEndian.Uint32(data[1:5]))}, 5
	case KindInt64:
		return Value{Kind: KindInt64, Int64: int64(binary.LittleEndian.Uint64(data[1:9]))}, 9
	case KindFloat32:
		return Value{Kind: KindFloat32, Float32: mathFloat32frombits(binary.LittleEndian.Uint32(data[1:5]))}, 5
	case KindFloat64:
		return Value{Kind: KindFloat64, Float64: mathFloat64frombits(binary.LittleEndian.Uint64(data[1:9]))}, 9
	case KindText:
		n := int(binary.LittleEndian.Uint16(data[1:3]))
		s := string(data[3 : 3+n])
		return Value{Kind: KindText, Text: s}, 3 + n
	case KindBoolean:
		return Value{Kind: KindBoolean, Boolean: data[1] != 0}, 2
	case KindDate:
		year := int32(binary.LittleEndian.Uint32(data[1:5]))
		month := binary.LittleEndian.Uint16(data[5:7])
		day := binary.LittleEndian.Uint16(data[7:9])
		return Value{Kind: KindDate, Date: Date{Year: year, Month: month, Day: day}}, 9
	case KindDateTime:
		secs := int64(binary.LittleEndian.Uint64(data[1:9]))
		nanos := binary.LittleEndian.Uint32(data[9:13])
		return Value{Kind: KindDateTime, DateTime: DateTime{Seconds: secs, Nanos: nanos}}, 13
	case KindBlob:
		n := int(binary.LittleEndian.Uint16(data[1:3]))
		b := make([]byte, n)
		copy(b, data[3:3+n])
		return Value{Kind: KindBlob, Blob: b}, 3 + n
	case kindBlobCompressed:
		n := int(binary.LittleEndian.Uint16(data[1:3]))
		raw, err := s2.Decode(nil, data[3:3+n])
		if err != nil {
			panic(fmt.Sprintf("pager: corrupt compressed blob: %v", err))
		}
		return Value{Kind: KindBlob, Blob: raw}, 3 + n
	case KindByte:
		return Value{Kind: KindByte, Byte: data[1]}, 2
	default:
		panic(fmt.Sprintf("pager: malformed value tag 0x%02X", data[0]))
	}
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// Tuple is an ordered sequence of Values with no header of its own.
type Tuple struct {
	Values []Value
}

// NewTuple builds a Tuple from the given values.
func NewTuple(values ...Value) Tuple {
	return Tuple{Values: values}
}

// exceedsMaxLen reports whether any value in t would overflow the u16
// length prefix Append relies on for Text/Blob encoding. A tuple like
// this can never be inserted into any page, however empty.
func (t Tuple) exceedsMaxLen() bool {
	for _, v := range t.Values {
		if v.exceedsMaxLen() {
			return true
		}
	}
	return false
}

// EncodedLen returns the byte size of the tuple's encoding.
func (t Tuple) EncodedLen() int {
	n := 0
	for _, v := range t.Values {
		n += v.EncodedLen()
	}
	return n
}

// Encode serializes the tuple as the concatenation of its values' encodings.
func (t Tuple) Encode() []byte {
	buf := make([]byte, 0, t.EncodedLen())
	for _, v := range t.Values {
		buf = v.Append(buf)
	}
	return buf
}

// DecodeTuple decodes a tuple from a byte slice produced by Encode,
// reading values until the slice is exhausted.
func DecodeTuple(data []byte) Tuple {
	var values []Value
	off := 0
	for off < len(data) {
		v, n := DecodeValue(data[off:])
		values = append(values, v)
		off += n
	}
	return Tuple{Values: values}
}
