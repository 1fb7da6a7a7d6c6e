package wire

import (
	"encoding/binary"
	"math"
)

// Writer accumulates UADP-encoded bytes. It is the encode-side counterpart
// to Reader, used by tests to build frames and, eventually, by the
// publish side (not re-specified here).
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer with the given initial capacity hint.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded buffer accumulated so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// String encodes s as an OPC UA String (int32 length + UTF-8 bytes).
func (w *Writer) String(s string) error {
	if len(s) > math.MaxInt32 {
		return ErrStringTooLong
	}
	w.Int32(int32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// ByteString encodes b as an OPC UA ByteString. A nil slice encodes as
// length -1 (null).
func (w *Writer) ByteString(b []byte) error {
	if b == nil {
		w.Int32(-1)
		return nil
	}
	if len(b) > math.MaxInt32 {
		return ErrStringTooLong
	}
	w.Int32(int32(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

func (w *Writer) GUID(g [16]byte) {
	w.buf = append(w.buf, g[:]...)
}

// Raw appends b verbatim, used for pre-encoded payload/footer sections.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}
