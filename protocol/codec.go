package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/encodeous/opera/state"
)

var (
	ErrTruncated = errors.New("protocol: truncated message")
	ErrType      = errors.New("protocol: unexpected message type")
	ErrSize      = errors.New("protocol: bad message size")
	ErrOverflow  = errors.New("protocol: buffer too small")
)

// Writer appends big-endian fields to a fixed buffer. Writing past the end
// sets Fault and every later write is dropped.
type Writer struct {
	buf   []byte
	pos   int
	Fault bool
}

func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) reserve(n int) []byte {
	if w.Fault || n > len(w.buf)-w.pos {
		w.Fault = true
		return nil
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

func (w *Writer) U8(v uint8) {
	if b := w.reserve(1); b != nil {
		b[0] = v
	}
}

func (w *Writer) U16(v uint16) {
	if b := w.reserve(2); b != nil {
		binary.BigEndian.PutUint16(b, v)
	}
}

func (w *Writer) U32(v uint32) {
	if b := w.reserve(4); b != nil {
		binary.BigEndian.PutUint32(b, v)
	}
}

func (w *Writer) Id(id state.NodeId) {
	w.Data(id[:])
}

func (w *Writer) Data(data []byte) {
	if b := w.reserve(len(data)); b != nil {
		copy(b, data)
	}
}

// Len is the number of bytes written so far.
func (w *Writer) Len() int {
	return w.pos
}

func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Begin writes a frame header with a placeholder length and returns the
// offset of the payload, to be passed to End.
func (w *Writer) Begin(typ byte) int {
	w.U8(typ)
	w.U8(0)
	return w.pos
}

// End patches the length of the frame opened at start.
func (w *Writer) End(start int) {
	if w.Fault {
		return
	}
	n := w.pos - start
	if n > 0xff {
		w.Fault = true
		return
	}
	w.buf[start-1] = byte(n)
}

func (w *Writer) Err() error {
	if w.Fault {
		return ErrOverflow
	}
	return nil
}

// Reader consumes big-endian fields from a bounded window. Reading past the
// end sets Fault and yields zero values.
type Reader struct {
	buf   []byte
	pos   int
	Fault bool
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) take(n int) []byte {
	if r.Fault || n < 0 || n > len(r.buf)-r.pos {
		r.Fault = true
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) Id() state.NodeId {
	var id state.NodeId
	if b := r.take(state.AddressSize); b != nil {
		copy(id[:], b)
	}
	return id
}

// Data returns the next n bytes without copying.
func (r *Reader) Data(n int) []byte {
	return r.take(n)
}

func (r *Reader) Skip(n int) {
	r.take(n)
}

// Sub consumes the next n bytes and returns a reader bounded to them.
func (r *Reader) Sub(n int) *Reader {
	b := r.take(n)
	if b == nil {
		return &Reader{Fault: true}
	}
	return &Reader{buf: b}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) Err() error {
	if r.Fault {
		return ErrTruncated
	}
	return nil
}
