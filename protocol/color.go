package protocol

import (
	"fmt"

	"github.com/encodeous/opera/state"
)

// AddrPriority is the full coloring priority of a node: the priority value,
// with ties broken by the larger address.
type AddrPriority struct {
	Addr     state.NodeId
	Priority uint32
}

func (p AddrPriority) None() bool {
	return p.Priority == state.PriorityNone
}

// Compare orders by priority, then by address.
func (p AddrPriority) Compare(o AddrPriority) int {
	switch {
	case p.Priority < o.Priority:
		return -1
	case p.Priority > o.Priority:
		return 1
	}
	return p.Addr.Compare(o.Addr)
}

func (p AddrPriority) String() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Priority)
}

// Color is the SERENA coloring message.
type Color struct {
	Sender   state.NodeId
	Root     state.NodeId
	TreeSeq  uint16
	NbColor  uint8
	Color    uint8
	Priority uint32
	Max1     []AddrPriority
	Max2     []AddrPriority
	Bitmap1  Bitmap
	Bitmap2  Bitmap
}

// ColorCodec encodes Color messages with one or four byte priorities.
type ColorCodec struct {
	LongPriority bool
}

func (c ColorCodec) putPriority(w *Writer, p uint32) {
	if c.LongPriority {
		w.U32(p)
	} else {
		w.U8(uint8(min(p, 0xff)))
	}
}

func (c ColorCodec) getPriority(r *Reader) uint32 {
	if c.LongPriority {
		return r.U32()
	}
	return uint32(r.U8())
}

func (c ColorCodec) putList(w *Writer, l []AddrPriority) {
	w.U8(uint8(len(l)))
	for _, p := range l {
		c.putPriority(w, p.Priority)
		w.Id(p.Addr)
	}
}

func (c ColorCodec) getList(r *Reader, limit int) ([]AddrPriority, error) {
	n := int(r.U8())
	if n > limit {
		return nil, fmt.Errorf("priority list of %d entries, at most %d: %w", n, limit, ErrSize)
	}
	var l []AddrPriority
	for range n {
		p := c.getPriority(r)
		l = append(l, AddrPriority{Priority: p, Addr: r.Id()})
	}
	return l, nil
}

func (c ColorCodec) Encode(w *Writer, m *Color) {
	start := w.Begin(TypeColor)
	w.Id(m.Sender)
	w.Id(m.Root)
	w.U16(m.TreeSeq)
	w.U8(m.NbColor)
	w.U8(m.Color)
	c.putPriority(w, m.Priority)
	c.putList(w, m.Max1)
	c.putList(w, m.Max2)
	m.Bitmap1.encode(w)
	m.Bitmap2.encode(w)
	w.End(start)
}

func (c ColorCodec) Decode(buf []byte) (*Color, error) {
	r, err := openFrame(buf, TypeColor)
	if err != nil {
		return nil, err
	}
	m := &Color{
		Sender:   r.Id(),
		Root:     r.Id(),
		TreeSeq:  r.U16(),
		NbColor:  r.U8(),
		Color:    r.U8(),
		Priority: c.getPriority(r),
	}
	if m.Max1, err = c.getList(r, state.MaxPrio1); err != nil {
		return nil, err
	}
	if m.Max2, err = c.getList(r, state.MaxPrio2); err != nil {
		return nil, err
	}
	if !m.Bitmap1.decode(r) || !m.Bitmap2.decode(r) {
		return nil, fmt.Errorf("color bitmap larger than %d bytes: %w", state.BitmapSize, ErrSize)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
