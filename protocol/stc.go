package protocol

import (
	"fmt"

	"github.com/encodeous/opera/state"
)

// tree flag bits carried by STC and TreeStatus
const (
	FlagNewNeighbor    uint8 = 1 << 0
	FlagColorConflict  uint8 = 1 << 1
	FlagTreeChange     uint8 = 1 << 2
	FlagInconsistent   uint8 = 1 << 4
	FlagBecameUnstable uint8 = 1 << 5
	FlagStable         uint8 = 1 << 6
	FlagColored        uint8 = 1 << 7
)

const (
	StcLen        = 3*state.AddressSize + 2 + 2 + 1 + 1 + 1 + 2
	TreeStatusLen = 2*state.AddressSize + 2 + 2 + 2 + 1
)

// Stc is a spanning tree construction advertisement.
type Stc struct {
	Sender  state.NodeId
	Seq     uint16
	Root    state.NodeId
	Cost    uint16
	Parent  state.NodeId
	Vtime   uint8
	TTL     uint8
	Flags   uint8
	TreeSeq uint16
}

func (m *Stc) Colored() bool {
	return m.Flags&FlagColored != 0
}

func (m *Stc) Encode(w *Writer) {
	start := w.Begin(TypeStc)
	w.Id(m.Sender)
	w.U16(m.Seq)
	w.Id(m.Root)
	w.U16(m.Cost)
	w.Id(m.Parent)
	w.U8(m.Vtime)
	w.U8(m.TTL)
	w.U8(m.Flags)
	w.U16(m.TreeSeq)
	w.End(start)
}

func DecodeStc(buf []byte) (*Stc, error) {
	r, err := openFrame(buf, TypeStc)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != StcLen {
		return nil, fmt.Errorf("stc of %d bytes, expected %d: %w", r.Remaining(), StcLen, ErrSize)
	}
	m := &Stc{
		Sender:  r.Id(),
		Seq:     r.U16(),
		Root:    r.Id(),
		Cost:    r.U16(),
		Parent:  r.Id(),
		Vtime:   r.U8(),
		TTL:     r.U8(),
		Flags:   r.U8(),
		TreeSeq: r.U16(),
	}
	return m, r.Err()
}

// TreeStatus reports the stability of a subtree to the parent and children.
type TreeStatus struct {
	Sender     state.NodeId
	Seq        uint16
	Root       state.NodeId
	TreeSeq    uint16
	Descendant uint16
	Flags      uint8
}

func (m *TreeStatus) Encode(w *Writer) {
	start := w.Begin(TypeTreeStatus)
	w.Id(m.Sender)
	w.U16(m.Seq)
	w.Id(m.Root)
	w.U16(m.TreeSeq)
	w.U16(m.Descendant)
	w.U8(m.Flags)
	w.End(start)
}

func DecodeTreeStatus(buf []byte) (*TreeStatus, error) {
	r, err := openFrame(buf, TypeTreeStatus)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != TreeStatusLen {
		return nil, fmt.Errorf("tree status of %d bytes, expected %d: %w", r.Remaining(), TreeStatusLen, ErrSize)
	}
	m := &TreeStatus{
		Sender:     r.Id(),
		Seq:        r.U16(),
		Root:       r.Id(),
		TreeSeq:    r.U16(),
		Descendant: r.U16(),
		Flags:      r.U8(),
	}
	return m, r.Err()
}
