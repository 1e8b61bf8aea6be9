package protocol

import (
	"fmt"

	"github.com/encodeous/opera/state"
)

// LinkCode is the link state a node advertises for a neighbor.
type LinkCode uint8

const (
	LinkNone LinkCode = 0
	LinkAsym LinkCode = 1
	LinkSym  LinkCode = 2
)

func (c LinkCode) String() string {
	switch c {
	case LinkNone:
		return "none"
	case LinkAsym:
		return "asym"
	case LinkSym:
		return "sym"
	}
	return fmt.Sprintf("link(%d)", uint8(c))
}

// diagnostic block codes in a Hello
const (
	blockSysInfo byte = 'S'
	blockIntInfo byte = 'M'

	sysInfoLen = 4
	intInfoLen = 2 + state.DiagStringSize
)

type Hello struct {
	Sender      state.NodeId
	Seq         uint16
	Vtime       uint8
	EnergyClass uint8
	Sym         []state.NodeId
	Asym        []state.NodeId

	SysInfo   uint16
	Stability uint8
	Color     uint8
	// the text block is only sent when IntInfo is non-zero
	IntInfo uint16
	StrInfo [state.DiagStringSize]byte
}

func (h *Hello) Encode(w *Writer) {
	start := w.Begin(TypeHello)
	w.Id(h.Sender)
	w.U16(h.Seq)
	w.U8(h.Vtime)
	w.U8(h.EnergyClass)
	putGroup(w, LinkSym, h.Sym)
	putGroup(w, LinkAsym, h.Asym)

	w.U8(blockSysInfo)
	w.U8(sysInfoLen)
	w.U16(h.SysInfo)
	w.U8(h.Stability)
	w.U8(h.Color)
	if h.IntInfo != 0 {
		w.U8(blockIntInfo)
		w.U8(intInfoLen)
		w.U16(h.IntInfo)
		w.Data(h.StrInfo[:])
	}
	w.End(start)
}

func putGroup(w *Writer, code LinkCode, ids []state.NodeId) {
	if len(ids) == 0 {
		return
	}
	w.U8(uint8(code))
	n := len(ids) * state.AddressSize
	if n > 0xff {
		w.Fault = true
		return
	}
	w.U8(uint8(n))
	for _, id := range ids {
		w.Id(id)
	}
}

// DecodeHello parses a Hello frame at the start of buf. Unknown blocks are
// skipped.
func DecodeHello(buf []byte) (*Hello, error) {
	r, err := openFrame(buf, TypeHello)
	if err != nil {
		return nil, err
	}
	h := &Hello{
		Sender:      r.Id(),
		Seq:         r.U16(),
		Vtime:       r.U8(),
		EnergyClass: r.U8(),
	}
	if r.Fault {
		return nil, fmt.Errorf("hello header: %w", ErrTruncated)
	}
	for r.Remaining() > 0 {
		code := r.U8()
		n := int(r.U8())
		if r.Fault || n > r.Remaining() {
			return nil, fmt.Errorf("hello block %d of %d bytes: %w", code, n, ErrTruncated)
		}
		block := r.Sub(n)
		switch code {
		case byte(LinkSym), byte(LinkAsym):
			if n%state.AddressSize != 0 {
				return nil, fmt.Errorf("link group of %d bytes: %w", n, ErrSize)
			}
			ids := make([]state.NodeId, 0, n/state.AddressSize)
			for block.Remaining() > 0 {
				ids = append(ids, block.Id())
			}
			if code == byte(LinkSym) {
				h.Sym = append(h.Sym, ids...)
			} else {
				h.Asym = append(h.Asym, ids...)
			}
		case blockSysInfo:
			h.SysInfo = block.U16()
			h.Stability = block.U8()
			h.Color = block.U8()
		case blockIntInfo:
			h.IntInfo = block.U16()
			copy(h.StrInfo[:], block.Data(min(block.Remaining(), state.DiagStringSize)))
		}
		if block.Fault {
			return nil, fmt.Errorf("hello block %d: %w", code, ErrTruncated)
		}
	}
	return h, nil
}

// LinkTo returns the link state the sender advertises for id.
func (h *Hello) LinkTo(id state.NodeId) LinkCode {
	for _, s := range h.Sym {
		if s == id {
			return LinkSym
		}
	}
	for _, a := range h.Asym {
		if a == id {
			return LinkAsym
		}
	}
	return LinkNone
}

// Size is the encoded length including the header.
func (h *Hello) Size() int {
	n := HeaderLen + state.AddressSize + 4 + 2 + sysInfoLen
	for _, g := range [][]state.NodeId{h.Sym, h.Asym} {
		if len(g) > 0 {
			n += 2 + len(g)*state.AddressSize
		}
	}
	if h.IntInfo != 0 {
		n += 2 + intInfoLen
	}
	return n
}
