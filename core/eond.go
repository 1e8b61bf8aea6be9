package core

import (
	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
)

// NeighborState uses the same values as protocol.LinkCode.
type NeighborState uint8

const (
	NeighborNone = NeighborState(protocol.LinkNone)
	NeighborAsym = NeighborState(protocol.LinkAsym)
	NeighborSym  = NeighborState(protocol.LinkSym)
)

func (s NeighborState) String() string {
	return protocol.LinkCode(s).String()
}

type Neighbor struct {
	Addr        state.NodeId
	State       NeighborState
	SymExpiry   state.Tick
	AsymExpiry  state.Tick
	Nb1Hop      uint8
	EnergyClass uint8
	LastPower   uint8
	Received    uint8
}

func (n *Neighbor) computeState(now state.Tick) NeighborState {
	switch {
	case n.SymExpiry >= now:
		return NeighborSym
	case n.AsymExpiry >= now:
		return NeighborAsym
	}
	return NeighborNone
}

// Eond maintains the 1-hop neighbor table from Hello messages.
type Eond struct {
	engine
	table []Neighbor
	seq   uint16
	next  state.Tick
}

func NewEond(base *state.Base, host engineHost) *Eond {
	d := &Eond{engine: engine{Base: base, host: host}}
	d.Reset()
	return d
}

func (d *Eond) Reset() {
	if d.Cfg.Eond.Elastic {
		d.table = make([]Neighbor, 0, 2)
	} else {
		d.table = make([]Neighbor, state.MaxNeighbor)
	}
	d.seq = 0
	d.next = state.TickUndefined
}

func (d *Eond) Start() {
	d.next = d.After(d.Cfg.Eond.HelloInterval, d.Cfg.Eond.Jitter)
}

// Table returns the slots of the neighbor table, None entries included.
func (d *Eond) Table() []Neighbor {
	return d.table
}

// Find returns the non-None entry for addr.
func (d *Eond) Find(addr state.NodeId) *Neighbor {
	for i := range d.table {
		if n := &d.table[i]; n.State != NeighborNone && n.Addr == addr {
			return n
		}
	}
	return nil
}

func (d *Eond) IsSym(addr state.NodeId) bool {
	n := d.Find(addr)
	return n != nil && n.State == NeighborSym
}

func (d *Eond) SymNeighbors() []state.NodeId {
	var res []state.NodeId
	for _, n := range d.table {
		if n.State == NeighborSym {
			res = append(res, n.Addr)
		}
	}
	return res
}

// EstimateNb2Hop sums the symmetric neighbor counts advertised by the
// symmetric neighbors.
func (d *Eond) EstimateNb2Hop() int {
	res := 0
	for _, n := range d.table {
		if n.State == NeighborSym {
			res += int(n.Nb1Hop)
		}
	}
	return res
}

func (d *Eond) ReceptionCost() uint16 {
	var res uint16
	for _, n := range d.table {
		if n.State == NeighborSym {
			res += state.ReceptionCoef(n.EnergyClass)
		}
	}
	return res
}

// ForwardingCost is the cost this node adds to a tree path.
func (d *Eond) ForwardingCost() uint16 {
	return d.ReceptionCost() + state.TransmissionCoef(d.EnergyClass)
}

func (d *Eond) setState(i int, s NeighborState) {
	n := &d.table[i]
	if n.State == s {
		return
	}
	d.log(NeighborStateChanged, "neighbor state changed", "addr", n.Addr, "old", n.State, "new", s)
	d.notify(neighborChanged{addr: n.Addr, old: n.State, new: s, index: i})
	n.State = s
}

// CheckExpiration recomputes the state of every entry from the clock. It is
// the only path that demotes an entry under delayed state update.
func (d *Eond) CheckExpiration() {
	for i := range d.table {
		if d.table[i].State != NeighborNone {
			d.setState(i, d.table[i].computeState(d.Now))
		}
	}
}

// Process handles the Hello frame at the start of buf and returns the number
// of bytes consumed.
func (d *Eond) Process(buf []byte, power uint8) (int, error) {
	h, err := protocol.DecodeHello(buf)
	if err != nil {
		d.log(MalformedMessage, "bad hello", "err", err)
		return 0, err
	}
	n := protocol.HeaderLen + int(buf[1])
	if h.Sender == d.Id {
		return n, nil
	}
	mine := NeighborState(h.LinkTo(d.Id))
	validity := state.VtimeToTicks(h.Vtime, d.Cfg.Cref)
	d.update(h.Sender, power, validity, mine, uint8(min(len(h.Sym), 0xff)), h.EnergyClass)
	return n, nil
}

func (d *Eond) slot(addr state.NodeId) (idx int, free int) {
	idx, free = -1, -1
	for i := range d.table {
		n := &d.table[i]
		if n.State != NeighborNone && n.Addr == addr {
			return i, free
		}
		if free < 0 && n.State == NeighborNone {
			free = i
		}
	}
	return -1, free
}

func (d *Eond) update(addr state.NodeId, power uint8, validity state.Tick, mine NeighborState, nb1Hop, energy uint8) {
	cfg := &d.Cfg.Eond
	idx, free := d.slot(addr)
	if idx < 0 {
		if power < cfg.PwrHigh {
			return
		}
		if free < 0 && len(d.table) < state.MaxNeighbor {
			d.table = append(d.table, Neighbor{})
			free = len(d.table) - 1
		}
		if free < 0 {
			d.log(NeighborTableFull, "neighbor table full", "addr", addr)
			return
		}
		idx = free
		d.table[idx] = Neighbor{
			Addr:       addr,
			SymExpiry:  state.Expired(d.Now),
			AsymExpiry: state.Expired(d.Now),
		}
	}
	n := &d.table[idx]
	if n.Received < 0xff {
		n.Received++
	}
	n.LastPower = power

	if power < cfg.PwrLow {
		n.SymExpiry = state.Expired(d.Now)
		n.AsymExpiry = state.Expired(d.Now)
		if !cfg.DelayedUpdate {
			d.setState(idx, NeighborNone)
		}
		return
	}

	n.AsymExpiry = d.Now + validity
	if mine == NeighborAsym || mine == NeighborSym {
		n.SymExpiry = d.Now + validity
	}
	n.Nb1Hop = nb1Hop
	if energy >= state.EnergyClassNb {
		d.log(EnergyClassClamped, "hello energy class is too high", "addr", addr, "class", energy)
		energy = state.EnergyClassNb - 1
	}
	n.EnergyClass = energy

	s := n.computeState(d.Now)
	if cfg.DelayedUpdate && s < n.State {
		s = n.State
	}
	d.setState(idx, s)
}

// Generate writes a Hello into buf.
func (d *Eond) Generate(buf []byte) (int, error) {
	d.next = d.After(d.Cfg.Eond.HelloInterval, d.Cfg.Eond.Jitter)
	d.CheckExpiration()

	h := protocol.Hello{
		Sender:      d.Id,
		Seq:         d.seq,
		Vtime:       state.TicksToVtime(d.Cfg.Eond.HoldTime, d.Cfg.Cref),
		EnergyClass: d.EnergyClass,
	}
	d.seq++
	for _, n := range d.table {
		switch n.State {
		case NeighborSym:
			h.Sym = append(h.Sym, n.Addr)
		case NeighborAsym:
			h.Asym = append(h.Asym, n.Addr)
		}
	}

	diag := &d.Diag
	if diag.Errors > 0 {
		diag.SysInfo |= state.SysInfoHasError
	}
	if diag.Warnings > 0 {
		diag.SysInfo |= state.SysInfoHasWarning
	}
	h.SysInfo = diag.SysInfo
	h.Stability = diag.Stability
	h.Color = diag.Color
	h.IntInfo = diag.IntInfo
	h.StrInfo = diag.StrInfo

	w := protocol.NewWriter(buf)
	h.Encode(w)
	if err := w.Err(); err != nil {
		d.log(BufferTooSmall, "packet buffer too small for hello", "size", len(buf))
		return 0, err
	}
	return w.Len(), nil
}

func (d *Eond) Wakeup() state.WakeupCondition {
	return state.WakeupCondition{Hard: state.TickUndefined, Soft: d.next}
}

// NotifyWakeup generates a Hello when one is due. buf may be nil.
func (d *Eond) NotifyWakeup(buf []byte) int {
	if buf == nil || state.LargeUndefLess(d.Now, d.next) {
		return 0
	}
	d.CheckExpiration()
	n, err := d.Generate(buf)
	if err != nil {
		d.log(GenerateFailed, "hello generation failed", "err", err)
		return 0
	}
	return n
}
