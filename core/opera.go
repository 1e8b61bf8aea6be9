package core

import (
	"slices"

	"github.com/encodeous/opera/perf"
	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
)

type FilterMode uint8

const (
	FilterNone FilterMode = iota
	FilterReject
	FilterOnlyAccept
)

func (m FilterMode) String() string {
	switch m {
	case FilterReject:
		return "reject"
	case FilterOnlyAccept:
		return "only_accept"
	}
	return "none"
}

// Opera drives the three engines of one node. It is not safe for
// concurrent use.
type Opera struct {
	*state.Base
	Host   Host
	Eond   *Eond
	Eostc  *Eostc
	Serena *Serena

	wakeup            state.WakeupCondition
	coloredRoot       bool
	shouldStartSerena bool
	cycleTransmit     int
	blocked           bool
	shouldReset       bool
	shouldIncTreeSeq  bool
	filterMode        FilterMode
	filter            []state.NodeId
}

func New(base *state.Base, host Host) *Opera {
	if host == nil {
		host = NopHost{}
	}
	o := &Opera{Base: base, Host: host}
	o.Eond = NewEond(base, o)
	o.Eostc = NewEostc(base, o, o.Eond)
	o.Serena = NewSerena(base, o)
	o.wakeup = state.NoWakeup()
	return o
}

// Start resets every engine and starts neighbor discovery. A tree root has
// to be declared again with StartEostc.
func (o *Opera) Start() {
	o.Eond.Reset()
	o.Eostc.Reset()
	o.Serena.Reset()
	o.coloredRoot = false
	o.shouldStartSerena = false
	o.cycleTransmit = 0
	o.blocked = false
	o.shouldReset = false
	o.shouldIncTreeSeq = false
	o.filterMode = FilterNone
	o.filter = nil
	o.Eond.Start()
	o.updateWakeup()
}

// StartEostc makes this node the root of a tree.
func (o *Opera) StartEostc(colored bool) error {
	if err := o.Eostc.Start(colored); err != nil {
		return err
	}
	o.coloredRoot = o.coloredRoot || colored
	o.updateWakeup()
	return nil
}

func (o *Opera) StopEostc() {
	o.Eostc.Stop()
	o.coloredRoot = false
	o.updateWakeup()
}

func (o *Opera) ColoredRoot() bool { return o.coloredRoot }

func (o *Opera) Wakeup() state.WakeupCondition { return o.wakeup }

func (o *Opera) Blocked() bool { return o.blocked }

func (o *Opera) SetBlocked(v bool) { o.blocked = v }

// RequestReset restarts the node at the next cycle.
func (o *Opera) RequestReset() { o.shouldReset = true }

// RequestTreeSeqInc starts a new coloring round of the own colored tree at
// the next cycle.
func (o *Opera) RequestTreeSeqInc() { o.shouldIncTreeSeq = true }

func (o *Opera) SetFilter(mode FilterMode, addrs []state.NodeId) {
	o.filterMode = mode
	o.filter = slices.Clone(addrs[:min(len(addrs), state.MaxFilterAddress)])
}

func (o *Opera) Filter() (FilterMode, []state.NodeId) {
	return o.filterMode, o.filter
}

func (o *Opera) accepted(addr state.NodeId) bool {
	switch o.filterMode {
	case FilterReject:
		return !slices.Contains(o.filter, addr)
	case FilterOnlyAccept:
		return slices.Contains(o.filter, addr)
	}
	return true
}

func (o *Opera) eondActive() bool {
	d := o.Cfg.EondStartDelay
	return d == 0 || o.Now >= d
}

func (o *Opera) eostcActive() bool {
	d := o.Cfg.EostcStartDelay
	return d == 0 || o.Now >= d
}

func (o *Opera) rateLimited() bool {
	limit := o.Cfg.TransmitRateLimit
	return limit != 0 && o.cycleTransmit >= limit
}

func (o *Opera) updateWakeup() {
	w := state.NoWakeup()
	if o.eondActive() {
		w.Update(o.Eond.Wakeup())
	}
	if o.eostcActive() {
		w.Update(o.Eostc.Wakeup())
	}
	if o.Serena.Started() {
		w.Update(o.Serena.Wakeup())
	}
	o.wakeup = w
}

// handleEvent runs the periodic maintenance and lets the engines, in order,
// fill buf with at most one message. buf may be nil.
func (o *Opera) handleEvent(buf []byte) int {
	o.Eond.CheckExpiration()
	o.Eostc.ExpireTrees()

	sent := 0
	try := func(gen func([]byte) int) {
		if sent > 0 {
			gen(nil)
			return
		}
		sent = gen(buf)
	}
	if o.eondActive() {
		try(o.Eond.NotifyWakeup)
	}
	if o.eostcActive() {
		try(o.Eostc.NotifyWakeup)
	}
	try(o.Serena.NotifyWakeup)
	o.updateWakeup()

	if sent > 0 {
		o.cycleTransmit++
		perf.FrameSent(buf[0], sent)
		o.Log(MessageSent, "sent", "msg", protocol.ColorCodec{LongPriority: o.Cfg.Serena.LongPriority}.Dump(buf[:sent]))
	}
	return sent
}

// AdvanceTo moves the clock to now and runs the engines without a buffer.
// It returns true when a transmit buffer is wanted.
func (o *Opera) AdvanceTo(now state.Tick) bool {
	if o.blocked {
		return false
	}
	if o.shouldReset {
		o.Start()
		o.Log(EngineReset, "engine reset")
		return false
	}
	if o.shouldIncTreeSeq {
		o.incColoredTreeSeq()
	}
	o.Now = max(o.Now, now)
	o.cycleTransmit = 0
	o.checkSerenaStart()
	o.handleEvent(nil)
	if o.rateLimited() {
		return false
	}
	return state.LargeUndefLessEq(o.wakeup.Soft, o.Now)
}

// NewCycle advances the clock by one tick.
func (o *Opera) NewCycle() bool {
	return o.AdvanceTo(o.Now + 1)
}

// WakeupWithBuffer offers a transmit buffer. It returns the number of bytes
// written and whether another buffer is wanted in the same tick.
func (o *Opera) WakeupWithBuffer(buf []byte) (int, bool) {
	if o.blocked || o.shouldReset {
		return 0, false
	}
	o.checkSerenaStart()
	n := o.handleEvent(buf)
	if o.rateLimited() {
		return n, false
	}
	return n, state.LargeUndefLessEq(o.wakeup.Soft, o.Now)
}

// PacketReceived processes one received frame. power is the link quality
// of the reception.
func (o *Opera) PacketReceived(buf []byte, power uint8) {
	o.checkSerenaStart()
	o.processPacket(buf, power)
	o.updateWakeup()
}

func (o *Opera) processPacket(buf []byte, power uint8) {
	f, err := protocol.ReadFrame(buf)
	if err != nil {
		o.Log(MalformedMessage, "bad frame", "err", err, "size", len(buf))
		return
	}
	if sender, ok := protocol.Sender(buf); ok && !o.accepted(sender) {
		o.Log(MessageIgnored, "filtered", "from", sender)
		perf.DroppedFramesPerSec.Add(1)
		return
	}
	perf.FrameReceived(len(f.Raw))
	switch f.Type {
	case protocol.TypeHello:
		_, err = o.Eond.Process(f.Raw, power)
	case protocol.TypeColor:
		_, err = o.Serena.ProcessColor(f.Raw)
	case protocol.TypeStc:
		_, err = o.Eostc.ProcessStc(f.Raw)
	case protocol.TypeTreeStatus:
		_, err = o.Eostc.ProcessTreeStatus(f.Raw)
	default:
		o.Log(UnknownMessageType, "unknown message type", "type", f.Type)
		return
	}
	if err != nil {
		perf.DroppedFramesPerSec.Add(1)
	}
	if rest := len(buf) - len(f.Raw); rest > 0 {
		o.Log(UnusedBytes, "unused bytes after the message", "count", rest)
	}
}

// NextHop returns the neighbor to forward to for dst: dst itself when it
// is a symmetric neighbor, else the parent in the tree rooted at dst. A
// neighbor that does not hear us is never a direct hop.
func (o *Opera) NextHop(dst state.NodeId) (state.NodeId, bool) {
	if dst == o.Id {
		return o.Id, true
	}
	if o.Eond.IsSym(dst) {
		return dst, true
	}
	t := o.Eostc.FindTree(dst, true)
	if t == nil {
		t = o.Eostc.FindTree(dst, false)
	}
	if t != nil {
		return t.Parent, true
	}
	return state.Undefined, false
}

func (o *Opera) incColoredTreeSeq() {
	o.shouldIncTreeSeq = false
	if err := o.Eostc.IncTreeSeq(); err != nil {
		o.Log(NotColoredRoot, "tree sequence increment without a colored tree", "err", err)
		return
	}
	o.Serena.Stop()
	o.shouldRunSerena(false)
}

// Log counts warnings in the diagnostics and forwards to the host.
func (o *Opera) Log(event Event, desc string, args ...any) {
	if event.IsWarning() {
		o.Diag.Warnings++
		perf.WarningsPerSecond.Add(1)
	}
	o.Host.Log(event, desc, args...)
}

func (o *Opera) notify(n notice) {
	switch n := n.(type) {
	case neighborChanged:
		o.Eostc.onNeighborChange(n.addr, n.old, n.new)
	case treeChanged:
		if o.treeBeingColored(n.tree) {
			o.Serena.updateNeighbor(n.addr, n.isParent, n.isChild)
		}
	case neighborDisappeared:
		o.Serena.removeNeighbor(n.addr)
	case treeStable:
		o.onTreeStable(n.tree)
	case myTreeFlagsChanged:
		o.onMyTreeFlagsChanged(n.tree, n.flags)
	case serenaStop:
		o.Serena.Stop()
	case coloringFinished:
		o.onColoringFinished()
	case topologyChanged:
	}
}
