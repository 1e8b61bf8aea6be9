package core

import (
	"errors"
	"slices"

	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
)

// SerenaNeighbor is a symmetric neighbor as seen by the coloring, taken
// from the neighbor table when the topology is installed.
type SerenaNeighbor struct {
	Addr     state.NodeId
	Color    uint8
	Priority uint32
	IsParent bool
	IsChild  bool
	// HasPrio is set by any Color message, HasPrio1 and HasPrio2 once the
	// neighbor reported the matching list (or is colored)
	HasPrio  bool
	HasPrio1 bool
	HasPrio2 bool
	Max1     []protocol.AddrPriority
	Max2     []protocol.AddrPriority
	// ChildMaxColor is the highest color in the subtree of a child
	HasSentMaxColor bool
	ChildMaxColor   uint8
}

var (
	errFinished   = errors.New("serena: coloring finished")
	errNotStarted = errors.New("serena: cannot start without a topology")
)

// Serena colors the 3-hop conflict graph of the colored tree.
type Serena struct {
	engine
	codec     protocol.ColorCodec
	neighbors []SerenaNeighbor
	root      state.NodeId
	treeSeq   uint16
	priority  uint32
	color     uint8

	topologySet bool
	started     bool
	finished    bool
	// soft stop: nothing left to say
	stopped   bool
	emptySent bool
	next      state.Tick

	implicit    [state.MaxImplicitColored]protocol.AddrPriority
	implicitIdx int

	bitmap1 protocol.Bitmap // colors of 1-hop neighbors
	bitmap2 protocol.Bitmap // colors at 2 hops
	bitmap3 protocol.Bitmap // colors at 3 hops

	lastNbColor int
	// armed at the root, fires once with the final number of colors
	notifyFinished bool
	finalColor     uint8
	finalNeighbors []uint8
}

func NewSerena(base *state.Base, host engineHost) *Serena {
	s := &Serena{engine: engine{Base: base, host: host}}
	s.Reset()
	return s
}

func (s *Serena) Reset() {
	*s = Serena{
		engine: s.engine,
		codec:  protocol.ColorCodec{LongPriority: s.Cfg.Serena.LongPriority},
		color:  state.ColorNone,
		next:   state.TickUndefined,
	}
}

func (s *Serena) Started() bool { return s.started }
func (s *Serena) Running() bool { return s.started && !s.finished }

// Color returns the 0-based color, ColorNone while uncolored.
func (s *Serena) Color() uint8 { return s.color }

func (s *Serena) Priority() uint32 { return s.priority }

func (s *Serena) Tree() (state.NodeId, uint16) { return s.root, s.treeSeq }

func (s *Serena) Neighbors() []SerenaNeighbor { return s.neighbors }

// Final returns the 1-based color snapshot taken when the number of colors
// first became known.
func (s *Serena) Final() (uint8, []uint8) {
	return s.finalColor, s.finalNeighbors
}

// SetTopology installs the neighborhood of the colored tree (root,
// treeSeq). Coloring has to be started again afterwards.
func (s *Serena) SetTopology(root state.NodeId, treeSeq uint16, priority uint32, neighbors []SerenaNeighbor) {
	s.neighbors = slices.Clone(neighbors[:min(len(neighbors), state.MaxNeighbor)])
	s.root = root
	s.treeSeq = treeSeq
	s.priority = priority
	s.topologySet = true
	s.started = false
	s.finished = false
}

// Start begins a coloring round on the installed topology. It returns
// false if there is no topology or a round is already running.
func (s *Serena) Start() bool {
	if !s.topologySet || s.started {
		return false
	}
	s.started = true
	s.finished = false
	s.stopped = false
	s.emptySent = false
	for i := range s.neighbors {
		n := &s.neighbors[i]
		n.HasPrio, n.HasPrio1, n.HasPrio2 = false, false, false
		n.Priority = state.PriorityNone
		n.Color = state.ColorNone
		n.HasSentMaxColor = false
		n.ChildMaxColor = state.ColorNone
		n.Max1 = nil
		n.Max2 = nil
	}
	s.color = state.ColorNone
	s.implicit = [state.MaxImplicitColored]protocol.AddrPriority{}
	s.implicitIdx = 0
	s.lastNbColor = 0
	s.bitmap1 = protocol.Bitmap{}
	s.bitmap2 = protocol.Bitmap{}
	s.bitmap3 = protocol.Bitmap{}
	s.next = s.After(s.Cfg.Serena.ColorInterval, s.Cfg.Serena.Jitter)
	s.finalColor = state.NoColor
	s.finalNeighbors = nil
	s.log(SerenaStarted, "coloring started", "root", s.root, "treeSeq", s.treeSeq, "priority", s.priority, "neighbors", len(s.neighbors))
	return true
}

func (s *Serena) Stop() {
	if s.started && !s.finished {
		s.log(SerenaStopped, "coloring stopped", "root", s.root, "color", s.color)
	}
	s.finished = true
}

func (s *Serena) find(addr state.NodeId) int {
	return slices.IndexFunc(s.neighbors, func(n SerenaNeighbor) bool {
		return n.Addr == addr
	})
}

func (s *Serena) neighbor(addr state.NodeId) *SerenaNeighbor {
	if i := s.find(addr); i >= 0 {
		return &s.neighbors[i]
	}
	return nil
}

func (s *Serena) removeNeighbor(addr state.NodeId) {
	if i := s.find(addr); i >= 0 {
		last := len(s.neighbors) - 1
		s.neighbors[i] = s.neighbors[last]
		s.neighbors = s.neighbors[:last]
	}
}

func (s *Serena) updateNeighbor(addr state.NodeId, isParent, isChild Tristate) {
	if n := s.neighbor(addr); n != nil {
		isParent.apply(&n.IsParent)
		isChild.apply(&n.IsChild)
	}
}

func (s *Serena) hasColor(addr state.NodeId) bool {
	if addr == s.Id {
		return s.color != state.ColorNone
	}
	if n := s.neighbor(addr); n != nil && n.Color != state.ColorNone {
		return true
	}
	for _, p := range s.implicit {
		if !p.None() && p.Addr == addr {
			return true
		}
	}
	return false
}

func (s *Serena) markImplicit(p protocol.AddrPriority) {
	if slices.Contains(s.implicit[:], p) {
		return
	}
	s.implicit[s.implicitIdx] = p
	s.implicitIdx = (s.implicitIdx + 1) % state.MaxImplicitColored
}

// implicitColoring remembers the entries that a neighbor dropped from the
// head of its list: they left it because they got colored.
func (s *Serena) implicitColoring(old, new []protocol.AddrPriority) {
	var head protocol.AddrPriority
	if len(new) > 0 {
		head = new[0]
	}
	for _, p := range old {
		if !p.None() && p.Compare(head) > 0 {
			s.markImplicit(p)
		}
	}
}

// insertTop inserts p into the list sorted by decreasing priority, keeping
// at most limit entries.
func insertTop(list []protocol.AddrPriority, p protocol.AddrPriority, limit int) []protocol.AddrPriority {
	if p.None() {
		return list
	}
	i, found := slices.BinarySearchFunc(list, p, func(e, t protocol.AddrPriority) int {
		return t.Compare(e)
	})
	if found || i >= limit {
		return list
	}
	list = slices.Insert(list, i, p)
	return list[:min(len(list), limit)]
}

// ComputeMaxPrio derives the uncolored priority rankings at one, two and
// three hops.
func (s *Serena) ComputeMaxPrio() (max1, max2 []protocol.AddrPriority, max3 protocol.AddrPriority) {
	for _, n := range s.neighbors {
		if !s.hasColor(n.Addr) {
			max1 = insertTop(max1, protocol.AddrPriority{Addr: n.Addr, Priority: n.Priority}, state.MaxPrio1)
		}
		for _, p := range n.Max1 {
			if !s.hasColor(p.Addr) {
				max2 = insertTop(max2, p, state.MaxPrio2)
			}
		}
		for _, p := range n.Max2 {
			if !p.None() && !s.hasColor(p.Addr) && p.Compare(max3) > 0 {
				max3 = p
			}
		}
	}
	return
}

func (s *Serena) all(pred func(n *SerenaNeighbor) bool) bool {
	for i := range s.neighbors {
		if !pred(&s.neighbors[i]) {
			return false
		}
	}
	return true
}

func (s *Serena) updateColor(max1, max2 []protocol.AddrPriority, max3 protocol.AddrPriority) bool {
	if s.color != state.ColorNone || !s.all(func(n *SerenaNeighbor) bool { return n.HasPrio2 }) {
		return false
	}
	best := protocol.AddrPriority{Addr: s.Id, Priority: s.priority}
	for _, p := range []protocol.AddrPriority{head(max1), head(max2), max3} {
		if !p.None() && p.Compare(best) > 0 {
			best = p
		}
	}
	if best.Addr != s.Id {
		return false
	}
	used := s.bitmap1.Union(s.bitmap2).Union(s.bitmap3)
	from := 0
	if s.Cfg.Serena.PriorityMode == state.PriorityTree {
		for _, n := range s.neighbors {
			if n.IsParent && n.Color != state.ColorNone {
				from = int(n.Color)
			}
		}
	}
	c := used.FirstClear(from)
	if c < 0 {
		s.log(NoColorAvailable, "every color is in use", "from", from)
		return false
	}
	s.color = uint8(c)
	s.log(ColorSelected, "selected color", "color", c, "priority", s.priority)
	return true
}

func head(l []protocol.AddrPriority) protocol.AddrPriority {
	if len(l) == 0 {
		return protocol.AddrPriority{}
	}
	return l[0]
}

// NbColor returns the number of colors used by this node and its subtree,
// or 0 while it is unknown.
func (s *Serena) NbColor() int {
	if s.color == state.ColorNone {
		return 0
	}
	nb := int(s.color) + 1
	for _, n := range s.neighbors {
		switch {
		case n.IsChild:
			if !n.HasSentMaxColor {
				return 0
			}
			nb = max(nb, int(n.ChildMaxColor)+1)
		case n.Color == state.ColorNone:
			return 0
		}
	}
	return nb
}

func (s *Serena) setFinal() {
	s.finalColor = state.NoColor
	s.finalNeighbors = nil
	if s.color == state.ColorNone || s.lastNbColor == 0 || s.NbColor() == 0 {
		s.log(InconsistentTopology, "coloring finished without a color")
		return
	}
	var used protocol.Bitmap
	for _, n := range s.neighbors {
		if n.Color != state.ColorNone {
			used.Set(int(n.Color))
		} else {
			s.log(UncoloredNeighbor, "neighbor without color", "addr", n.Addr)
		}
	}
	for _, c := range used.Colors() {
		s.finalNeighbors = append(s.finalNeighbors, uint8(c+1))
	}
	s.finalColor = s.color + 1
}

// ProcessColor handles the Color message at the start of buf.
func (s *Serena) ProcessColor(buf []byte) (int, error) {
	m, err := s.codec.Decode(buf)
	if err != nil {
		s.log(MalformedMessage, "bad color message", "err", err)
		return 0, err
	}
	n := protocol.HeaderLen + int(buf[1])
	if m.Sender == s.Id {
		return n, nil
	}
	if !s.started {
		if !s.Cfg.Serena.StartOnColor {
			return n, nil
		}
		if !s.topologySet {
			s.log(NoTopology, "color message before any topology", "from", m.Sender)
			return n, nil
		}
	}
	if m.Root != s.root {
		return n, nil
	}
	switch cmp := state.SeqnoCmp(m.TreeSeq, s.treeSeq); {
	case cmp < 0:
		return n, nil
	case cmp > 0:
		// a newer coloring of the same tree is running elsewhere
		s.Stop()
		return n, nil
	}
	if !s.started && !s.Start() {
		return n, nil
	}

	nb := s.neighbor(m.Sender)
	if nb == nil {
		s.log(UnknownColorNeighbor, "color message from outside the topology", "addr", m.Sender)
		return n, nil
	}
	nb.Color = m.Color
	colored := m.Color != state.ColorNone
	if colored {
		if int(m.Color) >= state.NbColorMax {
			s.log(ColorOutOfRange, "neighbor color out of range", "addr", m.Sender, "color", m.Color)
		} else {
			s.bitmap1.Set(int(m.Color))
		}
	}
	nb.HasPrio = true
	nb.Priority = m.Priority

	nb.HasPrio1 = nb.HasPrio1 || len(m.Max1) > 0 || colored
	s.implicitColoring(nb.Max1, m.Max1)
	nb.Max1 = m.Max1

	nb.HasPrio2 = nb.HasPrio2 || len(m.Max2) > 0 || colored
	s.implicitColoring(nb.Max2, m.Max2)
	nb.Max2 = m.Max2

	s.bitmap2 = s.bitmap2.Union(m.Bitmap1).Difference(s.bitmap1)
	if s.color != state.ColorNone {
		s.bitmap2.Clear(int(s.color))
	}
	s.bitmap3 = s.bitmap3.Union(m.Bitmap2)

	if m.NbColor > 0 {
		nb.HasSentMaxColor = true
		nb.ChildMaxColor = m.NbColor - 1
	}
	return n, nil
}

func (s *Serena) generate(buf []byte) (int, error) {
	if s.finished {
		return 0, errFinished
	}
	if !s.started {
		if !s.Start() {
			return 0, errNotStarted
		}
	} else {
		s.next = s.After(s.Cfg.Serena.ColorInterval, s.Cfg.Serena.Jitter)
	}

	max1, max2, max3 := s.ComputeMaxPrio()
	if s.updateColor(max1, max2, max3) {
		max1, max2, max3 = s.ComputeMaxPrio()
	}

	nb := s.NbColor()
	if s.lastNbColor != nb {
		if s.lastNbColor != 0 {
			s.log(UnexpectedNbColor, "number of colors changed", "old", s.lastNbColor, "new", nb)
		} else {
			s.lastNbColor = nb
			s.setFinal()
		}
	}
	if nb > 0 && s.notifyFinished {
		s.notifyFinished = false
		s.notify(coloringFinished{nbColor: nb})
	}

	m := protocol.Color{
		Sender:   s.Id,
		Root:     s.root,
		TreeSeq:  s.treeSeq,
		NbColor:  uint8(nb),
		Color:    s.color,
		Priority: s.priority,
		Bitmap1:  s.bitmap1,
		Bitmap2:  s.bitmap2,
	}
	if s.all(func(n *SerenaNeighbor) bool { return n.HasPrio }) {
		m.Max1 = max1
	}
	if s.all(func(n *SerenaNeighbor) bool { return n.HasPrio1 }) {
		m.Max2 = max2
	}
	w := protocol.NewWriter(buf)
	s.codec.Encode(w, &m)
	if err := w.Err(); err != nil {
		s.log(BufferTooSmall, "packet buffer too small for color", "size", len(buf))
		return 0, err
	}

	if s.Cfg.Serena.SoftStop && s.color != state.ColorNone && len(max1) == 0 && len(max2) == 0 && max3.None() {
		// one empty round is sent so that the neighbors learn it
		s.stopped = s.emptySent
		s.emptySent = true
	} else {
		s.emptySent = false
	}
	return w.Len(), nil
}

func (s *Serena) Wakeup() state.WakeupCondition {
	w := state.NoWakeup()
	if s.started && !s.finished && !s.stopped {
		w.Soft = s.next
	}
	return w
}

func (s *Serena) NotifyWakeup(buf []byte) int {
	if buf == nil || !s.started || s.finished || s.stopped {
		return 0
	}
	if state.LargeUndefLess(s.Now, s.next) {
		return 0
	}
	n, err := s.generate(buf)
	if err != nil {
		s.log(GenerateFailed, "color generation failed", "err", err)
		return 0
	}
	return n
}
