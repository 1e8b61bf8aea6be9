package core

import (
	"errors"

	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
)

type TreeState uint8

const (
	TreeNone TreeState = iota
	TreeHasParent
	TreeIsRoot
)

func (s TreeState) String() string {
	switch s {
	case TreeHasParent:
		return "has-parent"
	case TreeIsRoot:
		return "root"
	}
	return "none"
}

type ChildState uint8

const (
	ChildNone ChildState = iota
	ChildUnstable
	ChildStable
)

type Child struct {
	Addr       state.NodeId
	Descendant uint16
	State      ChildState
	Validity   state.Tick
}

// ColoringExt is the per-tree state needed to color along a tree.
type ColoringExt struct {
	TreeSeq uint16
	Flags   uint8
	// a TreeStatus is owed to the parent
	ShouldGenerate bool
	// one TreeStatus per received STC
	Limit bool
	// the earliest tick at which the neighborhood may be called stable
	Stability     state.Tick
	NeighStable   bool
	SubtreeStable bool
	HasSentStable bool
	Children      [state.MaxNeighbor]Child
}

func (x *ColoringExt) clear() {
	for i := range x.Children {
		x.Children[i].State = ChildNone
	}
	x.Flags = 0
	x.ShouldGenerate = false
	x.Limit = false
	x.NeighStable = false
	x.SubtreeStable = false
	x.HasSentStable = false
}

func (x *ColoringExt) findChild(addr state.NodeId) *Child {
	for i := range x.Children {
		if c := &x.Children[i]; c.State != ChildNone && c.Addr == addr {
			return c
		}
	}
	return nil
}

// getChild returns the entry for addr, or a free one.
func (x *ColoringExt) getChild(addr state.NodeId) *Child {
	if c := x.findChild(addr); c != nil {
		return c
	}
	for i := range x.Children {
		if c := &x.Children[i]; c.State == ChildNone {
			return c
		}
	}
	return nil
}

func (x *ColoringExt) Child(addr state.NodeId) *Child {
	return x.findChild(addr)
}

type Tree struct {
	Index         int
	State         TreeState
	Root          state.NodeId
	Parent        state.NodeId
	StcSeq        uint16
	Cost          uint16
	Validity      state.Tick
	ReceivedVtime uint8
	// hops left for the pending repeat, 0 when nothing is owed
	TTL uint8
	// nil on plain trees
	Ext *ColoringExt
}

func (t *Tree) Colored() bool {
	return t.Ext != nil
}

var (
	errNotRoot = errors.New("eostc: own tree is not rooted here")
	errNoTree  = errors.New("eostc: colored trees are disabled")
)

// Eostc builds and maintains the spanning trees rooted at the nodes that
// asked for one.
type Eostc struct {
	engine
	eond  *Eond
	trees [state.MaxStcTree]Tree
	ext   [state.MaxStcSerenaTree]ColoringExt
	mine  *Tree
	next  state.Tick
}

func NewEostc(base *state.Base, host engineHost, eond *Eond) *Eostc {
	s := &Eostc{engine: engine{Base: base, host: host}, eond: eond}
	s.Reset()
	return s
}

func (s *Eostc) Reset() {
	s.mine = nil
	s.next = state.TickUndefined
	for i := range s.trees {
		s.trees[i] = Tree{Index: i, Validity: state.TickUndefined}
		if i < state.MaxStcSerenaTree {
			s.ext[i] = ColoringExt{Stability: state.TickUndefined}
			s.trees[i].Ext = &s.ext[i]
		}
	}
}

// Trees returns every slot, None entries included.
func (s *Eostc) Trees() []Tree {
	return s.trees[:]
}

// Mine returns the tree this node is root of, or nil.
func (s *Eostc) Mine() *Tree {
	return s.mine
}

func (s *Eostc) FindTree(root state.NodeId, colored bool) *Tree {
	for i := range s.trees {
		t := &s.trees[i]
		if t.State != TreeNone && t.Root == root && t.Colored() == colored {
			return t
		}
	}
	return nil
}

// Start makes this node the root of a tree.
func (s *Eostc) Start(colored bool) error {
	if colored && !s.Cfg.Eostc.Colored {
		return errNoTree
	}
	slot := state.StcTreeMine
	if colored {
		slot = state.StcSerenaTreeMine
	}
	if s.mine != nil && s.mine.Colored() != colored {
		s.mine.State = TreeNone
		s.mine = nil
	}
	if s.mine == nil {
		s.mine = &s.trees[slot]
	}
	t := s.mine
	t.State = TreeIsRoot
	t.Root = s.Id
	t.Parent = s.Id
	t.StcSeq = 0
	t.Cost = 0
	t.Validity = state.TickUndefined
	t.TTL = 0
	if x := t.Ext; x != nil {
		x.clear()
		x.TreeSeq = 0
		x.Stability = s.Now + s.Cfg.Eostc.StabilityTime
	}
	s.next = s.After(s.Cfg.Eostc.StcInterval, s.Cfg.Eostc.Jitter)
	s.log(TreeDiscovered, "started own tree", "root", s.Id, "colored", colored)
	return nil
}

func (s *Eostc) Stop() {
	if s.mine != nil {
		s.mine.State = TreeNone
		s.mine = nil
	}
	s.next = state.TickUndefined
}

// IncTreeSeq starts a new coloring round on the own colored tree.
func (s *Eostc) IncTreeSeq() error {
	t := s.mine
	if t == nil || t.State != TreeIsRoot || t.Ext == nil {
		return errNotRoot
	}
	x := t.Ext
	x.clear()
	x.TreeSeq++
	x.Stability = s.Now + s.Cfg.Eostc.StabilityTime
	s.log(TreeSeqAdvanced, "tree sequence advanced", "root", t.Root, "treeSeq", x.TreeSeq)
	return nil
}

func (s *Eostc) topologyChange(t *Tree, flag uint8) {
	if x := t.Ext; x != nil {
		if x.SubtreeStable && flag != 0 {
			x.ShouldGenerate = true
			x.Flags |= flag
		}
		x.SubtreeStable = false
		x.NeighStable = false
		x.Stability = s.Now + s.Cfg.Eostc.StabilityTime
	}
	s.log(TopologyChanged, "topology changed", "root", t.Root, "flag", protocol.FlagString(flag))
	s.notify(topologyChanged{tree: t})
}

// onNeighborChange runs before the neighbor table commits the new state.
func (s *Eostc) onNeighborChange(addr state.NodeId, old, new NeighborState) {
	switch {
	case old == NeighborSym:
		for i := range s.trees {
			t := &s.trees[i]
			if t.State != TreeHasParent {
				continue
			}
			if s.host.treeBeingColored(t) {
				s.notify(neighborDisappeared{addr: addr})
			}
			s.topologyChange(t, 0)
		}
		for i := range s.trees {
			t := &s.trees[i]
			if t.State == TreeHasParent && t.Parent == addr {
				t.State = TreeNone
				s.log(ParentLost, "lost tree parent", "root", t.Root, "parent", addr)
			}
			if t.State != TreeNone && t.Ext != nil {
				if c := t.Ext.findChild(addr); c != nil {
					c.State = ChildNone
					s.log(ChildRemoved, "child is no longer a neighbor", "root", t.Root, "child", addr)
				}
			}
		}
	case new == NeighborSym:
		for i := range s.trees {
			t := &s.trees[i]
			if t.State != TreeHasParent {
				continue
			}
			if s.host.treeBeingColored(t) {
				s.notify(neighborDisappeared{addr: addr})
			}
			s.topologyChange(t, protocol.FlagNewNeighbor)
		}
	}
}

func (s *Eostc) findFree(colored bool) *Tree {
	if !colored {
		for i := range s.trees {
			t := &s.trees[i]
			if i != state.StcTreeMine && t.Ext == nil && t.State == TreeNone {
				return t
			}
		}
		return nil
	}
	for i := range s.trees {
		t := &s.trees[i]
		if i != state.StcSerenaTreeMine && t.Ext != nil && t.State == TreeNone {
			return t
		}
	}
	// borrow the slot of the own colored tree while it is unused
	if t := &s.trees[state.StcSerenaTreeMine]; t.State == TreeNone && s.mine != t {
		return t
	}
	return nil
}

// refresh takes the tree state from an STC of the current parent. reset
// clears the coloring state, regen schedules a repeat.
func (s *Eostc) refresh(t *Tree, m *protocol.Stc, reset, regen bool) {
	oldSeq := t.StcSeq
	t.Validity = s.Now + state.VtimeToTicks(m.Vtime, s.Cfg.Cref)
	t.ReceivedVtime = m.Vtime
	t.Cost = m.Cost
	t.StcSeq = m.Seq
	if x := t.Ext; x != nil {
		flags := m.Flags &^ protocol.FlagColored
		if reset || oldSeq != t.StcSeq {
			x.Limit = false
		}
		if reset || state.SeqnoLt(x.TreeSeq, m.TreeSeq) {
			s.Diag.SysInfo = 0
			s.Diag.Color = 0
			x.clear()
			s.notify(serenaStop{})
			x.Stability = s.Now + s.Cfg.Eostc.StabilityTime
			if !reset {
				s.log(TreeSeqAdvanced, "tree sequence advanced", "root", t.Root, "treeSeq", m.TreeSeq)
			}
		} else if x.TreeSeq == m.TreeSeq {
			if flags&protocol.FlagStable != 0 && x.Flags&protocol.FlagStable == 0 {
				x.Flags |= protocol.FlagInconsistent
			}
			x.Flags |= flags &^ protocol.FlagStable
			x.ShouldGenerate = x.Flags&^flags != 0
		}
		x.TreeSeq = m.TreeSeq
	}
	t.TTL = 0
	if regen {
		if m.TTL <= 1 {
			s.log(TTLExhausted, "stc ttl exhausted", "root", t.Root, "seq", m.Seq)
		} else {
			t.TTL = m.TTL - 1
		}
	}
}

func (s *Eostc) newTree(m *protocol.Stc) {
	colored := m.Colored()
	if colored && !s.Cfg.Eostc.Colored {
		s.log(MessageIgnored, "colored trees are disabled", "root", m.Root)
		return
	}
	t := s.findFree(colored)
	if t == nil {
		s.log(TreeTableFull, "tree table full", "root", m.Root, "colored", colored)
		return
	}
	t.State = TreeHasParent
	t.Root = m.Root
	t.Parent = m.Sender
	s.refresh(t, m, true, true)
	s.topologyChange(t, protocol.FlagTreeChange)
	s.notify(treeChanged{tree: t, addr: t.Parent, isParent: Yes})
	s.log(TreeDiscovered, "joined tree", "root", t.Root, "parent", t.Parent, "cost", t.Cost)
}

func (s *Eostc) updateStability(t *Tree) {
	x := t.Ext
	if x.SubtreeStable {
		return
	}
	if !x.NeighStable {
		if state.LargeUndefLess(s.Now, x.Stability) {
			return
		}
		x.NeighStable = true
	}
	stable := true
	for i := range x.Children {
		c := &x.Children[i]
		if c.State == ChildNone {
			continue
		}
		if c.Validity < s.Now {
			c.State = ChildNone
			s.topologyChange(t, 0)
			s.notify(treeChanged{tree: t, addr: c.Addr, isParent: No, isChild: No})
			s.log(ChildRemoved, "child expired", "root", t.Root, "child", c.Addr)
			stable = false
		} else if c.State != ChildStable {
			stable = false
		}
	}
	if !stable {
		return
	}
	x.SubtreeStable = true
	x.Flags |= protocol.FlagStable
	s.log(TreeBecameStable, "subtree stable", "root", t.Root, "descendants", s.CountDescendant(t))
	if t.State != TreeIsRoot {
		x.HasSentStable = true
		x.ShouldGenerate = true
		s.notify(treeStable{tree: t})
	} else {
		s.notify(myTreeFlagsChanged{tree: t, flags: protocol.FlagStable})
	}
}

// CountDescendant counts this node plus the descendants of its stable
// children.
func (s *Eostc) CountDescendant(t *Tree) uint16 {
	res := 1
	if t.Ext != nil {
		for _, c := range t.Ext.Children {
			if c.State == ChildStable {
				res += int(c.Descendant)
			}
		}
	}
	return uint16(min(res, 0xffff))
}

// ProcessTreeStatus handles the TreeStatus at the start of buf.
func (s *Eostc) ProcessTreeStatus(buf []byte) (int, error) {
	m, err := protocol.DecodeTreeStatus(buf)
	if err != nil {
		s.log(MalformedMessage, "bad tree status", "err", err)
		return 0, err
	}
	n := protocol.HeaderLen + int(buf[1])
	if !s.eond.IsSym(m.Sender) {
		return n, nil
	}
	t := s.FindTree(m.Root, true)
	if t == nil {
		return n, nil
	}
	x := t.Ext
	flags := m.Flags &^ protocol.FlagColored
	switch cmp := state.SeqnoCmp(m.TreeSeq, x.TreeSeq); {
	case cmp < 0:
		return n, nil
	case cmp > 0 && t.State != TreeIsRoot:
		x.clear()
		s.notify(serenaStop{})
		x.Stability = s.Now + s.Cfg.Eostc.StabilityTime
		x.Flags = flags &^ protocol.FlagStable
		return n, nil
	}

	old := x.Flags
	x.Flags |= flags &^ protocol.FlagStable
	if t.State != TreeIsRoot && t.Parent == m.Sender {
		if x.Flags&^flags == 0 {
			x.ShouldGenerate = false
		}
		return n, nil
	}
	if c := x.findChild(m.Sender); c != nil {
		c.Descendant = m.Descendant
		if flags&protocol.FlagStable != 0 && c.State != ChildStable {
			c.State = ChildStable
			s.updateStability(t)
		}
	}
	if x.Flags&^old != 0 && t.State != TreeIsRoot {
		x.ShouldGenerate = true
	}
	return n, nil
}

// ProcessStc handles the STC at the start of buf.
func (s *Eostc) ProcessStc(buf []byte) (int, error) {
	m, err := protocol.DecodeStc(buf)
	if err != nil {
		s.log(MalformedMessage, "bad stc", "err", err)
		return 0, err
	}
	n := protocol.HeaderLen + int(buf[1])
	if m.Sender == s.Id || !s.eond.IsSym(m.Sender) {
		return n, nil
	}
	t := s.FindTree(m.Root, m.Colored())
	if m.Root == s.Id {
		if m.Parent == s.Id && t != nil {
			s.fromChild(m, t)
		}
		return n, nil
	}
	if t == nil {
		s.newTree(m)
		return n, nil
	}

	fresh := state.SeqnoGe(m.Seq, t.StcSeq)
	if s.Now <= t.Validity {
		switch {
		case t.Parent == m.Sender:
			if fresh {
				s.refresh(t, m, false, true)
			} else {
				s.log(ParentSeqnoRegression, "parent sent an older stc", "root", t.Root, "seq", m.Seq, "known", t.StcSeq)
			}
		case m.Parent == s.Id:
			s.fromChild(m, t)
		default:
			if fresh && t.Ext != nil {
				if c := t.Ext.findChild(m.Sender); c != nil {
					c.State = ChildNone
					s.log(ChildChangedParent, "child moved to another parent", "root", t.Root, "child", m.Sender, "parent", m.Parent)
				}
			}
			if m.Cost < t.Cost && fresh {
				s.changeParent(t, m, true)
			}
		}
		return n, nil
	}

	// the tree entry outlived its parent
	s.topologyChange(t, 0)
	if fresh {
		if m.Parent != s.Id {
			s.changeParent(t, m, true)
		} else {
			s.fromChild(m, t)
		}
	}
	return n, nil
}

func (s *Eostc) changeParent(t *Tree, m *protocol.Stc, regen bool) {
	old := t.Parent
	if old != m.Sender {
		s.topologyChange(t, protocol.FlagTreeChange)
		s.notify(treeChanged{tree: t, addr: old, isParent: No})
	}
	t.Parent = m.Sender
	s.refresh(t, m, true, regen)
	s.notify(treeChanged{tree: t, addr: t.Parent, isParent: Yes})
	s.log(ParentChanged, "changed tree parent", "root", t.Root, "old", old, "new", t.Parent, "cost", t.Cost)
}

func (s *Eostc) fromChild(m *protocol.Stc, t *Tree) {
	x := t.Ext
	if x == nil {
		return
	}
	if state.SeqnoGt(m.Seq, t.StcSeq) {
		s.log(ChildHigherSeqno, "child is ahead of us", "root", t.Root, "child", m.Sender, "seq", m.Seq)
		return
	}
	c := x.getChild(m.Sender)
	if c == nil {
		s.log(ChildTableFull, "child table full", "root", t.Root, "child", m.Sender)
		return
	}
	if c.State == ChildNone {
		c.Addr = m.Sender
		c.State = ChildUnstable
		c.Descendant = 0
		s.topologyChange(t, protocol.FlagTreeChange)
		s.notify(treeChanged{tree: t, addr: c.Addr, isChild: Yes})
		s.log(ChildAdded, "new child", "root", t.Root, "child", c.Addr)
	}
	c.Validity = s.Now + state.VtimeToTicks(m.Vtime, s.Cfg.Cref)
}

// ExpireTrees drops the trees whose parent stopped advertising them.
func (s *Eostc) ExpireTrees() {
	for i := range s.trees {
		t := &s.trees[i]
		if t.State != TreeHasParent || !t.Validity.Defined() || t.Validity >= s.Now {
			continue
		}
		s.topologyChange(t, 0)
		s.notify(treeChanged{tree: t, addr: t.Parent, isParent: No})
		t.State = TreeNone
		s.log(TreeExpired, "tree expired", "root", t.Root, "parent", t.Parent)
	}
}

func (s *Eostc) encode(buf []byte, enc func(w *protocol.Writer)) (int, error) {
	w := protocol.NewWriter(buf)
	enc(w)
	if err := w.Err(); err != nil {
		s.log(BufferTooSmall, "packet buffer too small", "size", len(buf))
		return 0, err
	}
	return w.Len(), nil
}

func (s *Eostc) repeat(t *Tree, buf []byte) (int, error) {
	m := protocol.Stc{
		Sender: s.Id,
		Seq:    t.StcSeq,
		Root:   t.Root,
		Cost:   t.Cost + s.eond.ForwardingCost(),
		Parent: t.Parent,
		Vtime:  t.ReceivedVtime,
		TTL:    t.TTL,
	}
	if x := t.Ext; x != nil {
		s.updateStability(t)
		m.TreeSeq = x.TreeSeq
		m.Flags = protocol.FlagColored | x.Flags
	}
	t.TTL = 0
	return s.encode(buf, m.Encode)
}

func (s *Eostc) generate(buf []byte) (int, error) {
	s.next = s.After(s.Cfg.Eostc.StcInterval, s.Cfg.Eostc.Jitter)
	t := s.mine
	if t == nil {
		panic("eostc: stc generation without an own tree")
	}
	if t.State != TreeIsRoot {
		s.log(NotRoot, "own tree lost its root state", "state", t.State)
		return 0, errNotRoot
	}
	t.StcSeq++
	m := protocol.Stc{
		Sender: s.Id,
		Seq:    t.StcSeq,
		Root:   s.Id,
		Parent: s.Id,
		Vtime:  state.TicksToVtime(s.Cfg.Eostc.TreeHoldTime, s.Cfg.Cref),
		TTL:    state.DefaultStcTTL,
	}
	if x := t.Ext; x != nil {
		s.updateStability(t)
		m.TreeSeq = x.TreeSeq
		m.Flags = protocol.FlagColored | x.Flags
	}
	return s.encode(buf, m.Encode)
}

func (s *Eostc) generateTreeStatus(t *Tree, buf []byte) (int, error) {
	x := t.Ext
	x.Limit = true
	m := protocol.TreeStatus{
		Sender:     s.Id,
		Seq:        t.StcSeq,
		Root:       t.Root,
		TreeSeq:    x.TreeSeq,
		Descendant: s.CountDescendant(t),
		Flags:      x.Flags,
	}
	return s.encode(buf, m.Encode)
}

func (s *Eostc) pendingStc() *Tree {
	for i := range s.trees {
		if t := &s.trees[i]; t.State != TreeNone && t.TTL > 0 {
			return t
		}
	}
	return nil
}

func (s *Eostc) pendingTreeStatus() *Tree {
	for i := range s.trees {
		t := &s.trees[i]
		if t.State != TreeNone && t.Ext != nil && t.Ext.ShouldGenerate && !t.Ext.Limit {
			return t
		}
	}
	return nil
}

func (s *Eostc) Wakeup() state.WakeupCondition {
	w := state.WakeupCondition{Hard: state.TickUndefined, Soft: s.next}
	if s.pendingStc() != nil || s.pendingTreeStatus() != nil {
		w.Soft = s.Now
	}
	return w
}

// NotifyWakeup writes at most one message: the own STC when due, else a
// pending repeat, else a pending TreeStatus.
func (s *Eostc) NotifyWakeup(buf []byte) int {
	if buf == nil {
		return 0
	}
	var (
		n   int
		err error
	)
	if state.LargeUndefLess(s.Now, s.next) {
		if t := s.pendingStc(); t != nil {
			n, err = s.repeat(t, buf)
		}
	} else {
		n, err = s.generate(buf)
	}
	if err != nil {
		s.log(GenerateFailed, "stc generation failed", "err", err)
		return 0
	}
	if n > 0 {
		return n
	}
	if t := s.pendingTreeStatus(); t != nil {
		n, err = s.generateTreeStatus(t, buf)
		if err != nil {
			s.log(GenerateFailed, "tree status generation failed", "err", err)
			return 0
		}
	}
	return n
}
