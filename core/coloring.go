package core

import (
	"github.com/encodeous/opera/perf"
	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
)

// setSerenaTopology copies the neighborhood of the colored tree t into
// SERENA. It returns false when the children of t are not all stable
// symmetric neighbors.
func (o *Opera) setSerenaTopology(t *Tree) bool {
	var neighbors []SerenaNeighbor
	for _, n := range o.Eond.Table() {
		if n.State != NeighborSym {
			continue
		}
		neighbors = append(neighbors, SerenaNeighbor{
			Addr:     n.Addr,
			IsParent: t.State == TreeHasParent && n.Addr == t.Parent,
		})
	}
	unstable := 0
	for _, c := range t.Ext.Children {
		if c.State == ChildNone {
			continue
		}
		if c.State == ChildUnstable {
			unstable++
		}
		found := false
		for i := range neighbors {
			if neighbors[i].Addr == c.Addr {
				neighbors[i].IsChild = true
				found = true
			}
		}
		if !found {
			unstable++
		}
	}

	var prio uint32
	switch cfg := &o.Cfg.Serena; cfg.PriorityMode {
	case state.PriorityFixed:
		prio = cfg.FixedPriority
	case state.Priority2Hop:
		prio = uint32(len(neighbors) + o.Eond.EstimateNb2Hop())
	default:
		prio = uint32(o.Eostc.CountDescendant(t))
	}
	prio = max(prio, 1)
	if !o.Cfg.Serena.LongPriority {
		prio = min(prio, 0xff)
	}

	o.Serena.SetTopology(t.Root, t.Ext.TreeSeq, prio, neighbors)
	if unstable > 0 {
		o.Log(InconsistentTopology, "topology does not match the tree", "root", t.Root, "mismatches", unstable)
		return false
	}
	return true
}

func (o *Opera) treeBeingColored(t *Tree) bool {
	if t.Ext == nil || !o.Serena.Running() {
		return false
	}
	root, seq := o.Serena.Tree()
	return root == t.Root && seq == t.Ext.TreeSeq
}

// onMyTreeFlagsChanged starts the coloring once the own colored tree is
// stable.
func (o *Opera) onMyTreeFlagsChanged(t *Tree, flags uint8) {
	if flags&protocol.FlagStable == 0 {
		return
	}
	o.setSerenaTopology(t)
	o.shouldRunSerena(true)
	o.Serena.notifyFinished = true
	o.Serena.Start()
}

// onTreeStable installs the topology of t unless a coloring of a smaller
// root, or of a newer round of the same root, is already running.
func (o *Opera) onTreeStable(t *Tree) {
	if o.Serena.Running() {
		root, seq := o.Serena.Tree()
		switch cmp := root.Compare(t.Root); {
		case cmp < 0:
			return
		case cmp == 0 && state.SeqnoLt(t.Ext.TreeSeq, seq):
			return
		}
	}
	o.setSerenaTopology(t)
}

func (o *Opera) onColoringFinished() {
	o.Serena.Stop()
	nb := o.Serena.NbColor()
	if nb == 0 {
		o.Log(NoColorAvailable, "coloring finished without a number of colors")
	}
	perf.ColoringsFinished.Add(1)
	o.Log(ColoringFinished, "coloring finished", "colors", nb)
	o.setNbColor(nb)
	o.shouldRunSerena(false)
}

// NotifyShouldRunSerena is called by the host when the network enters or
// leaves coloring mode.
func (o *Opera) NotifyShouldRunSerena(run bool) {
	o.Diag.SysInfo |= state.SysInfoHasColoringModeIndication
	if run {
		o.Diag.SysInfo |= state.SysInfoColoringMode
	} else {
		o.Diag.SysInfo &^= state.SysInfoColoringMode
	}
	if o.coloredRoot {
		o.Log(SerenaOnRoot, "coloring mode notified to the tree root")
		return
	}
	if run {
		o.shouldStartSerena = true
	} else {
		o.Serena.Stop()
	}
	o.Host.ShouldRunSerenaResponse()
}

// ColorUse asks for the coloring result, delivered through
// Host.SetColorInfo.
func (o *Opera) ColorUse(use bool) {
	o.Diag.SysInfo |= state.SysInfoHasMaxColorIndication
	if !use {
		return
	}
	color, neighbors := o.Serena.Final()
	if color == state.NoColor {
		o.Log(NoColorAvailable, "color requested before the coloring finished")
	}
	o.setColorInfo(color, neighbors)
}

func (o *Opera) checkSerenaStart() {
	if !o.shouldStartSerena {
		return
	}
	o.shouldStartSerena = false
	if o.coloredRoot {
		o.Log(SerenaOnRoot, "coloring start requested on the tree root")
		return
	}
	o.Serena.Start()
}

// host calls, with the matching system information bits

func (o *Opera) shouldRunSerena(run bool) {
	o.Diag.SysInfo |= state.SysInfoHasColoringModeRequest
	if run {
		o.Diag.SysInfo |= state.SysInfoColoringMode
	} else {
		o.Diag.SysInfo &^= state.SysInfoColoringMode
	}
	o.Host.ShouldRunSerena(run)
}

func (o *Opera) setNbColor(nb int) {
	o.Diag.SysInfo |= state.SysInfoHasMaxColorRequest
	o.Diag.Color = o.Diag.Color&0x0f | uint8(nb<<4)
	o.Host.SetNbColor(nb)
}

func (o *Opera) setColorInfo(color uint8, neighbors []uint8) {
	o.Diag.SysInfo |= state.SysInfoHasMaxColorResponse
	o.Diag.Color = o.Diag.Color&0xf0 | color&0x0f
	o.Host.SetColorInfo(color, neighbors)
}
