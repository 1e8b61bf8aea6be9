package sim

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/encodeous/opera/core"
	"github.com/encodeous/opera/state"
	"github.com/samber/lo"
)

// expired warnings are released every sweepTicks
const sweepTicks = 1000

// Link is a directed radio link.
type Link struct {
	Power uint8
	Loss  float64
}

type frame struct {
	from state.NodeId
	data []byte
}

// Node is one simulated node and what its host has been told.
type Node struct {
	Id    state.NodeId
	Opera *core.Opera
	Cfg   *state.ProtocolCfg

	// last SetColorInfo
	Color          uint8
	NeighborColors []uint8
	// last SetNbColor, only reported by colored roots
	NbColor int

	Sent     int
	Received int
	Lost     int

	log *core.LogHost
}

// host forwards the host callbacks of one node to the network. The calls
// are queued and run after the current tick so that no Opera is entered
// while it is running.
type host struct {
	*core.LogHost
	net  *Network
	node *Node
}

func (h *host) ShouldRunSerena(run bool) {
	h.net.later(func() { h.net.setColoringMode(h.node, run) })
}

func (h *host) ShouldRunSerenaResponse() {}

func (h *host) SetNbColor(nb int) {
	h.node.NbColor = nb
	h.net.later(func() { h.net.publishColors(h.node, nb) })
}

func (h *host) SetColorInfo(color uint8, neighbors []uint8) {
	h.node.Color = color
	h.node.NeighborColors = slices.Clone(neighbors)
}

// Network is an in-memory radio medium. All nodes are driven from the
// goroutine calling Step; every frame sent during a tick is heard by the
// linked nodes at the end of that tick.
type Network struct {
	Now state.Tick
	Log *slog.Logger

	nodes   map[state.NodeId]*Node
	order   []state.NodeId
	links   map[Edge]Link
	rand    *rand.Rand
	seed    uint64
	pending []func()

	// ColoringMode is the last coloring mode requested by a colored root.
	ColoringMode bool
	// Colorings counts the finished colorings.
	Colorings int
}

func NewNetwork(logger *slog.Logger, seed uint64) *Network {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Network{
		Log:   logger,
		nodes: make(map[state.NodeId]*Node),
		links: make(map[Edge]Link),
		rand:  rand.New(rand.NewPCG(seed, 0x6f70)),
		seed:  seed,
	}
}

// AddNode creates and starts a node. cfg is copied since the command
// channel may change it at runtime.
func (n *Network) AddNode(id state.NodeId, cfg state.ProtocolCfg) *Node {
	if _, ok := n.nodes[id]; ok {
		panic(fmt.Sprintf("node %s added twice", id))
	}
	c := cfg
	node := &Node{Id: id, Cfg: &c}
	base := state.NewBase(id, node.Cfg, n.seed)
	base.Now = n.Now
	node.log = core.NewLogHost(n.Log.With("node", id), time.Minute)
	h := &host{
		LogHost: node.log,
		net:     n,
		node:    node,
	}
	node.Opera = core.New(base, h)
	node.Opera.Start()
	n.nodes[id] = node
	n.order = append(n.order, id)
	slices.SortFunc(n.order, state.NodeId.Compare)
	return node
}

func (n *Network) Node(id state.NodeId) *Node {
	return n.nodes[id]
}

// Nodes returns the nodes ordered by address.
func (n *Network) Nodes() []*Node {
	return lo.Map(n.order, func(id state.NodeId, _ int) *Node { return n.nodes[id] })
}

func (n *Network) ConnectDirected(from, to state.NodeId, l Link) {
	n.links[Edge{V1: from, V2: to}] = l
}

func (n *Network) Connect(a, b state.NodeId, l Link) {
	n.ConnectDirected(a, b, l)
	n.ConnectDirected(b, a, l)
}

func (n *Network) Disconnect(a, b state.NodeId) {
	delete(n.links, Edge{V1: a, V2: b})
	delete(n.links, Edge{V1: b, V2: a})
}

func (n *Network) LinkOf(from, to state.NodeId) (Link, bool) {
	l, ok := n.links[Edge{V1: from, V2: to}]
	return l, ok
}

// Neighbors returns the nodes linked both ways with id.
func (n *Network) Neighbors(id state.NodeId) []state.NodeId {
	return lo.Filter(n.order, func(o state.NodeId, _ int) bool {
		_, there := n.links[Edge{V1: id, V2: o}]
		_, back := n.links[Edge{V1: o, V2: id}]
		return o != id && there && back
	})
}

func (n *Network) later(f func()) {
	n.pending = append(n.pending, f)
}

func (n *Network) setColoringMode(root *Node, run bool) {
	n.ColoringMode = run
	for _, node := range n.Nodes() {
		if node != root {
			node.Opera.NotifyShouldRunSerena(run)
		}
	}
}

func (n *Network) publishColors(root *Node, nb int) {
	n.Colorings++
	n.Log.Info("coloring finished", "root", root.Id, "colors", nb, "tick", n.Now)
	for _, node := range n.Nodes() {
		node.Opera.ColorUse(true)
	}
}

func (n *Network) flush() {
	for len(n.pending) > 0 {
		p := n.pending
		n.pending = nil
		for _, f := range p {
			f()
		}
	}
}

// transmit collects the frames of one node for this tick.
func (n *Network) transmit(node *Node) []frame {
	var out []frame
	if !node.Opera.AdvanceTo(n.Now) {
		return nil
	}
	for range state.MaxNeighbor {
		buf := make([]byte, state.MaxPacketSize)
		size, more := node.Opera.WakeupWithBuffer(buf)
		if size > 0 {
			out = append(out, frame{from: node.Id, data: buf[:size]})
			node.Sent++
		}
		if !more {
			break
		}
	}
	return out
}

func (n *Network) deliver(f frame) {
	for _, id := range n.order {
		l, ok := n.links[Edge{V1: f.from, V2: id}]
		if !ok || id == f.from {
			continue
		}
		rx := n.nodes[id]
		if l.Loss > 0 && n.rand.Float64() < l.Loss {
			rx.Lost++
			continue
		}
		rx.Received++
		rx.Opera.PacketReceived(f.data, l.Power)
	}
}

// Step advances the network by one tick.
func (n *Network) Step() {
	n.Now++
	var frames []frame
	for _, id := range n.order {
		frames = append(frames, n.transmit(n.nodes[id])...)
	}
	for _, f := range frames {
		n.deliver(f)
	}
	n.flush()
	if n.Now%sweepTicks == 0 {
		for _, id := range n.order {
			n.nodes[id].log.Sweep()
		}
	}
}

func (n *Network) Run(ticks state.Tick) {
	for range ticks {
		n.Step()
	}
}

// RunUntil steps until done returns true or limit ticks have passed.
func (n *Network) RunUntil(limit state.Tick, done func() bool) bool {
	for range limit {
		if done() {
			return true
		}
		n.Step()
	}
	return done()
}

// Parent returns the parent of id in the tree rooted at root.
func (n *Network) Parent(id, root state.NodeId, colored bool) (state.NodeId, bool) {
	t := n.nodes[id].Opera.Eostc.FindTree(root, colored)
	if t == nil || t.State != core.TreeHasParent {
		return state.Undefined, false
	}
	return t.Parent, true
}

// TreeBuilt reports whether every node other than root has a parent in
// the tree rooted at root.
func (n *Network) TreeBuilt(root state.NodeId, colored bool) bool {
	return lo.EveryBy(n.order, func(id state.NodeId) bool {
		if id == root {
			return true
		}
		_, ok := n.Parent(id, root, colored)
		return ok
	})
}

// Colored reports whether every node has received its final color.
func (n *Network) Colored() bool {
	return lo.EveryBy(n.Nodes(), func(node *Node) bool { return node.Color != state.NoColor })
}

// CheckColoring returns an error when two nodes within two hops share a
// color, or when a node is not colored.
func (n *Network) CheckColoring() error {
	for _, a := range n.Nodes() {
		if a.Color == state.NoColor {
			return fmt.Errorf("node %s has no color", a.Id)
		}
		near := n.Neighbors(a.Id)
		for _, b := range n.Neighbors(a.Id) {
			near = append(near, n.Neighbors(b)...)
		}
		for _, id := range lo.Uniq(near) {
			if id != a.Id && n.nodes[id].Color == a.Color {
				return fmt.Errorf("nodes %s and %s are within two hops and share color %d", a.Id, id, a.Color)
			}
		}
	}
	return nil
}
