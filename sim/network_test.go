package sim

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/encodeous/opera/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cycleCfg() state.ProtocolCfg {
	cfg := state.NodeCfg{Id: state.NodeIdFromShort(1), Preset: "ocari"}
	state.ExpandConfig(&cfg)
	return cfg.Protocol()
}

func newNet(t *testing.T, edges []Edge, nodes ...uint16) *Network {
	t.Helper()
	net := NewNetwork(nil, 1)
	for _, id := range ids(nodes...) {
		net.AddNode(id, cycleCfg())
	}
	for _, e := range edges {
		net.Connect(e.V1, e.V2, Link{Power: DefaultPower})
	}
	return net
}

func TestNetworkLineTree(t *testing.T) {
	net := newNet(t, []Edge{edge(1, 2), edge(2, 3), edge(3, 4)}, 1, 2, 3, 4)
	root := state.NodeIdFromShort(4)
	require.NoError(t, net.Node(root).Opera.StartEostc(false))

	require.True(t, net.RunUntil(200, func() bool { return net.TreeBuilt(root, false) }))
	net.Run(50)

	var costs []uint16
	for _, v := range []uint16{3, 2, 1} {
		id := state.NodeIdFromShort(v)
		parent, ok := net.Parent(id, root, false)
		require.True(t, ok)
		assert.Equal(t, state.NodeIdFromShort(v+1), parent, "parent of %s", id)
		costs = append(costs, net.Node(id).Opera.Eostc.FindTree(root, false).Cost)

		hop, ok := net.Node(id).Opera.NextHop(root)
		require.True(t, ok)
		assert.Equal(t, parent, hop)
	}
	assert.LessOrEqual(t, costs[0], costs[1])
	assert.LessOrEqual(t, costs[1], costs[2])
}

func TestNetworkNeighbors(t *testing.T) {
	net := newNet(t, []Edge{edge(1, 2)}, 1, 2, 3)
	net.ConnectDirected(state.NodeIdFromShort(3), state.NodeIdFromShort(1), Link{Power: DefaultPower})
	net.Run(30)

	one := net.Node(state.NodeIdFromShort(1)).Opera
	assert.True(t, one.Eond.IsSym(state.NodeIdFromShort(2)))
	assert.False(t, one.Eond.IsSym(state.NodeIdFromShort(3)), "3 never hears 1")
	assert.NotNil(t, one.Eond.Find(state.NodeIdFromShort(3)))
	_, ok := one.NextHop(state.NodeIdFromShort(3))
	assert.False(t, ok, "3 is not a usable hop")
	assert.Equal(t, ids(2), net.Neighbors(state.NodeIdFromShort(1)))

	net.Disconnect(state.NodeIdFromShort(1), state.NodeIdFromShort(2))
	net.Run(30)
	assert.False(t, one.Eond.IsSym(state.NodeIdFromShort(2)))
}

func colorNetwork(t *testing.T, net *Network, root state.NodeId) {
	t.Helper()
	require.NoError(t, net.Node(root).Opera.StartEostc(true))
	require.True(t, net.RunUntil(3000, net.Colored), "coloring did not finish")
	require.NoError(t, net.CheckColoring())
	assert.Equal(t, 1, net.Colorings)
	assert.False(t, net.ColoringMode)

	nb := net.Node(root).NbColor
	for _, n := range net.Nodes() {
		assert.LessOrEqual(t, int(n.Color), nb, "node %s", n.Id)
		for _, c := range n.NeighborColors {
			assert.NotEqual(t, n.Color, c, "node %s", n.Id)
		}
	}
}

func TestNetworkColorLine(t *testing.T) {
	net := newNet(t, []Edge{edge(1, 2), edge(2, 3), edge(3, 4)}, 1, 2, 3, 4)
	colorNetwork(t, net, state.NodeIdFromShort(4))
	// children never take a color below their parent's
	assert.Equal(t, 4, net.Node(state.NodeIdFromShort(4)).NbColor)
}

func TestNetworkColorStar(t *testing.T) {
	var edges []Edge
	for v := uint16(2); v <= 6; v++ {
		edges = append(edges, edge(1, v))
	}
	net := newNet(t, edges, 1, 2, 3, 4, 5, 6)
	colorNetwork(t, net, state.NodeIdFromShort(1))
	assert.Equal(t, 6, net.Node(state.NodeIdFromShort(1)).NbColor)
}

// randomGraph is a random spanning tree over 1..n with n/2 extra chords.
func randomGraph(rng *rand.Rand, n uint16) []Edge {
	seen := map[Edge]bool{}
	var edges []Edge
	add := func(a, b uint16) {
		e := edge(a, b)
		if a != b && !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	for v := uint16(2); v <= n; v++ {
		add(v, 1+uint16(rng.IntN(int(v-1))))
	}
	for range n / 2 {
		add(1+uint16(rng.IntN(int(n))), 1+uint16(rng.IntN(int(n))))
	}
	return edges
}

func nodeRange(n uint16) []uint16 {
	var nodes []uint16
	for v := uint16(1); v <= n; v++ {
		nodes = append(nodes, v)
	}
	return nodes
}

func TestNetworkColorRandomGraphs(t *testing.T) {
	for seed := uint64(1); seed <= 30; seed++ {
		n := 8 + uint16(seed%13)
		t.Run(fmt.Sprintf("seed=%d/n=%d", seed, n), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed))
			net := newNet(t, randomGraph(rng, n), nodeRange(n)...)
			colorNetwork(t, net, state.NodeIdFromShort(1))
		})
	}
}

func TestNetworkColorRing(t *testing.T) {
	const n = 12
	var edges []Edge
	for v := uint16(1); v <= n; v++ {
		edges = append(edges, edge(v, v%n+1))
	}
	net := newNet(t, edges, nodeRange(n)...)
	colorNetwork(t, net, state.NodeIdFromShort(1))
	// every node sees four others within two hops
	assert.GreaterOrEqual(t, net.Node(state.NodeIdFromShort(1)).NbColor, 3)
}

func TestNetworkColorGrid(t *testing.T) {
	const side = 4
	at := func(x, y uint16) uint16 { return 1 + y*side + x }
	var edges []Edge
	for y := uint16(0); y < side; y++ {
		for x := uint16(0); x < side; x++ {
			if x+1 < side {
				edges = append(edges, edge(at(x, y), at(x+1, y)))
			}
			if y+1 < side {
				edges = append(edges, edge(at(x, y), at(x, y+1)))
			}
		}
	}
	net := newNet(t, edges, nodeRange(side*side)...)
	colorNetwork(t, net, state.NodeIdFromShort(at(1, 1)))
	// an inner node and its four neighbors all differ
	assert.GreaterOrEqual(t, net.Node(state.NodeIdFromShort(at(1, 1))).NbColor, 5)
}
