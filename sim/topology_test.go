package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/encodeous/opera/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triangle = `
loss: 0.1
nodes:
  - id: "0x1"
    root: colored
  - id: "0x2"
  - id: "0x3"
    energy_class: 2
graph:
  - all = 0x1, 0x2, 0x3
  - all, all
links:
  - from: "0x2"
    to: "0x3"
    power: 40
    loss: 0
  - from: "0x3"
    to: "0x1"
    one_way: true
    loss: 1
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology([]byte(triangle))
	require.NoError(t, err)
	assert.Equal(t, "ocari", topo.Preset)
	assert.Equal(t, uint8(DefaultPower), topo.Power)
	assert.Equal(t, state.RootColored, topo.Nodes[0].Root)

	net, err := topo.Build(nil)
	require.NoError(t, err)
	assert.True(t, net.Node(state.NodeIdFromShort(1)).Opera.ColoredRoot())
	assert.Equal(t, uint8(2), net.Node(state.NodeIdFromShort(3)).Opera.EnergyClass)

	l, ok := net.LinkOf(state.NodeIdFromShort(3), state.NodeIdFromShort(2))
	require.True(t, ok)
	assert.Equal(t, Link{Power: 40}, l)
	l, _ = net.LinkOf(state.NodeIdFromShort(3), state.NodeIdFromShort(1))
	assert.Equal(t, 1.0, l.Loss)
	l, _ = net.LinkOf(state.NodeIdFromShort(1), state.NodeIdFromShort(3))
	assert.Equal(t, 0.1, l.Loss, "one-way override")
	assert.Equal(t, ids(1, 2), net.Neighbors(state.NodeIdFromShort(3)))
}

func TestTopologyInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"no nodes":  "graph: []",
		"duplicate": "nodes: [{id: '0x1'}, {id: '0x1'}]",
		"reserved":  "nodes: [{id: fefefefefefefefe}]",
		"loss":      "loss: 1.5\nnodes: [{id: '0x1'}]",
		"graph":     "nodes: [{id: '0x1'}]\ngraph: ['0x1, 0x2']",
		"link":      "nodes: [{id: '0x1'}]\nlinks: [{from: '0x1', to: '0x7'}]",
		"preset":    "preset: nope\nnodes: [{id: '0x1'}]",
		"root role": "nodes: [{id: '0x1', root: purple}]",
	} {
		topo, err := ParseTopology([]byte(doc))
		if err == nil {
			_, err = topo.Build(nil)
		}
		assert.Error(t, err, name)
	}
}

func TestLoadTopologyLossy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 7
loss: 0.2
nodes:
  - {id: "0x1", root: plain}
  - {id: "0x2"}
  - {id: "0x3"}
graph:
  - 0x1, 0x2
  - 0x2, 0x3
`), 0600))
	topo, err := LoadTopology(path)
	require.NoError(t, err)
	net, err := topo.Build(nil)
	require.NoError(t, err)

	root := state.NodeIdFromShort(1)
	require.True(t, net.RunUntil(500, func() bool { return net.TreeBuilt(root, false) }))
	parent, _ := net.Parent(state.NodeIdFromShort(3), root, false)
	assert.Equal(t, state.NodeIdFromShort(2), parent)
	assert.NotZero(t, net.Node(state.NodeIdFromShort(2)).Lost)
}
