package sim

import (
	"strings"
	"testing"

	"github.com/encodeous/opera/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(v ...uint16) []state.NodeId {
	out := make([]state.NodeId, 0, len(v))
	for _, x := range v {
		out = append(out, state.NodeIdFromShort(x))
	}
	return out
}

func edge(a, b uint16) Edge {
	return state.MakeSortedPair(state.NodeIdFromShort(a), state.NodeIdFromShort(b))
}

func TestParseGraph_SimpleGraph(t *testing.T) {
	input := `0x1, 0x2
0x3, 0x4
0x1,0x3,0x5`
	pairs, err := ParseGraph(strings.Split(input, "\n"), ids(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.ElementsMatch(t, []Edge{
		edge(1, 2),
		edge(3, 4),
		edge(1, 3),
		edge(3, 5),
		edge(1, 5),
	}, pairs)
}

func TestParseGraph_Groups(t *testing.T) {
	input := `a = 0x1,0x2
b=0x3,,,0x4
c=0x5,0x6
d=a,b // nested
d,d
0x7,d`
	pairs, err := ParseGraph(strings.Split(input, "\n"), ids(1, 2, 3, 4, 5, 6, 7))
	require.NoError(t, err)
	assert.ElementsMatch(t, []Edge{
		// d,d
		edge(1, 2),
		edge(1, 3),
		edge(1, 4),
		edge(2, 3),
		edge(2, 4),
		edge(3, 4),
		// 0x7,d
		edge(1, 7),
		edge(2, 7),
		edge(3, 7),
		edge(4, 7),
	}, pairs)
}

func TestParseGraph_GroupsNotLinkedWithin(t *testing.T) {
	pairs, err := ParseGraph([]string{"a = 0x1, 0x2", "a, 0x3"}, ids(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []Edge{edge(1, 3), edge(2, 3)}, pairs)
}

func TestParseGraph_Cycle(t *testing.T) {
	input := `a = b
b = c
c = a`
	_, err := ParseGraph(strings.Split(input, "\n"), nil)
	assert.ErrorContains(t, err, "cycle detected in graph: [a b c]")
}

func TestParseGraph_Errors(t *testing.T) {
	nodes := ids(1, 2)
	for name, graph := range map[string][]string{
		"unknown symbol":   {"0x1, x"},
		"unknown node":     {"0x1, 0x9"},
		"single":           {"0x1"},
		"empty group":      {"a = ,", "a, 0x1"},
		"duplicate group":  {"a = 0x1", "a = 0x2"},
		"address as group": {"0x1 = 0x2"},
		"two equals":       {"a = b = 0x1"},
	} {
		_, err := ParseGraph(graph, nodes)
		assert.Error(t, err, name)
	}
}

func TestParseGraph_Dedup(t *testing.T) {
	pairs, err := ParseGraph([]string{"0x2, 0x1", "0x1, 0x2", "0x1, 0x1"}, ids(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []Edge{edge(1, 2)}, pairs)
}
