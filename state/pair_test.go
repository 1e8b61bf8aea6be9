package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSortedPair(t *testing.T) {
	a, b := NodeIdFromShort(1), NodeIdFromShort(0x200)
	assert.Equal(t, Pair[NodeId, NodeId]{a, b}, MakeSortedPair(b, a))
	assert.Equal(t, MakeSortedPair(a, b), MakeSortedPair(b, a))
	assert.Equal(t, Pair[NodeId, NodeId]{a, a}, MakeSortedPair(a, a))
}

func TestSortPairs(t *testing.T) {
	n := NodeIdFromShort
	long := NodeId{1, 0, 0, 0, 0, 0, 0, 0}
	pairs := []Pair[NodeId, NodeId]{
		{long, n(1)},
		{n(3), n(10)},
		{n(1), n(20)},
		{n(1), n(5)},
		{n(2), n(15)},
	}
	SortPairs(pairs)
	assert.Equal(t, []Pair[NodeId, NodeId]{
		{n(1), n(5)},
		{n(1), n(20)},
		{n(2), n(15)},
		{n(3), n(10)},
		{long, n(1)},
	}, pairs)
}
