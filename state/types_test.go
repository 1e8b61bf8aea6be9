package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIdShort(t *testing.T) {
	id := NodeIdFromShort(0x1234)
	assert.Equal(t, NodeId{0, 0, 0, 0, 0, 0, 0x12, 0x34}, id)
	assert.Equal(t, uint16(0x1234), id.Short())
	assert.Equal(t, "0x1234", id.String())
}

func TestNodeIdString(t *testing.T) {
	assert.Equal(t, "0102030405060708", NodeId{1, 2, 3, 4, 5, 6, 7, 8}.String())
	assert.Equal(t, "fefefefefefefefe", Undefined.String())
	assert.Equal(t, "0x0000", NodeId{}.String())
}

func TestParseNodeId(t *testing.T) {
	tests := []struct {
		in   string
		want NodeId
	}{
		{"0x1", NodeIdFromShort(1)},
		{"0xBEEF", NodeIdFromShort(0xbeef)},
		{" 0x0002 ", NodeIdFromShort(2)},
		{"0102030405060708", NodeId{1, 2, 3, 4, 5, 6, 7, 8}},
		{"01:02:03:04:05:06:07:08", NodeId{1, 2, 3, 4, 5, 6, 7, 8}},
		{"0x0102030405060708", NodeId{1, 2, 3, 4, 5, 6, 7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeId(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNodeId_Invalid(t *testing.T) {
	for _, in := range []string{"", "0x", "0xzz", "123", "0102030405060708aa", "g102030405060708"} {
		_, err := ParseNodeId(in)
		assert.Error(t, err, in)
	}
}

func TestNodeIdText(t *testing.T) {
	for _, id := range []NodeId{NodeIdFromShort(7), {1, 2, 3, 4, 5, 6, 7, 8}, Broadcast} {
		text, err := id.MarshalText()
		require.NoError(t, err)
		var back NodeId
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, id, back)
	}
}

func TestNodeIdCompare(t *testing.T) {
	a := NodeIdFromShort(1)
	b := NodeIdFromShort(2)
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, b.Compare(NodeId{1}))
}
