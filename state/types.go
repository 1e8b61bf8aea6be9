package state

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// NodeId is the link-layer address of a node. Ordering is lexicographic.
type NodeId [AddressSize]byte

var (
	Undefined = NodeId{0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe}
	Broadcast = NodeId{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// NodeIdFromShort expands a 16-bit short address, left padded with zeros.
func NodeIdFromShort(v uint16) NodeId {
	var id NodeId
	binary.BigEndian.PutUint16(id[AddressSize-2:], v)
	return id
}

// Short returns the last two bytes of the address.
func (n NodeId) Short() uint16 {
	return binary.BigEndian.Uint16(n[AddressSize-2:])
}

func (n NodeId) isShort() bool {
	for _, b := range n[:AddressSize-2] {
		if b != 0 {
			return false
		}
	}
	return true
}

func (n NodeId) Compare(o NodeId) int {
	return bytes.Compare(n[:], o[:])
}

func (n NodeId) String() string {
	if n.isShort() {
		return fmt.Sprintf("0x%04x", n.Short())
	}
	return hex.EncodeToString(n[:])
}

// ParseNodeId accepts either the full hex form (16 digits, optional colons)
// or the short form 0x1234.
func ParseNodeId(s string) (NodeId, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	short := strings.HasPrefix(s, "0x")
	s = strings.ReplaceAll(strings.TrimPrefix(s, "0x"), ":", "")
	if short && len(s) > 0 && len(s) <= 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return Undefined, fmt.Errorf("invalid short address %q: %w", s, err)
		}
		return NodeIdFromShort(uint16(v)), nil
	}
	if len(s) != 2*AddressSize {
		return Undefined, fmt.Errorf("invalid address %q: expected %d hex digits", s, 2*AddressSize)
	}
	var id NodeId
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Undefined, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return id, nil
}

func (n NodeId) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NodeId) UnmarshalText(text []byte) error {
	id, err := ParseNodeId(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}
