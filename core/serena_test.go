package core

import (
	"testing"

	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ap(v uint16, prio uint32) protocol.AddrPriority {
	return protocol.AddrPriority{Addr: id(v), Priority: prio}
}

func TestInsertTop(t *testing.T) {
	var l []protocol.AddrPriority
	for _, p := range []protocol.AddrPriority{ap(1, 5), ap(2, 7), ap(3, 5), ap(4, 1), ap(5, 9)} {
		l = insertTop(l, p, 4)
	}
	// equal priorities are ordered by address, the larger first
	want := []protocol.AddrPriority{ap(5, 9), ap(2, 7), ap(3, 5), ap(1, 5)}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Errorf("insertTop (-want +got):\n%s", diff)
	}

	assert.Equal(t, want, insertTop(l, ap(2, 7), 4), "duplicates are dropped")
	assert.Equal(t, want, insertTop(l, ap(6, 1), 4), "below the last entry of a full list")
	assert.Equal(t, want, insertTop(l, protocol.AddrPriority{Addr: id(7)}, 4), "no priority")
}

// serenaNode returns a started coloring of tree 9 around node v.
func serenaNode(t *testing.T, cfg *state.ProtocolCfg, v uint16, prio uint32, neighbors ...SerenaNeighbor) (*Opera, *OperaHarness) {
	o, h := newTestOperaCfg(v, cfg)
	o.Serena.SetTopology(id(9), 0, prio, neighbors)
	require.True(t, o.Serena.Start())
	return o, h
}

func generateColor(t *testing.T, s *Serena) *protocol.Color {
	t.Helper()
	buf := make([]byte, state.MaxPacketSize)
	n, err := s.generate(buf)
	require.NoError(t, err)
	m, err := s.codec.Decode(buf[:n])
	require.NoError(t, err)
	return m
}

func TestSerenaNbColor(t *testing.T) {
	o, _ := serenaNode(t, testCfg(), 1, 1,
		SerenaNeighbor{Addr: id(2), IsParent: true},
		SerenaNeighbor{Addr: id(3), IsChild: true},
	)
	s := o.Serena
	assert.Zero(t, s.NbColor())

	s.color = 0
	assert.Zero(t, s.NbColor(), "parent is uncolored")
	s.neighbors[0].Color = 1
	assert.Zero(t, s.NbColor(), "child did not report")
	s.neighbors[1].HasSentMaxColor = true
	s.neighbors[1].ChildMaxColor = 4
	assert.Equal(t, 5, s.NbColor())
}

func TestSerenaColoringRound(t *testing.T) {
	// 2 is our parent, 7 our child; 2 and us tie on priority
	o, h := serenaNode(t, testCfg(), 5, 2,
		SerenaNeighbor{Addr: id(2), IsParent: true},
		SerenaNeighbor{Addr: id(7), IsChild: true},
	)
	s := o.Serena

	first := generateColor(t, s)
	assert.Equal(t, uint8(state.ColorNone), first.Color)
	assert.Empty(t, first.Max1, "lists wait for every neighbor priority")

	o.PacketReceived(color(t, protocol.Color{
		Sender: id(2), Root: id(9), Color: state.ColorNone, Priority: 2,
		Max1: []protocol.AddrPriority{ap(5, 2)},
		Max2: []protocol.AddrPriority{ap(5, 2)},
	}), 255)
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(7), Root: id(9), Color: state.ColorNone, Priority: 1,
		Max1: []protocol.AddrPriority{ap(5, 2)},
		Max2: []protocol.AddrPriority{ap(5, 2)},
	}), 255)

	m := generateColor(t, s)
	assert.Equal(t, uint8(0), s.Color())
	assert.Equal(t, uint8(0), m.Color)
	assert.Equal(t, uint32(2), m.Priority)
	assert.Equal(t, []protocol.AddrPriority{ap(2, 2), ap(7, 1)}, m.Max1)
	assert.Empty(t, m.Max2, "we are colored")
	assert.Zero(t, m.NbColor)
	assert.Equal(t, 1, h.Count(ColorSelected))

	var bm protocol.Bitmap
	bm.Set(0)
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(2), Root: id(9), Color: 1, Priority: 2, Bitmap1: bm,
	}), 255)
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(7), Root: id(9), Color: 2, Priority: 1, NbColor: 3, Bitmap1: bm,
	}), 255)

	m = generateColor(t, s)
	assert.Equal(t, uint8(3), m.NbColor)
	assert.True(t, m.Bitmap1.Has(1))
	assert.True(t, m.Bitmap1.Has(2))

	c, nb := s.Final()
	assert.Equal(t, uint8(1), c)
	assert.Equal(t, []uint8{2, 3}, nb)

	o.ColorUse(true)
	h.GetActions().AssertContains(t, "SET_COLOR_INFO", uint8(1), []uint8{2, 3})
	assert.Equal(t, uint8(0x01), o.Diag.Color)
}

func TestSerenaLowerAddressWaits(t *testing.T) {
	o, _ := serenaNode(t, testCfg(), 1, 2, SerenaNeighbor{Addr: id(2)})
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(2), Root: id(9), Color: state.ColorNone, Priority: 2,
		Max1: []protocol.AddrPriority{ap(1, 2)},
		Max2: []protocol.AddrPriority{ap(1, 2)},
	}), 255)
	generateColor(t, o.Serena)
	assert.Equal(t, uint8(state.ColorNone), o.Serena.Color())
}

func TestSerenaParentColorFloor(t *testing.T) {
	parentColored := protocol.Color{Sender: id(2), Root: id(9), Color: 3, Priority: 4}

	o, _ := serenaNode(t, testCfg(), 5, 1, SerenaNeighbor{Addr: id(2), IsParent: true})
	o.PacketReceived(color(t, parentColored), 255)
	generateColor(t, o.Serena)
	assert.Equal(t, uint8(4), o.Serena.Color())

	cfg := testCfg()
	cfg.Serena.PriorityMode = state.Priority2Hop
	o, _ = serenaNode(t, cfg, 5, 1, SerenaNeighbor{Addr: id(2), IsParent: true})
	o.PacketReceived(color(t, parentColored), 255)
	generateColor(t, o.Serena)
	assert.Equal(t, uint8(0), o.Serena.Color())
}

func TestSerenaImplicitColoring(t *testing.T) {
	o, _ := serenaNode(t, testCfg(), 1, 1, SerenaNeighbor{Addr: id(2)})
	s := o.Serena
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(2), Root: id(9), Color: state.ColorNone, Priority: 3,
		Max1: []protocol.AddrPriority{ap(7, 9), ap(8, 5)},
	}), 255)
	assert.False(t, s.hasColor(id(7)))

	// 7 left the head of the list: it got colored
	o.PacketReceived(color(t, protocol.Color{
		Sender: id(2), Root: id(9), Color: state.ColorNone, Priority: 3,
		Max1: []protocol.AddrPriority{ap(8, 5)},
	}), 255)
	assert.True(t, s.hasColor(id(7)))
	assert.False(t, s.hasColor(id(8)))

	max1, max2, max3 := s.ComputeMaxPrio()
	assert.Equal(t, []protocol.AddrPriority{ap(2, 3)}, max1)
	assert.Equal(t, []protocol.AddrPriority{ap(8, 5)}, max2)
	assert.True(t, max3.None())
}

func TestSerenaStartOnColor(t *testing.T) {
	msg := protocol.Color{Sender: id(2), Root: id(9), Color: state.ColorNone, Priority: 1}

	cfg := testCfg()
	cfg.Serena.StartOnColor = false
	o, _ := newTestOperaCfg(1, cfg)
	o.Serena.SetTopology(id(9), 0, 1, []SerenaNeighbor{{Addr: id(2)}})
	o.PacketReceived(color(t, msg), 255)
	assert.False(t, o.Serena.Started())

	o, h := newTestOpera(1)
	o.PacketReceived(color(t, msg), 255)
	assert.Equal(t, 1, h.Count(NoTopology))

	o.Serena.SetTopology(id(9), 0, 1, []SerenaNeighbor{{Addr: id(2)}})
	other := msg
	other.Root = id(8)
	o.PacketReceived(color(t, other), 255)
	assert.False(t, o.Serena.Started())

	o.PacketReceived(color(t, msg), 255)
	assert.True(t, o.Serena.Running())
	assert.Equal(t, 1, h.Count(SerenaStarted))
}

func TestSerenaMessageChecks(t *testing.T) {
	o, h := serenaNode(t, testCfg(), 1, 1, SerenaNeighbor{Addr: id(2)})

	o.PacketReceived(color(t, protocol.Color{Sender: id(4), Root: id(9), Color: state.ColorNone, Priority: 1}), 255)
	assert.Equal(t, 1, h.Count(UnknownColorNeighbor))

	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), Color: 200, Priority: 1}), 255)
	assert.Equal(t, 1, h.Count(ColorOutOfRange))

	// our own messages come back on a shared medium
	o.PacketReceived(color(t, protocol.Color{Sender: id(1), Root: id(9), Color: state.ColorNone, Priority: 1}), 255)
	assert.Equal(t, 1, h.Count(UnknownColorNeighbor))

	// a newer coloring round of the tree
	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), TreeSeq: 1, Color: state.ColorNone, Priority: 1}), 255)
	assert.False(t, o.Serena.Running())
	assert.Equal(t, 1, h.Count(SerenaStopped))
}

func TestSerenaSoftStop(t *testing.T) {
	cfg := testCfg()
	cfg.Serena.SoftStop = true
	o, _ := serenaNode(t, cfg, 5, 1, SerenaNeighbor{Addr: id(2)})
	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), Color: 1, Priority: 4}), 255)

	generateColor(t, o.Serena)
	assert.Equal(t, uint8(0), o.Serena.Color())
	assert.True(t, o.Serena.Wakeup().Soft.Defined(), "the empty round still has to go out")

	generateColor(t, o.Serena)
	assert.False(t, o.Serena.Wakeup().Soft.Defined())
	assert.Zero(t, o.Serena.NotifyWakeup(make([]byte, state.MaxPacketSize)))
}

func TestSerenaSoftStopAfterBusyRound(t *testing.T) {
	cfg := testCfg()
	cfg.Serena.SoftStop = true
	o, _ := serenaNode(t, cfg, 5, 1, SerenaNeighbor{Addr: id(2)})
	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), Color: 1, Priority: 4}), 255)
	generateColor(t, o.Serena)
	require.Equal(t, uint8(0), o.Serena.Color())

	// 7 is still uncolored two hops away
	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), Color: 1, Priority: 4,
		Max1: []protocol.AddrPriority{{Addr: id(7), Priority: 2}}}), 255)
	m := generateColor(t, o.Serena)
	assert.NotEmpty(t, m.Max2)

	// 7 dropped out of the list, it got a color
	o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(9), Color: 1, Priority: 4}), 255)
	generateColor(t, o.Serena)
	assert.True(t, o.Serena.Wakeup().Soft.Defined(), "the first empty round after a busy one still goes out")

	generateColor(t, o.Serena)
	assert.False(t, o.Serena.Wakeup().Soft.Defined())
}
