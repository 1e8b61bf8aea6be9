package core

import (
	"testing"

	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperaRootColoring(t *testing.T) {
	o, h := newTestOpera(1)
	require.NoError(t, o.StartEostc(true))
	mine := o.Eostc.Mine()

	children := []state.NodeId{id(2), id(3)}
	keepAlive := func() {
		for _, c := range children {
			o.PacketReceived(hello(t, c, id(1)), 255)
			o.PacketReceived(childStc(t, c, id(1), id(1), mine.StcSeq), 255)
		}
	}
	keepAlive()
	for _, c := range children {
		o.PacketReceived(stableStatus(t, c, id(1), 0, 1), 255)
	}
	for now := state.Tick(5); now <= 20; now += 5 {
		step(t, o, now, keepAlive)
	}
	require.True(t, mine.Ext.SubtreeStable)
	assert.True(t, o.Serena.Running())
	assert.Equal(t, uint32(3), o.Serena.Priority())
	h.GetActions().AssertContains(t, "SHOULD_RUN_SERENA", true)

	frames := step(t, o, 25, func() {
		keepAlive()
		for _, c := range children {
			o.PacketReceived(color(t, protocol.Color{
				Sender: c, Root: id(1), Color: state.ColorNone, Priority: 1,
				Max1: []protocol.AddrPriority{ap(1, 3)},
				Max2: []protocol.AddrPriority{ap(1, 3)},
			}), 255)
		}
	})
	require.Len(t, framesOf(frames, protocol.TypeColor), 1)
	assert.Equal(t, uint8(0), o.Serena.Color())

	step(t, o, 30, func() {
		keepAlive()
		o.PacketReceived(color(t, protocol.Color{Sender: id(2), Root: id(1), Color: 1, Priority: 1, NbColor: 2}), 255)
		o.PacketReceived(color(t, protocol.Color{Sender: id(3), Root: id(1), Color: 2, Priority: 1, NbColor: 3}), 255)
	})
	for now := state.Tick(35); now <= 60; now += 5 {
		step(t, o, now, keepAlive)
	}

	actions := h.GetActions()
	assert.Equal(t, 1, actions.count("SET_NB_COLOR", 3), "the number of colors is published once")
	actions.AssertContains(t, "SHOULD_RUN_SERENA", false)
	assert.False(t, o.Serena.Running())
	assert.Equal(t, uint8(0x30), o.Diag.Color)
	assert.Equal(t, 1, h.Count(ColoringFinished))

	o.ColorUse(true)
	h.GetActions().AssertContains(t, "SET_COLOR_INFO", uint8(1), []uint8{2, 3})
}

func TestOperaColoringMode(t *testing.T) {
	o, h := newTestOpera(1)
	o.Serena.SetTopology(id(9), 0, 1, []SerenaNeighbor{{Addr: id(2)}})

	o.NotifyShouldRunSerena(true)
	h.GetActions().AssertContains(t, "SHOULD_RUN_SERENA_RESPONSE")
	assert.NotZero(t, o.Diag.SysInfo&state.SysInfoColoringMode)
	assert.NotZero(t, o.Diag.SysInfo&state.SysInfoHasColoringModeIndication)
	assert.False(t, o.Serena.Started(), "starts with the next cycle")

	o.NewCycle()
	assert.True(t, o.Serena.Running())

	o.NotifyShouldRunSerena(false)
	assert.False(t, o.Serena.Running())
	assert.Zero(t, o.Diag.SysInfo&state.SysInfoColoringMode)

	root, h := newTestOpera(3)
	require.NoError(t, root.StartEostc(true))
	root.NotifyShouldRunSerena(true)
	assert.Equal(t, 1, h.Count(SerenaOnRoot))
	h.GetActions().AssertNotContains(t, "SHOULD_RUN_SERENA_RESPONSE")
}

func TestOperaRateLimit(t *testing.T) {
	cfg := testCfg()
	cfg.TransmitRateLimit = 1
	o, _ := newTestOperaCfg(1, cfg)
	require.NoError(t, o.StartEostc(false))

	require.True(t, o.AdvanceTo(5))
	frames := drain(o)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeHello, frames[0][0])

	require.True(t, o.AdvanceTo(6), "the stc is still due")
	frames = drain(o)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeStc, frames[0][0])
}

func TestOperaBlocked(t *testing.T) {
	o, _ := newTestOpera(1)
	o.SetBlocked(true)
	assert.False(t, o.AdvanceTo(5))
	n, more := o.WakeupWithBuffer(make([]byte, state.MaxPacketSize))
	assert.Zero(t, n)
	assert.False(t, more)

	o.SetBlocked(false)
	assert.True(t, o.AdvanceTo(6))
}

func TestOperaReset(t *testing.T) {
	o, h := newTestOpera(1)
	require.NoError(t, o.StartEostc(true))
	o.SetFilter(FilterReject, []state.NodeId{id(2)})
	o.PacketReceived(hello(t, id(3), id(1)), 255)

	o.RequestReset()
	assert.False(t, o.AdvanceTo(1))
	assert.Nil(t, o.Eostc.Mine())
	assert.False(t, o.ColoredRoot())
	assert.Nil(t, o.Eond.Find(id(3)))
	mode, addrs := o.Filter()
	assert.Equal(t, FilterNone, mode)
	assert.Empty(t, addrs)
	assert.Equal(t, 1, h.Count(EngineReset))
}

func TestOperaFilter(t *testing.T) {
	o, h := newTestOpera(1)

	o.SetFilter(FilterReject, []state.NodeId{id(2)})
	o.PacketReceived(hello(t, id(2)), 255)
	assert.Nil(t, o.Eond.Find(id(2)))
	assert.Equal(t, 1, h.Count(MessageIgnored))
	o.PacketReceived(hello(t, id(3)), 255)
	assert.NotNil(t, o.Eond.Find(id(3)))

	o.SetFilter(FilterOnlyAccept, []state.NodeId{id(4)})
	o.PacketReceived(hello(t, id(5)), 255)
	assert.Nil(t, o.Eond.Find(id(5)))
	o.PacketReceived(hello(t, id(4)), 255)
	assert.NotNil(t, o.Eond.Find(id(4)))

	o.SetFilter(FilterReject, []state.NodeId{id(1), id(2), id(3), id(4), id(5)})
	_, addrs := o.Filter()
	assert.Len(t, addrs, state.MaxFilterAddress)
}

func TestOperaBadFrames(t *testing.T) {
	o, h := newTestOpera(1)

	o.PacketReceived([]byte{'Z', 0}, 255)
	assert.Equal(t, 1, h.Count(UnknownMessageType))

	o.PacketReceived([]byte{protocol.TypeHello, 10, 1}, 255)
	assert.Equal(t, 1, h.Count(MalformedMessage))

	o.PacketReceived(append(hello(t, id(2)), 1, 2, 3), 255)
	assert.Equal(t, 1, h.Count(UnusedBytes))
	assert.NotNil(t, o.Eond.Find(id(2)))

	assert.Equal(t, uint32(3), o.Diag.Warnings)
}

func TestOperaStartDelay(t *testing.T) {
	cfg := testCfg()
	cfg.EondStartDelay = 10
	o, _ := newTestOperaCfg(1, cfg)
	assert.False(t, o.AdvanceTo(5))
	assert.True(t, o.AdvanceTo(10))
	frames := drain(o)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeHello, frames[0][0])
}

func TestOperaNextHop(t *testing.T) {
	o, _ := newTestOpera(1)
	hop, ok := o.NextHop(id(1))
	assert.True(t, ok)
	assert.Equal(t, id(1), hop)

	o.PacketReceived(hello(t, id(2), id(1)), 255)
	o.PacketReceived(parentStc(t, id(2), id(9), 1, 5), 255)

	hop, ok = o.NextHop(id(2))
	assert.True(t, ok)
	assert.Equal(t, id(2), hop)

	hop, ok = o.NextHop(id(9))
	assert.True(t, ok)
	assert.Equal(t, id(2), hop)

	_, ok = o.NextHop(id(8))
	assert.False(t, ok)

	// 3 is heard but does not list us
	o.PacketReceived(hello(t, id(3)), 255)
	require.NotNil(t, o.Eond.Find(id(3)))
	_, ok = o.NextHop(id(3))
	assert.False(t, ok)

	o.PacketReceived(hello(t, id(3), id(1)), 255)
	hop, ok = o.NextHop(id(3))
	assert.True(t, ok)
	assert.Equal(t, id(3), hop)
}
