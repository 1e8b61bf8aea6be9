package core

import (
	"encoding/binary"

	"github.com/encodeous/opera/perf"
	"github.com/encodeous/opera/state"
)

// command codes of the control channel
const (
	CmdGetVersion         byte = 0x01
	CmdSetBlocked         byte = 0x02
	CmdGetBlocked         byte = 0x03
	CmdReset              byte = 0x04
	CmdSetHelloInterval   byte = 0x10
	CmdGetHelloInterval   byte = 0x11
	CmdSetHoldTime        byte = 0x12
	CmdGetHoldTime        byte = 0x13
	CmdSetEondStartDelay  byte = 0x14
	CmdGetEondStartDelay  byte = 0x15
	CmdSetEnergyClass     byte = 0x16
	CmdGetEnergyClass     byte = 0x17
	CmdSetStcInterval     byte = 0x20
	CmdGetStcInterval     byte = 0x21
	CmdSetTreeHoldTime    byte = 0x22
	CmdGetTreeHoldTime    byte = 0x23
	CmdSetStabilityTime   byte = 0x24
	CmdGetStabilityTime   byte = 0x25
	CmdStartEostcRoot     byte = 0x26
	CmdStopEostcRoot      byte = 0x27
	CmdGetEostcRoot       byte = 0x28
	CmdSetEostcStartDelay byte = 0x29
	CmdGetEostcStartDelay byte = 0x2a
	CmdSetMyTree          byte = 0x2b
	CmdGetMyTree          byte = 0x2c
	CmdGetTreeSeq         byte = 0x2d
	CmdIncTreeSeq         byte = 0x2e
	CmdSetColorInterval   byte = 0x30
	CmdGetColorInterval   byte = 0x31
	CmdSetRateLimit       byte = 0x40
	CmdGetRateLimit       byte = 0x41
	CmdSetFilter          byte = 0x50
	CmdGetFilter          byte = 0x51
	CmdAreYouThere        byte = 0x60
)

// result codes
const (
	CodeOk           byte = 0x00
	CodeResetPending byte = 0xca
	CodeUnknown      byte = 0xf0
	CodeBadRequest   byte = 0xf1
	CodeNotAllowed   byte = 0xfd
	CodeBadMode      byte = 0xfe
	CodeTooShort     byte = 0xff
)

const (
	CommandVersion   byte = 0x00
	MinCommandResult      = 20
)

// kinds of own tree, as returned by CmdGetMyTree
const (
	treeKindNone byte = iota
	treeKindPlain
	treeKindColored
)

// u16Param is a configuration value readable and writable as a u16
type u16Param struct {
	get func(o *Opera) uint16
	set func(o *Opera, v uint16)
}

func tickParam(field func(c *state.ProtocolCfg) *state.Tick) u16Param {
	return u16Param{
		get: func(o *Opera) uint16 { return uint16(min(max(*field(o.Cfg), 0), 0xffff)) },
		set: func(o *Opera, v uint16) { *field(o.Cfg) = state.Tick(v) },
	}
}

// params maps each SET code to its parameter, the GET code follows it.
var params = map[byte]u16Param{
	CmdSetHelloInterval:   tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Eond.HelloInterval }),
	CmdSetHoldTime:        tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Eond.HoldTime }),
	CmdSetEondStartDelay:  tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.EondStartDelay }),
	CmdSetStcInterval:     tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Eostc.StcInterval }),
	CmdSetTreeHoldTime:    tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Eostc.TreeHoldTime }),
	CmdSetStabilityTime:   tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Eostc.StabilityTime }),
	CmdSetEostcStartDelay: tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.EostcStartDelay }),
	CmdSetColorInterval:   tickParam(func(c *state.ProtocolCfg) *state.Tick { return &c.Serena.ColorInterval }),
	CmdSetRateLimit: {
		get: func(o *Opera) uint16 { return uint16(min(max(o.Cfg.TransmitRateLimit, 0), 0xffff)) },
		set: func(o *Opera, v uint16) { o.Cfg.TransmitRateLimit = int(v) },
	},
	CmdSetEnergyClass: {
		get: func(o *Opera) uint16 { return uint16(o.EnergyClass) },
		set: func(o *Opera, v uint16) { o.EnergyClass = uint8(min(v, state.EnergyClassNb-1)) },
	},
}

func (o *Opera) myTreeKind() byte {
	switch t := o.Eostc.Mine(); {
	case t == nil:
		return treeKindNone
	case t.Colored():
		return treeKindColored
	}
	return treeKindPlain
}

// Command executes one control request. It returns the result code and
// the number of bytes written to result.
func (o *Opera) Command(payload, result []byte) (byte, int) {
	if len(payload) == 0 || len(result) < MinCommandResult {
		return CodeBadRequest, 0
	}
	cmd := payload[0]
	perf.CommandsPerSecond.Add(1)
	o.Log(CommandReceived, "command", "cmd", cmd, "size", len(payload))

	if p, ok := params[cmd]; ok {
		if len(payload) < 3 {
			return CodeTooShort, 0
		}
		p.set(o, binary.BigEndian.Uint16(payload[1:]))
		return CodeOk, 0
	}
	if p, ok := params[cmd-1]; ok {
		binary.BigEndian.PutUint16(result, p.get(o))
		return CodeOk, 2
	}

	switch cmd {
	case CmdGetVersion:
		return CommandVersion, 0
	case CmdAreYouThere:
		return byte(len(payload)), 0
	case CmdSetBlocked:
		if len(payload) < 2 {
			return CodeTooShort, 0
		}
		o.SetBlocked(payload[1] != 0)
		return boolCode(o.blocked), 0
	case CmdGetBlocked:
		return boolCode(o.blocked), 0
	case CmdReset:
		o.RequestReset()
		return CodeResetPending, 0

	case CmdStartEostcRoot:
		if len(payload) < 3 {
			return CodeTooShort, 0
		}
		err := o.StartEostc(binary.BigEndian.Uint16(payload[1:]) != 0)
		return boolCode(err == nil), 0
	case CmdStopEostcRoot:
		o.StopEostc()
		return CodeOk, 0
	case CmdGetEostcRoot:
		var short uint16
		mine := o.Eostc.Mine() != nil
		if mine {
			short = o.Id.Short()
		}
		binary.BigEndian.PutUint16(result, short)
		return boolCode(mine), 2

	case CmdSetMyTree:
		if len(payload) < 3 {
			return CodeTooShort, 0
		}
		if o.Eostc.Mine() != nil {
			return CodeNotAllowed, 0
		}
		err := o.StartEostc(binary.BigEndian.Uint16(payload[1:]) != 0)
		return boolCode(err == nil), 0
	case CmdGetMyTree:
		kind := o.myTreeKind()
		binary.BigEndian.PutUint16(result, uint16(kind))
		return kind, 2
	case CmdGetTreeSeq:
		kind := o.myTreeKind()
		var seq uint16
		if kind == treeKindColored {
			seq = o.Eostc.Mine().Ext.TreeSeq
		}
		binary.BigEndian.PutUint16(result, seq)
		return kind, 2
	case CmdIncTreeSeq:
		if o.myTreeKind() != treeKindColored {
			return CodeNotAllowed, 0
		}
		o.RequestTreeSeqInc()
		return treeKindColored, 0

	case CmdSetFilter:
		if len(payload) < 2 {
			return CodeTooShort, 0
		}
		mode := FilterMode(payload[1])
		if mode > FilterOnlyAccept {
			return CodeBadMode, 0
		}
		var addrs []state.NodeId
		for rest := payload[2:]; len(rest) >= 2 && len(addrs) < state.MaxFilterAddress; rest = rest[2:] {
			addrs = append(addrs, state.NodeIdFromShort(binary.BigEndian.Uint16(rest)))
		}
		o.SetFilter(mode, addrs)
		return byte(len(addrs)), 0
	case CmdGetFilter:
		result[0] = byte(o.filterMode)
		n := 1
		for _, a := range o.filter {
			binary.BigEndian.PutUint16(result[n:], a.Short())
			n += 2
		}
		return CodeOk, n
	}
	return CodeUnknown, 0
}

func boolCode(v bool) byte {
	if v {
		return 1
	}
	return 0
}
