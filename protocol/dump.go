package protocol

import (
	"fmt"
	"strings"

	"github.com/encodeous/opera/state"
)

// Dump renders every frame of buf on one line, using short priorities.
func Dump(buf []byte) string {
	return ColorCodec{}.Dump(buf)
}

func (c ColorCodec) Dump(buf []byte) string {
	frames, err := SplitFrames(buf)
	parts := make([]string, 0, len(frames)+1)
	for _, f := range frames {
		parts = append(parts, c.dumpFrame(f))
	}
	if err != nil {
		parts = append(parts, fmt.Sprintf("<%v>", err))
	}
	return strings.Join(parts, " | ")
}

func (c ColorCodec) dumpFrame(f Frame) string {
	var (
		s   string
		err error
	)
	switch f.Type {
	case TypeHello:
		var m *Hello
		if m, err = DecodeHello(f.Raw); err == nil {
			s = fmt.Sprintf("HELLO %s seq=%d vtime=0x%02x energy=%d sym=%v asym=%v sys=0x%04x stab=%d color=0x%02x",
				m.Sender, m.Seq, m.Vtime, m.EnergyClass, m.Sym, m.Asym, m.SysInfo, m.Stability, m.Color)
			if m.IntInfo != 0 {
				s += fmt.Sprintf(" int=%d str=%q", m.IntInfo, strings.TrimRight(string(m.StrInfo[:]), "\x00"))
			}
		}
	case TypeStc:
		var m *Stc
		if m, err = DecodeStc(f.Raw); err == nil {
			s = fmt.Sprintf("STC %s seq=%d root=%s cost=%d parent=%s vtime=0x%02x ttl=%d flags=%s tree_seq=%d",
				m.Sender, m.Seq, m.Root, m.Cost, m.Parent, m.Vtime, m.TTL, FlagString(m.Flags), m.TreeSeq)
		}
	case TypeTreeStatus:
		var m *TreeStatus
		if m, err = DecodeTreeStatus(f.Raw); err == nil {
			s = fmt.Sprintf("TREE-STATUS %s seq=%d root=%s tree_seq=%d desc=%d flags=%s",
				m.Sender, m.Seq, m.Root, m.TreeSeq, m.Descendant, FlagString(m.Flags))
		}
	case TypeColor:
		var m *Color
		if m, err = c.Decode(f.Raw); err == nil {
			s = fmt.Sprintf("COLOR %s root=%s tree_seq=%d nb_color=%d color=%s prio=%d max1=%v max2=%v bm1=%v bm2=%v",
				m.Sender, m.Root, m.TreeSeq, m.NbColor, colorString(m.Color), m.Priority, m.Max1, m.Max2,
				m.Bitmap1.Colors(), m.Bitmap2.Colors())
		}
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x) len=%d", f.Type, len(f.Payload))
	}
	if err != nil {
		return fmt.Sprintf("%c <%v>", f.Type, err)
	}
	return s
}

func colorString(c uint8) string {
	if c == state.ColorNone {
		return "none"
	}
	return fmt.Sprint(c)
}

var flagNames = []struct {
	bit  uint8
	name string
}{
	{FlagColored, "colored"},
	{FlagStable, "stable"},
	{FlagBecameUnstable, "became-unstable"},
	{FlagInconsistent, "inconsistent"},
	{FlagTreeChange, "tree-change"},
	{FlagColorConflict, "color-conflict"},
	{FlagNewNeighbor, "new-neighbor"},
}

// FlagString lists the set tree flags, e.g. "colored,stable".
func FlagString(flags uint8) string {
	var names []string
	for _, f := range flagNames {
		if flags&f.bit != 0 {
			names = append(names, f.name)
			flags &^= f.bit
		}
	}
	if flags != 0 {
		names = append(names, fmt.Sprintf("0x%02x", flags))
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
