package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// OperaHarness records every host call of an Opera.
type OperaHarness struct {
	actions []HarnessEvent
	logged  []Event
}

func (h *OperaHarness) Log(event Event, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
	h.logged = append(h.logged, event)
}

func (h *OperaHarness) ShouldRunSerena(run bool) {
	h.actions = append(h.actions, MakeEvent("SHOULD_RUN_SERENA", run))
}

func (h *OperaHarness) ShouldRunSerenaResponse() {
	h.actions = append(h.actions, MakeEvent("SHOULD_RUN_SERENA_RESPONSE"))
}

func (h *OperaHarness) SetNbColor(nb int) {
	h.actions = append(h.actions, MakeEvent("SET_NB_COLOR", nb))
}

func (h *OperaHarness) SetColorInfo(color uint8, neighborColors []uint8) {
	h.actions = append(h.actions, MakeEvent("SET_COLOR_INFO", color, neighborColors))
}

// Count returns how many times event was logged since the last Forget.
func (h *OperaHarness) Count(event Event) int {
	n := 0
	for _, e := range h.logged {
		if e == event {
			n++
		}
	}
	return n
}

func (h *OperaHarness) Forget() {
	h.logged = nil
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h HarnessEvents) count(msg string, args ...any) int {
	n := 0
	for _, action := range h {
		if action.Message == msg && cmp.Equal(action.Args, args) {
			n++
		}
	}
	return n
}

func (h HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if h.count(msg, args...) == 0 {
		t.Errorf("expected %s %v in:\n%s", msg, args, h)
	}
}

func (h HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if h.count(msg, args...) != 0 {
		t.Errorf("unexpected %s %v in:\n%s", msg, args, h)
	}
}

func (h *OperaHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

// helpers shared by the engine tests

func id(v uint16) state.NodeId {
	return state.NodeIdFromShort(v)
}

// testCfg is a cycle driven configuration without jitter.
func testCfg() *state.ProtocolCfg {
	cfg := state.DefaultProtocolCfg(10)
	cfg.Cref = 16
	cfg.Eond = state.EondCfg{HelloInterval: 5, HoldTime: 17, DelayedUpdate: true}
	cfg.Eostc = state.EostcCfg{StcInterval: 5, TreeHoldTime: 17, StabilityTime: 20, Colored: true}
	cfg.Serena.ColorInterval = 5
	cfg.Serena.Jitter = 0
	return &cfg
}

func newTestOperaCfg(v uint16, cfg *state.ProtocolCfg) (*Opera, *OperaHarness) {
	h := &OperaHarness{}
	o := New(state.NewBase(id(v), cfg, 1), h)
	o.Start()
	return o, h
}

func newTestOpera(v uint16) (*Opera, *OperaHarness) {
	return newTestOperaCfg(v, testCfg())
}

// vt is the validity advertised by the test neighbors, 17 ticks.
var vt = state.TicksToVtime(17, 16)

func encode(t *testing.T, enc func(w *protocol.Writer)) []byte {
	t.Helper()
	w := protocol.NewWriter(make([]byte, state.MaxPacketSize))
	enc(w)
	require.NoError(t, w.Err())
	return w.Bytes()
}

func hello(t *testing.T, sender state.NodeId, sym ...state.NodeId) []byte {
	h := protocol.Hello{Sender: sender, Vtime: vt, Sym: sym}
	return encode(t, h.Encode)
}

func stc(t *testing.T, m protocol.Stc) []byte {
	if m.Vtime == 0 {
		m.Vtime = vt
	}
	return encode(t, m.Encode)
}

func treeStatus(t *testing.T, m protocol.TreeStatus) []byte {
	return encode(t, m.Encode)
}

func color(t *testing.T, m protocol.Color) []byte {
	return encode(t, func(w *protocol.Writer) {
		protocol.ColorCodec{}.Encode(w, &m)
	})
}

// drain offers transmit buffers until the Opera stops asking for one.
func drain(o *Opera) [][]byte {
	var out [][]byte
	for range 8 {
		buf := make([]byte, state.MaxPacketSize)
		n, more := o.WakeupWithBuffer(buf)
		if n > 0 {
			out = append(out, buf[:n])
		}
		if !more {
			break
		}
	}
	return out
}

func framesOf(frames [][]byte, typ byte) [][]byte {
	var out [][]byte
	for _, f := range frames {
		if f[0] == typ {
			out = append(out, f)
		}
	}
	return out
}
