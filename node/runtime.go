package node

import (
	"errors"
	"net"
	"time"

	"github.com/encodeous/opera/core"
	"github.com/encodeous/opera/protocol"
	"github.com/encodeous/opera/state"
	"github.com/google/uuid"
)

// the engine is never polled faster than this, even with 1ms ticks
const minPoll = 10 * time.Millisecond

// repeated warnings are written once per warnWindow
const warnWindow = time.Minute

// Runtime owns the Opera of this node. Every call into the Opera happens on
// the dispatch goroutine.
type Runtime struct {
	Opera      *core.Opera
	Transport  Transport
	InstanceId uuid.UUID
	Cfg        state.ProtocolCfg

	// what the engines told the host
	ColoringMode bool
	NbColor      int
	Color        uint8
	Neighbors    []uint8

	start time.Time
	tick  time.Duration
	buf   []byte
	log   *core.LogHost
}

type host struct {
	*core.LogHost
	r *Runtime
	s *state.State
}

func (h *host) ShouldRunSerena(run bool) {
	h.r.ColoringMode = run
	h.s.Log.Info("coloring mode", "run", run)
}

func (h *host) ShouldRunSerenaResponse() {
	h.s.Log.Debug("coloring mode acknowledged")
}

func (h *host) SetNbColor(nb int) {
	h.r.NbColor = nb
	h.s.Log.Info("coloring finished", "colors", nb)
}

func (h *host) SetColorInfo(color uint8, neighbors []uint8) {
	h.r.Color = color
	h.r.Neighbors = neighbors
	h.s.Log.Info("color assigned", "color", color, "neighbors", neighbors)
}

func (r *Runtime) Init(s *state.State) error {
	if r.Transport == nil {
		return errors.New("runtime has no transport")
	}
	r.Cfg = s.Protocol()
	if err := state.ProtocolValidator(&r.Cfg); err != nil {
		return err
	}
	r.InstanceId = uuid.New()
	r.tick = s.TickLength()
	r.buf = make([]byte, state.MaxPacketSize)

	base := state.NewBase(s.Id, &r.Cfg, uint64(time.Now().UnixNano()))
	copy(base.Diag.StrInfo[:], r.InstanceId.String())
	r.log = core.NewLogHost(s.Log, warnWindow)
	r.Opera = core.New(base, &host{
		LogHost: r.log,
		r:       r,
		s:       s,
	})
	r.Opera.Start()
	if s.Root != state.RootNone {
		if err := r.Opera.StartEostc(s.Root == state.RootColored); err != nil {
			return err
		}
	}
	r.start = time.Now()

	s.Log.Info("engine started", "id", s.Id, "instance", r.InstanceId, "root", s.Root, "tick", r.tick)
	s.RepeatTask(r.step, max(r.tick, minPoll))
	s.RepeatTask(r.sweep, warnWindow)
	go r.receive(s.Env)
	return nil
}

func (r *Runtime) Cleanup(s *state.State) error {
	return r.Transport.Close()
}

func (r *Runtime) sweep(s *state.State) error {
	r.log.Sweep()
	return nil
}

// Now is the protocol clock.
func (r *Runtime) Now() state.Tick {
	return state.Tick(time.Since(r.start) / r.tick)
}

func (r *Runtime) step(s *state.State) error {
	if r.Opera.AdvanceTo(r.Now()) {
		r.transmit(s)
	}
	// the coloring result of a non-root node is only pushed on request
	if c, _ := r.Opera.Serena.Final(); c != state.NoColor && c != r.Color {
		r.Opera.ColorUse(true)
	}
	return nil
}

func (r *Runtime) transmit(s *state.State) {
	for range state.MaxNeighbor {
		n, more := r.Opera.WakeupWithBuffer(r.buf)
		if n > 0 {
			if state.DBG_log_frames {
				s.Log.Debug("send", "frame", protocol.Dump(r.buf[:n]))
			}
			if err := r.Transport.Send(r.buf[:n]); err != nil {
				s.Log.Warn("send failed", "err", err)
			}
		}
		if !more {
			return
		}
	}
}

func (r *Runtime) receive(e *state.Env) {
	for {
		frame, power, err := r.Transport.Receive()
		if err != nil {
			if e.Context.Err() == nil && !errors.Is(err, net.ErrClosed) {
				e.Log.Warn("receive failed", "err", err)
				time.Sleep(minPoll)
				continue
			}
			return
		}
		data := make([]byte, len(frame))
		copy(data, frame)
		e.Dispatch(func(s *state.State) error {
			if state.DBG_log_frames {
				s.Log.Debug("recv", "frame", protocol.Dump(data), "power", power)
			}
			r.Opera.PacketReceived(data, power)
			return nil
		})
	}
}
