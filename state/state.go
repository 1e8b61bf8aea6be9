package state

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	NodeCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger

	Started  atomic.Bool
	Stopping atomic.Bool
}

// Diagnostics is the piggybacked system information carried in Hello
// messages.
type Diagnostics struct {
	SysInfo   uint16
	Stability uint8
	Color     uint8
	IntInfo   uint16
	StrInfo   [DiagStringSize]byte
	Warnings  uint32
	Errors    uint32
}

// Base is the per-node context shared by the protocol engines: identity,
// clock and diagnostics. It is owned by a single goroutine.
type Base struct {
	Id   NodeId
	Now  Tick
	Cfg  *ProtocolCfg
	Rand *rand.Rand
	Diag Diagnostics
	// own energy class, advertised in Hello messages
	EnergyClass uint8
}

func NewBase(id NodeId, cfg *ProtocolCfg, seed uint64) *Base {
	return &Base{
		Id:          id,
		Cfg:         cfg,
		Rand:        rand.New(rand.NewPCG(seed, uint64(id.Short()))),
		EnergyClass: cfg.EnergyClass,
	}
}

// After returns now + delay, minus a random jitter in [0, jitter].
func (b *Base) After(delay, jitter Tick) Tick {
	next := b.Now + delay
	if jitter > 0 && b.Rand != nil {
		next -= Tick(b.Rand.Int64N(int64(jitter) + 1))
	}
	return max(next, b.Now)
}
