//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/opera/node"
	"github.com/encodeous/opera/state"
	"github.com/encodeous/tint"
)

// VirtualLink is a one way radio link. Frames are received with Power.
type VirtualLink struct {
	Edge       state.Pair[state.NodeId, state.NodeId]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
	Power      uint8
	down       bool
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

func (v *VirtualLink) WithPower(power uint8) *VirtualLink {
	v.Power = power
	return v
}

type packet struct {
	data  []byte
	power uint8
}

// VirtualPort is the radio of one node. Frames sent on it reach every
// node with a link from this one.
type VirtualPort struct {
	net    *VirtualNetwork
	id     state.NodeId
	in     chan packet
	closed chan struct{}
	once   sync.Once
}

func (p *VirtualPort) Send(frame []byte) error {
	select {
	case <-p.closed:
		return net.ErrClosed
	default:
	}
	p.net.broadcast(p.id, slices.Clone(frame))
	return nil
}

func (p *VirtualPort) Receive() ([]byte, uint8, error) {
	select {
	case pkt := <-p.in:
		return pkt.data, pkt.power, nil
	case <-p.closed:
		return nil, 0, net.ErrClosed
	}
}

func (p *VirtualPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *VirtualPort) deliver(pkt packet) {
	select {
	case p.in <- pkt:
	case <-p.closed:
	default:
		// receiver is not keeping up, the frame is lost like on air
	}
}

type VirtualNetwork struct {
	sync.Mutex
	cfg   *VirtualHarness
	ports map[state.NodeId]*VirtualPort
}

func (i *VirtualNetwork) broadcast(from state.NodeId, frame []byte) {
	i.Lock()
	defer i.Unlock()
	for _, l := range i.cfg.Links {
		if l.Edge.V1 != from || l.down {
			continue
		}
		to, ok := i.ports[l.Edge.V2]
		if !ok || rand.Float64() < l.PacketLoss {
			continue
		}
		pkt := packet{data: frame, power: l.Power}
		if l.Latency == 0 {
			to.deliver(pkt)
			continue
		}
		lat := l.Latency + time.Duration(rand.Float64()*float64(l.Jitter.Nanoseconds()))
		go func() {
			select {
			case <-i.cfg.Context.Done():
			case <-time.After(lat):
				to.deliver(pkt)
			}
		}()
	}
}

func (i *VirtualNetwork) port(id state.NodeId) *VirtualPort {
	i.Lock()
	defer i.Unlock()
	p := &VirtualPort{
		net:    i,
		id:     id,
		in:     make(chan packet, 64),
		closed: make(chan struct{}),
	}
	i.ports[id] = p
	return p
}

// SetLink brings every link between a and b up or down.
func (i *VirtualNetwork) SetLink(a, b state.NodeId, up bool) {
	i.Lock()
	defer i.Unlock()
	for _, l := range i.cfg.Links {
		if (l.Edge.V1 == a && l.Edge.V2 == b) || (l.Edge.V1 == b && l.Edge.V2 == a) {
			l.down = !up
		}
	}
}

type VirtualHarness struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Nodes   []state.NodeCfg
	Net     *VirtualNetwork
	States  []*state.State
	Links   []*VirtualLink
	Verbose bool
	errs    []chan error
}

func (v *VirtualHarness) IndexOf(id state.NodeId) int {
	return slices.IndexFunc(v.Nodes, func(cfg state.NodeCfg) bool {
		return cfg.Id == id
	})
}

// NewNode adds a node on the ocari cycle clock with a 10ms cycle.
func (v *VirtualHarness) NewNode(short uint16, root state.RootRole) state.NodeId {
	cfg := state.NodeCfg{
		Id:          state.NodeIdFromShort(short),
		Preset:      "ocari",
		CycleLength: 10 * time.Millisecond,
		Root:        root,
		Control:     "127.0.0.1:0",
	}
	state.ExpandConfig(&cfg)
	v.Nodes = append(v.Nodes, cfg)
	return cfg.Id
}

// AddLink adds a one way link.
func (v *VirtualHarness) AddLink(from, to state.NodeId) *VirtualLink {
	link := &VirtualLink{
		Edge:  state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to},
		Power: 0xff,
	}
	v.Links = append(v.Links, link)
	return link
}

// Connect links a and b both ways.
func (v *VirtualHarness) Connect(a, b state.NodeId) {
	v.AddLink(a, b)
	v.AddLink(b, a)
}

func (v *VirtualHarness) logger(id state.NodeId) *slog.Logger {
	if !v.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:        slog.LevelDebug,
		CustomPrefix: id.String(),
	}))
}

// Start runs every node and waits until all of them are started. Errors of
// nodes that stop early are sent on the returned channel.
func (v *VirtualHarness) Start() chan error {
	ctx, cancel := context.WithCancelCause(context.Background())
	v.Context = ctx
	v.Cancel = cancel
	v.Net = &VirtualNetwork{cfg: v, ports: make(map[state.NodeId]*VirtualPort)}
	v.States = make([]*state.State, len(v.Nodes))
	v.errs = make([]chan error, len(v.Nodes))
	errChan := make(chan error, 128)

	ready := make(chan int, len(v.Nodes))
	for idx, cfg := range v.Nodes {
		v.errs[idx] = make(chan error, 1)
		port := v.Net.port(cfg.Id)
		go func() {
			labels := pprof.Labels("opera node", cfg.Id.String())
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				err := node.Start(cfg, node.Options{
					Logger:    v.logger(cfg.Id),
					Transport: port,
					NoSignals: true,
					Ready: func(s *state.State) {
						v.States[idx] = s
						ready <- idx
					},
				})
				v.errs[idx] <- err
				if err != nil {
					errChan <- fmt.Errorf("node %s: %w", cfg.Id, err)
				}
			})
		}()
	}
	for range v.Nodes {
		select {
		case <-ready:
		case err := <-errChan:
			errChan <- err
			return errChan
		case <-time.After(5 * time.Second):
			errChan <- errors.New("nodes did not start")
			return errChan
		}
	}
	return errChan
}

// Query runs f on the dispatch goroutine of node id.
func Query[T any](v *VirtualHarness, id state.NodeId, f func(r *node.Runtime) T) T {
	res, err := v.States[v.IndexOf(id)].DispatchWait(func(s *state.State) (any, error) {
		return f(node.RuntimeOf(s)), nil
	})
	if err != nil {
		var zero T
		return zero
	}
	return res.(T)
}

// StopNode stops one node and waits for it to exit.
func (v *VirtualHarness) StopNode(id state.NodeId) {
	idx := v.IndexOf(id)
	v.States[idx].Cancel(errors.New("node stopped by harness"))
	<-v.errs[idx]
	v.errs[idx] <- nil
}

func (v *VirtualHarness) Stop() {
	v.Cancel(errors.New("stopping harness"))
	for idx := range v.Nodes {
		if v.States[idx] == nil {
			continue
		}
		v.States[idx].Cancel(errors.New("stopping harness"))
		select {
		case <-v.errs[idx]:
		case <-time.After(5 * time.Second):
		}
	}
}
