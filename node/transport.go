package node

import (
	"net"
	"slices"
	"sync"
)

// Transport carries frames between nodes. Send may be called from the
// dispatch goroutine while Receive blocks on another one.
type Transport interface {
	Send(frame []byte) error
	// Receive blocks until a frame arrives. It returns the frame and the
	// reception power. The slice is only valid until the next call.
	Receive() ([]byte, uint8, error)
	Close() error
}

// Hub is an in-process broadcast medium for running several nodes in one
// process. Frames are dropped when a receiver falls behind.
type Hub struct {
	mu    sync.Mutex
	ports []*Port
	Power uint8
}

func NewHub(power uint8) *Hub {
	return &Hub{Power: power}
}

func (h *Hub) Port() *Port {
	p := &Port{
		hub:    h,
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.ports = append(h.ports, p)
	h.mu.Unlock()
	return p
}

type Port struct {
	hub    *Hub
	in     chan []byte
	closed chan struct{}
	once   sync.Once
	// Dropped counts frames lost because this port was not reading
	Dropped int
}

func (p *Port) Send(frame []byte) error {
	select {
	case <-p.closed:
		return net.ErrClosed
	default:
	}
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	for _, o := range p.hub.ports {
		if o == p {
			continue
		}
		select {
		case o.in <- slices.Clone(frame):
		default:
			o.Dropped++
		}
	}
	return nil
}

func (p *Port) Receive() ([]byte, uint8, error) {
	select {
	case f := <-p.in:
		return f, p.hub.Power, nil
	case <-p.closed:
		return nil, 0, net.ErrClosed
	}
}

func (p *Port) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.hub.mu.Lock()
		p.hub.ports = slices.DeleteFunc(p.hub.ports, func(o *Port) bool { return o == p })
		p.hub.mu.Unlock()
	})
	return nil
}
