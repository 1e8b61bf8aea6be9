package node

import (
	"context"
	"fmt"
	"net"

	"github.com/encodeous/opera/state"
	"golang.org/x/net/ipv4"
)

// Multicast sends every frame as one datagram to an IPv4 multicast group
// with a TTL of 1, so only the local link hears it.
type Multicast struct {
	conn  *ipv4.PacketConn
	group *net.UDPAddr
	ifi   *net.Interface
	power uint8
	buf   []byte
}

func ListenMulticast(ctx context.Context, cfg state.TransportCfg) (*Multicast, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, err
	}
	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseControl}
	c, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", group.Port))
	if err != nil {
		return nil, err
	}
	conn := ipv4.NewPacketConn(c)
	m := &Multicast{
		conn:  conn,
		group: group,
		ifi:   ifi,
		power: cfg.Power,
		buf:   make([]byte, 2*state.MaxPacketSize),
	}
	if err := conn.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("joining %s: %w", group, err)
	}
	if ifi != nil {
		if err := conn.SetMulticastInterface(ifi); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	if err := conn.SetMulticastTTL(1); err != nil {
		_ = m.Close()
		return nil, err
	}
	if err := conn.SetMulticastLoopback(cfg.Loopback); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Multicast) Send(frame []byte) error {
	_, err := m.conn.WriteTo(frame, nil, m.group)
	return err
}

func (m *Multicast) Receive() ([]byte, uint8, error) {
	for {
		n, _, _, err := m.conn.ReadFrom(m.buf)
		if err != nil {
			return nil, 0, err
		}
		if n > state.MaxPacketSize {
			continue
		}
		return m.buf[:n], m.power, nil
	}
}

func (m *Multicast) Close() error {
	_ = m.conn.LeaveGroup(m.ifi, &net.UDPAddr{IP: m.group.IP})
	return m.conn.Close()
}
