package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/encodeous/opera/core"
	"github.com/encodeous/opera/state"
)

// Control serves the command channel of the engine over UDP. A request
// datagram is the command payload, the reply is [code][result...].
type Control struct {
	Addr string
	conn net.PacketConn
}

func (c *Control) Init(s *state.State) error {
	conn, err := net.ListenPacket("udp", c.Addr)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	c.conn = conn
	s.Log.Info("control socket listening", "addr", conn.LocalAddr())
	go c.serve(s.Env)
	return nil
}

func (c *Control) Cleanup(s *state.State) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// LocalAddr is the bound address, useful when Addr has port 0.
func (c *Control) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Control) serve(e *state.Env) {
	buf := make([]byte, state.MaxPacketSize)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || e.Context.Err() != nil {
				return
			}
			e.Log.Warn("control read failed", "err", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			r := RuntimeOf(s)
			result := make([]byte, state.MaxPacketSize)
			code, rn := r.Opera.Command(payload, result)
			if state.DBG_log_commands {
				s.Log.Debug("command", "payload", fmt.Sprintf("%x", payload), "code", code, "result", fmt.Sprintf("%x", result[:rn]))
			}
			return append([]byte{code}, result[:rn]...), nil
		})
		if err != nil {
			return
		}
		if _, err := c.conn.WriteTo(res.([]byte), from); err != nil {
			e.Log.Warn("control reply failed", "to", from, "err", err)
		}
	}
}

// SendCommand sends one command to the control socket at addr and waits
// for the reply.
func SendCommand(ctx context.Context, addr string, payload []byte) (byte, []byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, nil, err
	}
	defer conn.Close()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		return 0, nil, err
	}
	buf := make([]byte, core.MinCommandResult+state.MaxPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, errors.New("empty reply")
	}
	return buf[0], buf[1:n], nil
}
