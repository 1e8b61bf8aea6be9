package protocol

import (
	"fmt"

	"github.com/encodeous/opera/state"
)

const HeaderLen = 2

// message type tags
const (
	TypeHello      byte = 'H'
	TypeColor      byte = 'C'
	TypeStc        byte = 'S'
	TypeTreeStatus byte = 'T'
)

// Frame is one [type][len][payload] message inside a buffer.
type Frame struct {
	Type    byte
	Payload []byte
	// Raw includes the header
	Raw []byte
}

// ReadFrame returns the frame at the start of buf.
func ReadFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderLen {
		return Frame{}, fmt.Errorf("frame header: %w", ErrTruncated)
	}
	n := int(buf[1])
	if HeaderLen+n > len(buf) {
		return Frame{}, fmt.Errorf("frame %q declares %d bytes, %d remaining: %w", buf[0], n, len(buf)-HeaderLen, ErrTruncated)
	}
	return Frame{
		Type:    buf[0],
		Payload: buf[HeaderLen : HeaderLen+n],
		Raw:     buf[:HeaderLen+n],
	}, nil
}

// SplitFrames cuts a buffer into its concatenated frames. The frames read
// before an error are returned along with it.
func SplitFrames(buf []byte) ([]Frame, error) {
	var frames []Frame
	for len(buf) > 0 {
		f, err := ReadFrame(buf)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		buf = buf[len(f.Raw):]
	}
	return frames, nil
}

// Sender returns the originator of a frame; every message type starts its
// payload with it.
func Sender(buf []byte) (state.NodeId, bool) {
	var id state.NodeId
	if len(buf) < HeaderLen+state.AddressSize {
		return id, false
	}
	copy(id[:], buf[HeaderLen:])
	return id, true
}

// openFrame checks the type tag and returns a reader over the payload.
func openFrame(buf []byte, typ byte) (*Reader, error) {
	f, err := ReadFrame(buf)
	if err != nil {
		return nil, err
	}
	if f.Type != typ {
		return nil, fmt.Errorf("got %q, expected %q: %w", f.Type, typ, ErrType)
	}
	return NewReader(f.Payload), nil
}
