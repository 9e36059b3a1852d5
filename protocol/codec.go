package protocol

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cjung95/SimpleWebSocket/wserr"
)

// State describes the lifecycle stage of a FrameCodec.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is one complete application-level WebSocket message: either a
// text or binary payload, assembled from one or more frames.
type Message struct {
	Binary  bool
	Payload []byte
}

// FrameCodec owns a single WebSocket connection after the handshake has
// completed. It assembles fragmented frames into Messages, answers ping
// and close control frames automatically, and serializes outgoing
// frames, masking them when acting as a client.
type FrameCodec interface {
	// Send transmits one complete message as a single, unfragmented frame.
	Send(msg Message) error
	// Receive blocks until the next application message arrives, or
	// returns an error once the connection has been closed.
	Receive() (Message, error)
	// Close sends a close frame carrying code and reason, if the codec is
	// still open, and then closes the underlying connection without
	// waiting for the peer's reply. It does nothing once the codec has
	// left the open state.
	Close(code int, reason string) error
	// State reports the current lifecycle stage.
	State() State
	// CloseReason returns the reason text carried by the close frame the
	// peer sent, once one has been received. Empty until then.
	CloseReason() string
}

var (
	ErrCodecClosed  = fmt.Errorf("protocol: codec is closed")
	ErrUnexpectedContinuation = fmt.Errorf("protocol: unexpected continuation frame")
)

type wsCodec struct {
	conn net.Conn
	mask bool

	readBuf []byte // bytes read off conn but not yet consumed by a decoded frame

	writeMu sync.Mutex
	state   atomic.Int32

	closeReasonMu sync.Mutex
	closeReason   string

	closeOnce sync.Once
}

// NewCodec builds a FrameCodec around conn. mask controls whether
// outgoing frames are masked, which must be true for clients and false
// for servers per RFC 6455 §5.1.
func NewCodec(conn net.Conn, mask bool) FrameCodec {
	return &wsCodec{conn: conn, mask: mask}
}

func (c *wsCodec) State() State {
	return State(c.state.Load())
}

func (c *wsCodec) CloseReason() string {
	c.closeReasonMu.Lock()
	defer c.closeReasonMu.Unlock()
	return c.closeReason
}

func genMaskKey() [4]byte {
	var key [4]byte
	_, _ = rand.Read(key[:])
	return key
}

func (c *wsCodec) Send(msg Message) error {
	if c.State() != StateOpen {
		return wserr.New(wserr.KindUpgrade, "Send", ErrCodecClosed)
	}
	opcode := OpcodeText
	if msg.Binary {
		opcode = OpcodeBinary
	}
	return c.writeFrame(&Frame{Final: true, Opcode: opcode, Payload: msg.Payload})
}

func (c *wsCodec) writeFrame(f *Frame) error {
	data, err := EncodeFrame(f, c.mask, genMaskKey)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return wserr.New(wserr.KindUpgrade, "writeFrame", err)
	}
	return nil
}

// Receive reads frames off the connection, auto-answering ping and close
// control frames, until a complete text or binary message (possibly
// reassembled across continuation frames) is available.
func (c *wsCodec) Receive() (Message, error) {
	var assembled []byte
	var assembling bool
	var binary bool

	for {
		if c.State() == StateClosed {
			return Message{}, wserr.New(wserr.KindUpgrade, "Receive", ErrCodecClosed)
		}

		frame, err := c.readFrame()
		if err != nil {
			c.forceClose()
			return Message{}, wserr.New(wserr.KindUpgrade, "Receive", err)
		}

		if frame.Opcode.IsControl() {
			done, err := c.handleControl(frame)
			if err != nil {
				return Message{}, err
			}
			if done {
				continue
			}
			return Message{}, wserr.New(wserr.KindUpgrade, "Receive", ErrCodecClosed)
		}

		switch frame.Opcode {
		case OpcodeText, OpcodeBinary:
			if assembling {
				return Message{}, wserr.New(wserr.KindUpgrade, "Receive", ErrUnexpectedContinuation)
			}
			binary = frame.Opcode == OpcodeBinary
			assembled = append(assembled[:0], frame.Payload...)
			assembling = !frame.Final
			if frame.Final {
				return Message{Binary: binary, Payload: assembled}, nil
			}
		case OpcodeContinuation:
			if !assembling {
				return Message{}, wserr.New(wserr.KindUpgrade, "Receive", ErrUnexpectedContinuation)
			}
			assembled = append(assembled, frame.Payload...)
			if frame.Final {
				assembling = false
				return Message{Binary: binary, Payload: assembled}, nil
			}
		}
	}
}

// readFrame decodes the next frame out of c.readBuf, topping it up with
// more bytes from the connection whenever DecodeFrame reports that the
// buffered data is an incomplete frame.
func (c *wsCodec) readFrame() (*Frame, error) {
	for {
		frame, consumed, err := DecodeFrame(c.readBuf)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			c.readBuf = c.readBuf[consumed:]
			return frame, nil
		}

		chunk := make([]byte, 4096)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.readBuf = append(c.readBuf, chunk[:n]...)
		}
		if err != nil {
			if n > 0 {
				continue
			}
			return nil, err
		}
	}
}

// handleControl answers ping frames with pong and close frames with an
// echoed close, per RFC 6455 §5.5. It returns (true, nil) when the
// caller's receive loop should keep reading, or (false, nil) once the
// connection has been torn down by a close frame.
func (c *wsCodec) handleControl(frame *Frame) (bool, error) {
	switch frame.Opcode {
	case OpcodePing:
		if err := c.writeFrame(&Frame{Final: true, Opcode: OpcodePong, Payload: frame.Payload}); err != nil {
			return false, err
		}
		return true, nil
	case OpcodePong:
		return true, nil
	case OpcodeClose:
		if len(frame.Payload) >= 2 {
			reason := string(frame.Payload[2:])
			c.closeReasonMu.Lock()
			c.closeReason = reason
			c.closeReasonMu.Unlock()
		}
		_ = c.writeFrame(&Frame{Final: true, Opcode: OpcodeClose, Payload: frame.Payload})
		c.forceClose()
		return false, nil
	default:
		return true, nil
	}
}

func (c *wsCodec) Close(code int, reason string) error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}
	payload := encodeCloseCode(code, reason)
	err := c.writeFrame(&Frame{Final: true, Opcode: OpcodeClose, Payload: payload})
	c.forceClose()
	return err
}

func (c *wsCodec) forceClose() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		_ = c.conn.Close()
	})
}

func encodeCloseCode(code int, reason string) []byte {
	if code == 0 {
		return nil
	}
	out := make([]byte, 2+len(reason))
	out[0] = byte(code >> 8)
	out[1] = byte(code)
	copy(out[2:], reason)
	return out
}
