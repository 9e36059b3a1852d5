package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/cjung95/SimpleWebSocket/protocol"
	"github.com/cjung95/SimpleWebSocket/wserr"
)

var errNotConnected = fmt.Errorf("client: not connected")

// MessageHandler is invoked for each complete text message received.
type MessageHandler func(string)

// BinaryMessageHandler is invoked for each complete binary message received.
type BinaryMessageHandler func([]byte)

// DisconnectedHandler is invoked once the connection to the server
// closes. description carries the close reason the server sent, if any
// ("" when none was given).
type DisconnectedHandler func(description string)

// Client is a single connecting-side WebSocket session.
type Client struct {
	cfg *Config

	mu     sync.Mutex
	conn   net.Conn
	codec  protocol.FrameCodec
	userID string

	onMessage      MessageHandler
	onBinary       BinaryMessageHandler
	onDisconnected DisconnectedHandler

	wg sync.WaitGroup
}

// NewClient builds a Client from DefaultConfig, as modified by opts.
func NewClient(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return &Client{cfg: cfg, userID: cfg.UserID}
}

// OnMessageReceived registers the callback fired for each text message.
func (c *Client) OnMessageReceived(h MessageHandler) { c.onMessage = h }

// OnBinaryMessageReceived registers the callback fired for each binary message.
func (c *Client) OnBinaryMessageReceived(h BinaryMessageHandler) { c.onBinary = h }

// OnDisconnected registers the callback fired once the connection closes.
func (c *Client) OnDisconnected(h DisconnectedHandler) { c.onDisconnected = h }

// Connect dials addr, performs the WebSocket handshake against path, and
// starts the background message pump.
func (c *Client) Connect(addr, path string) error {
	conn, err := net.DialTimeout("tcp", addr, c.cfg.DialTimeout)
	if err != nil {
		return wserr.New(wserr.KindClient, "Connect", err)
	}

	host, _, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		host = addr
	}

	codec, confirmedID, err := protocol.SendUpgradeRequest(conn, host, path, c.userID, protocol.NewCodec, c.cfg.Subprotocols...)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.codec = codec
	if confirmedID != "" {
		c.userID = confirmedID
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pump()
	return nil
}

// IsConnected reports whether the client currently holds an open codec.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec != nil && c.codec.State() == protocol.StateOpen
}

// UserID returns the identity this client presents on connect. After a
// Connect whose handshake response carried x-user-id, it is the id the
// server confirmed; otherwise it is the id set by WithUserID or
// SetUserID, or empty.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SetUserID updates the identity presented on the next Connect call, e.g.
// after the server announces a freshly generated one.
func (c *Client) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// SendMessage sends a text message to the server.
func (c *Client) SendMessage(text string) error {
	codec, err := c.activeCodec()
	if err != nil {
		return err
	}
	return codec.Send(protocol.Message{Payload: []byte(text)})
}

// SendBinaryMessage sends a binary message to the server.
func (c *Client) SendBinaryMessage(payload []byte) error {
	codec, err := c.activeCodec()
	if err != nil {
		return err
	}
	return codec.Send(protocol.Message{Binary: true, Payload: payload})
}

func (c *Client) activeCodec() (protocol.FrameCodec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codec == nil {
		return nil, wserr.New(wserr.KindClient, "activeCodec", errNotConnected)
	}
	return c.codec, nil
}

// Disconnect closes the connection to the server, sending reason as the
// close frame's text. reason defaults to "Closing" when omitted.
func (c *Client) Disconnect(reason ...string) error {
	codec, err := c.activeCodec()
	if err != nil {
		return nil
	}
	why := "Closing"
	if len(reason) > 0 && reason[0] != "" {
		why = reason[0]
	}
	return codec.Close(protocol.CloseNormalClosure, why)
}

func (c *Client) pump() {
	defer c.wg.Done()
	codec, err := c.activeCodec()
	if err != nil {
		return
	}
	for {
		msg, err := codec.Receive()
		if err != nil {
			break
		}
		if msg.Binary {
			if c.onBinary != nil {
				go c.onBinary(msg.Payload)
			}
		} else {
			if c.onMessage != nil {
				go c.onMessage(string(msg.Payload))
			}
		}
	}
	if c.onDisconnected != nil {
		c.onDisconnected(codec.CloseReason())
	}
}

// Wait blocks until the background message pump has exited, i.e. the
// connection has closed.
func (c *Client) Wait() {
	c.wg.Wait()
}
