package server

import (
	"net"
	"strconv"
	"sync"

	"github.com/cjung95/SimpleWebSocket/protocol"
	"github.com/cjung95/SimpleWebSocket/session"
	"github.com/cjung95/SimpleWebSocket/webctx"
	"github.com/cjung95/SimpleWebSocket/wserr"
)

// ConnectedHandler is invoked once a client's session has joined the
// ACTIVE registry, whether newly created or reclaimed from PASSIVE.
type ConnectedHandler func(*session.Session)

// DisconnectedHandler is invoked once a client's connection has closed
// and its session has left the ACTIVE registry. description carries the
// close reason the peer sent, if any ("" when none was given).
type DisconnectedHandler func(sess *session.Session, description string)

// MessageHandler is invoked for each complete text message received.
type MessageHandler func(*session.Session, string)

// BinaryMessageHandler is invoked for each complete binary message received.
type BinaryMessageHandler func(*session.Session, []byte)

// PassiveExpiredHandler is invoked when a disconnected client's grace
// period elapses without it reconnecting.
type PassiveExpiredHandler func(*session.Session)

// UpgradeEvent carries one connection's pending upgrade through the
// application's UpgradeCallback. Session is the session identify
// resolved, already reserved in ACTIVE. Request is
// the parsed handshake request. Response starts out empty; the callback
// may set a status and body on it, which are sent verbatim if it clears
// Handle to reject the upgrade. Subprotocol is the server's preferred
// subprotocol for NegotiateSubprotocol to apply; left empty, the server
// expresses no preference.
type UpgradeEvent struct {
	Session     *session.Session
	Request     *webctx.Context
	Response    *webctx.Context
	Subprotocol string
	Handle      bool
}

// UpgradeCallback lets the application inspect an upgrade request before
// the handshake response is sent, customize the response, choose a
// subprotocol, or reject the upgrade by clearing evt.Handle. Returning a
// non-nil error also rejects the upgrade, for callers that prefer to
// signal failure through the error return.
type UpgradeCallback func(evt *UpgradeEvent) error

// Server accepts TCP connections, performs the WebSocket handshake on
// each, and manages the resulting population of client sessions.
type Server struct {
	cfg *Config

	listener net.Listener
	registry *registry

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	closeCh   chan struct{}

	// identMu serializes the whole check-then-act identification
	// sequence (ACTIVE lookup, PASSIVE reclaim, ACTIVE reservation) so
	// two simultaneous connects for the same x-user-id cannot both
	// observe no conflict.
	identMu sync.Mutex

	onConnected    ConnectedHandler
	onDisconnected DisconnectedHandler
	onMessage      MessageHandler
	onBinary       BinaryMessageHandler
	onPassiveExp   PassiveExpiredHandler
	upgradeCB      UpgradeCallback
}

// NewServer builds a Server from DefaultConfig, as modified by opts.
func NewServer(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	s := &Server{cfg: cfg, closeCh: make(chan struct{})}
	s.registry = newRegistry(cfg, s.handlePassiveExpired)
	return s
}

// OnClientConnected registers the callback fired when a session joins
// the ACTIVE registry.
func (s *Server) OnClientConnected(h ConnectedHandler) { s.onConnected = h }

// OnClientDisconnected registers the callback fired when a session
// leaves the ACTIVE registry.
func (s *Server) OnClientDisconnected(h DisconnectedHandler) { s.onDisconnected = h }

// OnMessageReceived registers the callback fired for each text message.
func (s *Server) OnMessageReceived(h MessageHandler) { s.onMessage = h }

// OnBinaryMessageReceived registers the callback fired for each binary message.
func (s *Server) OnBinaryMessageReceived(h BinaryMessageHandler) { s.onBinary = h }

// OnPassiveUserExpired registers the callback fired when a remembered,
// disconnected client's grace period elapses.
func (s *Server) OnPassiveUserExpired(h PassiveExpiredHandler) { s.onPassiveExp = h }

// UseUpgradeCallback registers a hook that may reject a handshake before
// the 101 response is sent, e.g. to enforce a path or an auth token.
func (s *Server) UseUpgradeCallback(cb UpgradeCallback) { s.upgradeCB = cb }

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound; Shutdown stops it.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return wserr.New(wserr.KindServer, "Start", ErrAlreadyStarted)
	}

	addr := net.JoinHostPort(s.cfg.LocalIP, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return wserr.New(wserr.KindServer, "Start", err)
	}
	s.listener = ln
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown stops accepting new connections, closes every active session,
// and waits for in-flight goroutines to finish.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return wserr.New(wserr.KindServer, "Shutdown", ErrNotStarted)
	}
	s.running = false
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closeCh) })
	err := s.listener.Close()

	for _, id := range s.registry.ActiveIDs() {
		if sess, ok := s.registry.RemoveActive(id); ok {
			_ = sess.Dispose(protocol.CloseGoingAway, "Server is shutting down")
		}
	}
	s.registry.Close()

	s.wg.Wait()
	return err
}

// SendMessage sends a text message to the client identified by id,
// failing if no such client is currently connected.
func (s *Server) SendMessage(id string, text string) error {
	sess, ok := s.registry.GetActive(id)
	if !ok {
		return wserr.New(wserr.KindServer, "SendMessage", ErrClientNotFound)
	}
	return sess.Codec().Send(protocol.Message{Payload: []byte(text)})
}

// SendBinaryMessage sends a binary message to the client identified by id.
func (s *Server) SendBinaryMessage(id string, payload []byte) error {
	sess, ok := s.registry.GetActive(id)
	if !ok {
		return wserr.New(wserr.KindServer, "SendBinaryMessage", ErrClientNotFound)
	}
	return sess.Codec().Send(protocol.Message{Binary: true, Payload: payload})
}

// GetClientByID returns the currently connected session for id, if any.
func (s *Server) GetClientByID(id string) (*session.Session, bool) {
	return s.registry.GetActive(id)
}

// ClientIDs returns the IDs of every currently connected client.
func (s *Server) ClientIDs() []string {
	return s.registry.ActiveIDs()
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	return s.registry.ActiveCount()
}

func (s *Server) handlePassiveExpired(sess *session.Session) {
	if s.onPassiveExp != nil {
		go s.onPassiveExp(sess)
	}
}
