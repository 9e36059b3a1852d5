// Package session models one WebSocket connection's lifetime: the codec
// bound to its stream, the identity it has been assigned or reclaimed,
// and the free-form properties an application attaches to it.
package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjung95/SimpleWebSocket/protocol"
	"github.com/cjung95/SimpleWebSocket/wserr"
)

var errCodecAlreadyBound = fmt.Errorf("session: codec already bound for current stream")

// Session tracks one client across its connected and, for passively
// remembered clients, disconnected lifetime.
type Session struct {
	mu sync.Mutex

	id    string
	realized bool // true once ID has been confirmed by a client-supplied identity

	stream net.Conn
	codec  protocol.FrameCodec

	firstSeen time.Time
	lastSeen  time.Time

	properties map[string]any

	closed bool
}

// New creates a Session with a freshly generated identity.
func New(stream net.Conn) *Session {
	now := time.Now()
	return &Session{
		id:         uuid.NewString(),
		stream:     stream,
		firstSeen:  now,
		lastSeen:   now,
		properties: make(map[string]any),
	}
}

// ID returns the session's current identity.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// UpdateID replaces the session's identity with a caller-supplied one,
// validating it is well-formed UUID text. Used when a reconnecting
// client presents its previous x-user-id.
func (s *Session) UpdateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return wserr.New(wserr.KindServer, "UpdateID", err)
	}
	s.mu.Lock()
	s.id = id
	s.realized = true
	s.mu.Unlock()
	return nil
}

// Realized reports whether this session's ID came from a client-supplied
// identity rather than being freshly generated.
func (s *Session) Realized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realized
}

// UpdateStream rebinds the session to a new underlying connection, used
// when a passively remembered client reconnects. The previously bound
// codec, if any, wrapped the old connection and is cleared so UseCodec
// can bind a fresh one for the new stream.
func (s *Session) UpdateStream(stream net.Conn) {
	s.mu.Lock()
	s.stream = stream
	s.codec = nil
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Touch records activity, refreshing LastSeen.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// UseCodec binds the frame codec that owns this session's stream. It may
// only be called once per stream generation; call it again after
// UpdateStream to bind a codec for the new connection.
func (s *Session) UseCodec(codec protocol.FrameCodec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codec != nil {
		return wserr.New(wserr.KindServer, "UseCodec", errCodecAlreadyBound)
	}
	s.codec = codec
	return nil
}

// Codec returns the currently bound frame codec, or nil if none.
func (s *Session) Codec() protocol.FrameCodec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

// RemoteEndpoint returns the remote address of the underlying stream.
func (s *Session) RemoteEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return ""
	}
	return s.stream.RemoteAddr().String()
}

// FirstSeen returns when this session was first created.
func (s *Session) FirstSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstSeen
}

// LastSeen returns the last time activity was recorded.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetProperty stores an application-defined value under key.
func (s *Session) SetProperty(key string, value any) {
	s.mu.Lock()
	s.properties[key] = value
	s.mu.Unlock()
}

// Property retrieves a value previously stored with SetProperty.
func (s *Session) Property(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.properties[key]
	return v, ok
}

// Dispose closes the underlying codec and stream exactly once, sending
// code/reason as the outgoing close frame if the codec is still open.
func (s *Session) Dispose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.codec != nil {
		return s.codec.Close(code, reason)
	}
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// Closed reports whether Dispose has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
