package server

import (
	"net"

	"github.com/cjung95/SimpleWebSocket/protocol"
	"github.com/cjung95/SimpleWebSocket/session"
	"github.com/cjung95/SimpleWebSocket/webctx"
)

// handleConnection drives one accepted TCP connection through the full
// per-client lifecycle: handshake, identification, the upgrade event,
// subprotocol negotiation, registration, message pump, and teardown.
func (s *Server) handleConnection(conn net.Conn) {
	upgrader := protocol.NewUpgrader(conn, protocol.NewCodec)

	req, err := upgrader.AwaitContext()
	if err != nil {
		conn.Close()
		return
	}

	sess, conflict := s.identify(conn, req)
	if conflict {
		resp := webctx.NewResponse()
		_ = resp.SetStatusCode(409, "Conflict")
		_ = resp.SetBody("User id already in use")
		_ = upgrader.Reject(resp)
		conn.Close()
		return
	}

	evt := &UpgradeEvent{
		Session:  sess,
		Request:  req,
		Response: webctx.NewResponse(),
		Handle:   true,
	}
	if s.upgradeCB != nil {
		if err := s.upgradeCB(evt); err != nil {
			evt.Handle = false
		}
	}
	if !evt.Handle {
		s.registry.RemoveActive(sess.ID())
		if _, err := evt.Response.StatusCode(); err != nil {
			_ = evt.Response.SetStatusCode(403, "Forbidden")
		}
		_ = upgrader.Reject(evt.Response)
		conn.Close()
		return
	}

	offered := req.GetAllValues(protocol.HeaderSecWebSocketProto)
	subprotocol, ok := protocol.NegotiateSubprotocol(offered, evt.Subprotocol)
	if !ok {
		s.registry.RemoveActive(sess.ID())
		resp := webctx.NewResponse()
		_ = resp.SetStatusCode(400, "Bad Request")
		_ = resp.SetBody("Unable to negotiate a WebSocket subprotocol")
		_ = upgrader.Reject(resp)
		conn.Close()
		return
	}

	var userIDHeader string
	if s.cfg.SendUserIDToClient {
		userIDHeader = sess.ID()
	}

	codec, err := upgrader.Accept(subprotocol, userIDHeader)
	if err != nil {
		s.registry.RemoveActive(sess.ID())
		conn.Close()
		return
	}
	sess.UpdateStream(conn)
	_ = sess.UseCodec(codec)

	if s.onConnected != nil {
		s.onConnected(sess)
	}

	s.pump(sess, codec)

	description := codec.CloseReason()
	s.registry.RemoveActive(sess.ID())
	if s.cfg.RememberDisconnectedClients {
		s.registry.RememberPassive(sess)
	} else {
		_ = sess.Dispose(protocol.CloseNormalClosure, "")
	}

	if s.onDisconnected != nil {
		s.onDisconnected(sess, description)
	}
}

// identify resolves, and reserves in ACTIVE, the session this connection
// belongs to: a reclaimed PASSIVE session if the client presented a
// known x-user-id, or a fresh session otherwise. It reports a conflict
// if the requested identity is already ACTIVE elsewhere, in which case
// nothing is reserved. The whole check-then-act sequence runs under
// identMu so two simultaneous connects for the same identity cannot both
// pass the ACTIVE check before either reserves it.
func (s *Server) identify(conn net.Conn, req *webctx.Context) (sess *session.Session, conflict bool) {
	s.identMu.Lock()
	defer s.identMu.Unlock()

	if !req.ContainsUserID() {
		sess = session.New(conn)
		s.registry.PutActive(sess)
		return sess, false
	}

	id := req.UserID()
	if _, active := s.registry.GetActive(id); active {
		return nil, true
	}
	if reclaimed, ok := s.registry.ReclaimPassive(id); ok {
		s.registry.PutActive(reclaimed)
		return reclaimed, false
	}

	sess = session.New(conn)
	// A malformed x-user-id falls back to the freshly generated id
	// rather than failing the handshake.
	_ = sess.UpdateID(id)
	s.registry.PutActive(sess)
	return sess, false
}

// pump reads messages off codec until it closes, dispatching each to the
// registered text/binary handlers on its own goroutine so a slow
// handler cannot stall the read loop.
func (s *Server) pump(sess *session.Session, codec protocol.FrameCodec) {
	for {
		msg, err := codec.Receive()
		if err != nil {
			return
		}
		sess.Touch()
		if msg.Binary {
			if s.onBinary != nil {
				go s.onBinary(sess, msg.Payload)
			}
		} else {
			if s.onMessage != nil {
				go s.onMessage(sess, string(msg.Payload))
			}
		}
	}
}
