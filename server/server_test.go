package server

import (
	"net"
	"testing"
	"time"

	"github.com/cjung95/SimpleWebSocket/session"
)

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(WithLocalIP("127.0.0.1"), WithPort(0))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatalf("second Start: want error")
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestServer_SendMessageUnknownClient(t *testing.T) {
	s := NewServer()
	if err := s.SendMessage("nobody", "hi"); err == nil {
		t.Fatalf("SendMessage: want error for unknown client")
	}
}

func TestServer_ClientCountInitiallyZero(t *testing.T) {
	s := NewServer()
	if s.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", s.ClientCount())
	}
	if len(s.ClientIDs()) != 0 {
		t.Fatalf("ClientIDs = %v, want empty", s.ClientIDs())
	}
}

func TestRegistry_PassiveDisabledIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RememberDisconnectedClients = false
	r := newRegistry(cfg, nil)
	defer r.Close()

	if _, ok := r.ReclaimPassive("anything"); ok {
		t.Fatalf("ReclaimPassive: want false when passive tracking is disabled")
	}
}

func TestRegistry_PassiveExpiryCallback(t *testing.T) {
	expired := make(chan string, 1)
	cfg := DefaultConfig()
	cfg.RememberDisconnectedClients = true
	cfg.RemovePassiveClientsAfterExpiration = true
	cfg.PassiveClientLifetime = 20 * time.Millisecond

	r := newRegistry(cfg, func(sess *session.Session) {
		expired <- sess.ID()
	})
	defer r.Close()

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	sess := session.New(c1)
	r.RememberPassive(sess)

	select {
	case id := <-expired:
		if id != sess.ID() {
			t.Fatalf("expired id = %q, want %q", id, sess.ID())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("passive session never expired")
	}
}

func TestRegistry_PassiveRetainedWithoutExpiration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RememberDisconnectedClients = true
	cfg.RemovePassiveClientsAfterExpiration = false
	cfg.PassiveClientLifetime = 10 * time.Millisecond

	r := newRegistry(cfg, func(sess *session.Session) {
		t.Fatalf("OnPassiveUserExpired fired for %s but expiration is disabled", sess.ID())
	})
	defer r.Close()

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	sess := session.New(c1)
	r.RememberPassive(sess)

	time.Sleep(50 * time.Millisecond)

	reclaimed, ok := r.ReclaimPassive(sess.ID())
	if !ok || reclaimed != sess {
		t.Fatalf("ReclaimPassive: want to reclaim %s after its would-be TTL, got %v, %v", sess.ID(), reclaimed, ok)
	}
}
