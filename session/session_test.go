package session

import (
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/cjung95/SimpleWebSocket/protocol"
)

func TestNew_GeneratesValidUUID(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	s := New(c1)
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Fatalf("New session ID is not a valid UUID: %v", err)
	}
	if s.Realized() {
		t.Fatalf("Realized() = true for freshly generated session")
	}
}

func TestUpdateID_ValidAndInvalid(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	s := New(c1)

	if err := s.UpdateID("not-a-uuid"); err == nil {
		t.Fatalf("UpdateID: want error for malformed id")
	}

	want := uuid.NewString()
	if err := s.UpdateID(want); err != nil {
		t.Fatalf("UpdateID: %v", err)
	}
	if s.ID() != want || !s.Realized() {
		t.Fatalf("ID/Realized after UpdateID = %q, %v", s.ID(), s.Realized())
	}
}

func TestUseCodec_OnlyOnce(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	s := New(c1)

	if err := s.UseCodec(protocol.NewCodec(c1, false)); err != nil {
		t.Fatalf("first UseCodec: %v", err)
	}
	if err := s.UseCodec(protocol.NewCodec(c1, false)); err == nil {
		t.Fatalf("second UseCodec: want error")
	}
}

func TestDispose_Idempotent(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	s := New(c1)

	if err := s.Dispose(protocol.CloseNormalClosure, "bye"); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := s.Dispose(protocol.CloseNormalClosure, "bye"); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if !s.Closed() {
		t.Fatalf("Closed() = false after Dispose")
	}
}

func TestProperties(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	s := New(c1)

	if _, ok := s.Property("missing"); ok {
		t.Fatalf("Property(missing) = ok, want !ok")
	}
	s.SetProperty("room", "lobby")
	v, ok := s.Property("room")
	if !ok || v != "lobby" {
		t.Fatalf("Property(room) = %v, %v", v, ok)
	}
}
