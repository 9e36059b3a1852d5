package client

import "testing"

func TestNewClient_DefaultsAndOptions(t *testing.T) {
	c := NewClient()
	if c.cfg.DialTimeout == 0 {
		t.Fatalf("DialTimeout default is zero")
	}

	c2 := NewClient(WithUserID("alice"), WithSubprotocols("chat", "superchat"))
	if c2.UserID() != "alice" {
		t.Fatalf("UserID = %q, want alice", c2.UserID())
	}
	if len(c2.cfg.Subprotocols) != 2 {
		t.Fatalf("Subprotocols = %v", c2.cfg.Subprotocols)
	}
}

func TestClient_NotConnectedOperations(t *testing.T) {
	c := NewClient()
	if c.IsConnected() {
		t.Fatalf("IsConnected = true before Connect")
	}
	if err := c.SendMessage("hi"); err == nil {
		t.Fatalf("SendMessage: want error before Connect")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect before Connect should be a no-op, got %v", err)
	}
}

func TestClient_SetUserID(t *testing.T) {
	c := NewClient()
	c.SetUserID("generated-id")
	if c.UserID() != "generated-id" {
		t.Fatalf("UserID = %q, want generated-id", c.UserID())
	}
}
