package server

import (
	"sync"
	"testing"
	"time"

	"github.com/cjung95/SimpleWebSocket/client"
	"github.com/cjung95/SimpleWebSocket/session"
)

func startTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s := NewServer(append([]Option{WithLocalIP("127.0.0.1"), WithPort(0)}, opts...)...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s, s.listener.Addr().String()
}

func TestIntegration_EchoRoundTrip(t *testing.T) {
	s, addr := startTestServer(t)
	s.OnMessageReceived(func(sess *session.Session, text string) {
		_ = s.SendMessage(sess.ID(), "echo: "+text)
	})

	c := client.NewClient()
	if err := c.Connect(addr, "/chat"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	got := make(chan string, 1)
	c.OnMessageReceived(func(text string) { got <- text })

	if err := c.SendMessage("hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case text := <-got:
		if text != "echo: hello" {
			t.Fatalf("got %q, want %q", text, "echo: hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for echo")
	}
}

func TestIntegration_ConnectDisconnectFiresCallbacks(t *testing.T) {
	s, addr := startTestServer(t)

	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	s.OnClientConnected(func(sess *session.Session) { connected <- sess.ID() })
	s.OnClientDisconnected(func(sess *session.Session, description string) { disconnected <- sess.ID() })

	c := client.NewClient()
	if err := c.Connect(addr, "/"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var id string
	select {
	case id = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnClientConnected never fired")
	}

	c.Disconnect()

	select {
	case gotID := <-disconnected:
		if gotID != id {
			t.Fatalf("disconnected id = %q, want %q", gotID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnClientDisconnected never fired")
	}
}

func TestIntegration_ReconnectReclaimsIdentity(t *testing.T) {
	s, addr := startTestServer(t, WithRememberDisconnectedClients(5*time.Second))

	c1 := client.NewClient()
	if err := c1.Connect(addr, "/"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}

	userID := c1.UserID()
	if userID == "" {
		t.Fatalf("UserID: want a server-assigned id after connect")
	}
	c1.Disconnect()

	time.Sleep(50 * time.Millisecond)

	c2 := client.NewClient(client.WithUserID(userID))
	if err := c2.Connect(addr, "/"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer c2.Disconnect()

	if s.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1 after reclaim", s.ClientCount())
	}
	if _, ok := s.GetClientByID(userID); !ok {
		t.Fatalf("GetClientByID(%q): not found after reclaim", userID)
	}
}

func TestIntegration_UpgradeCallbackCanReject(t *testing.T) {
	s, addr := startTestServer(t)
	s.UseUpgradeCallback(func(evt *UpgradeEvent) error {
		if evt.Request.RequestPath() != "/allowed" {
			evt.Handle = false
			_ = evt.Response.SetStatusCode(403, "Forbidden")
			_ = evt.Response.SetBody("Connection only possible via local network.")
		}
		return nil
	})

	c := client.NewClient()
	if err := c.Connect(addr, "/denied"); err == nil {
		t.Fatalf("Connect: want error when the upgrade callback rejects")
	}
	if s.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0 after a rejected upgrade", s.ClientCount())
	}
}

func TestIntegration_ConcurrentIdentityClaimHasExactlyOneWinner(t *testing.T) {
	_, addr := startTestServer(t)
	const id = "33333333-3333-3333-3333-333333333333"

	const n = 10
	var wg sync.WaitGroup
	successes := make(chan *client.Client, n)
	failures := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := client.NewClient(client.WithUserID(id))
			if err := c.Connect(addr, "/"); err != nil {
				failures <- err
				return
			}
			successes <- c
		}()
	}
	wg.Wait()
	close(successes)
	close(failures)

	var winners []*client.Client
	for c := range successes {
		winners = append(winners, c)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d successful connects for one identity, want exactly 1", len(winners))
	}
	for _, c := range winners {
		c.Disconnect()
	}
	if len(failures) != n-1 {
		t.Fatalf("got %d rejected connects, want %d", len(failures), n-1)
	}
}

func TestIntegration_ConcurrentClients(t *testing.T) {
	s, addr := startTestServer(t)
	s.OnMessageReceived(func(sess *session.Session, text string) {
		_ = s.SendMessage(sess.ID(), text)
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := client.NewClient()
			if err := c.Connect(addr, "/"); err != nil {
				t.Errorf("Connect: %v", err)
				return
			}
			defer c.Disconnect()

			got := make(chan string, 1)
			c.OnMessageReceived(func(text string) { got <- text })
			if err := c.SendMessage("ping"); err != nil {
				t.Errorf("SendMessage: %v", err)
				return
			}
			select {
			case text := <-got:
				if text != "ping" {
					t.Errorf("got %q, want ping", text)
				}
			case <-time.After(2 * time.Second):
				t.Errorf("timed out waiting for reply")
			}
		}()
	}
	wg.Wait()

	// The server drops a session once its pump has read the client's close
	// frame, which can be after the client's Disconnect has returned.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d after all clients disconnected", s.ClientCount())
	}
}
