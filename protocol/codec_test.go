package protocol

import (
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestCodec_SendReceiveText(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	server := NewCodec(serverConn, false)
	client := NewCodec(clientConn, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Send(Message{Payload: []byte("hello")}); err != nil {
			t.Errorf("client.Send: %v", err)
		}
	}()

	msg, err := server.Receive()
	if err != nil {
		t.Fatalf("server.Receive: %v", err)
	}
	if string(msg.Payload) != "hello" || msg.Binary {
		t.Fatalf("Receive = %+v", msg)
	}
	<-done
}

func TestCodec_PingAutoPong(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	server := NewCodec(serverConn, false)
	_ = NewCodec(clientConn, true)

	// Write a raw ping frame directly on the client side of the pipe and
	// confirm the server codec answers with a pong without surfacing it
	// as an application message.
	go func() {
		data, _ := EncodeFrame(&Frame{Final: true, Opcode: OpcodePing, Payload: []byte("ping")}, true, genMaskKey)
		_, _ = clientConn.Write(data)
		buf := make([]byte, 64)
		n, _ := clientConn.Read(buf)
		pong, _, err := DecodeFrame(buf[:n])
		if err != nil || pong == nil || pong.Opcode != OpcodePong || string(pong.Payload) != "ping" {
			t.Errorf("reply to ping = %+v, %v; want a pong echoing %q", pong, err, "ping")
		}
		data2, _ := EncodeFrame(&Frame{Final: true, Opcode: OpcodeText, Payload: []byte("after-ping")}, true, genMaskKey)
		_, _ = clientConn.Write(data2)
	}()

	msg, err := server.Receive()
	if err != nil {
		t.Fatalf("server.Receive: %v", err)
	}
	if string(msg.Payload) != "after-ping" {
		t.Fatalf("Receive = %+v, want after-ping (ping should be consumed, not surfaced)", msg)
	}
}

func TestCodec_CloseHandshake(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	server := NewCodec(serverConn, false)
	client := NewCodec(clientConn, true)

	go func() {
		_ = server.Close(CloseNormalClosure, "bye")
	}()

	_, err := client.Receive()
	if err == nil {
		t.Fatalf("client.Receive: want error after peer close")
	}
	if client.State() != StateClosed {
		t.Fatalf("client.State() = %v, want closed", client.State())
	}

	time.Sleep(10 * time.Millisecond)
	if server.State() != StateClosed {
		t.Fatalf("server.State() = %v, want closed", server.State())
	}
}

func TestCodec_CloseReasonCapturedFromPeer(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	server := NewCodec(serverConn, false)
	client := NewCodec(clientConn, true)

	go func() {
		_ = server.Close(CloseNormalClosure, "server done")
	}()

	if _, err := client.Receive(); err == nil {
		t.Fatalf("client.Receive: want error after peer close")
	}
	if got := client.CloseReason(); got != "server done" {
		t.Fatalf("client.CloseReason() = %q, want %q", got, "server done")
	}
}

func TestCodec_FragmentedMessage(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	server := NewCodec(serverConn, false)

	go func() {
		f1, _ := EncodeFrame(&Frame{Final: false, Opcode: OpcodeText, Payload: []byte("hel")}, true, genMaskKey)
		f2, _ := EncodeFrame(&Frame{Final: true, Opcode: OpcodeContinuation, Payload: []byte("lo")}, true, genMaskKey)
		_, _ = clientConn.Write(f1)
		_, _ = clientConn.Write(f2)
	}()

	msg, err := server.Receive()
	if err != nil {
		t.Fatalf("server.Receive: %v", err)
	}
	if string(msg.Payload) != "hello" {
		t.Fatalf("Receive = %q, want %q", msg.Payload, "hello")
	}
}
