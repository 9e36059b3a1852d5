// Command wsgate-echo-server runs a WebSocket server that echoes every
// text message back to its sender, prefixed with "echo: ". It also
// demonstrates the identity-reclaim flow: on connect it announces the
// client's assigned id via the x-user-id response header.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cjung95/SimpleWebSocket/server"
	"github.com/cjung95/SimpleWebSocket/session"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "listen address")
	port := flag.Int("port", 9000, "listen port")
	remember := flag.Duration("remember", time.Minute, "how long to remember a disconnected client's identity; 0 disables it")
	flag.Parse()

	opts := []server.Option{
		server.WithLocalIP(*ip),
		server.WithPort(*port),
		server.WithSendUserIDToClient(true),
	}
	if *remember > 0 {
		opts = append(opts,
			server.WithRememberDisconnectedClients(*remember),
			server.WithRemovePassiveClientsAfterExpiration(true),
		)
	}
	s := server.NewServer(opts...)

	s.OnClientConnected(func(sess *session.Session) {
		log.Printf("client connected: %s (%s)", sess.ID(), sess.RemoteEndpoint())
	})
	s.OnClientDisconnected(func(sess *session.Session, description string) {
		log.Printf("client disconnected: %s (%s)", sess.ID(), description)
	})
	s.OnMessageReceived(func(sess *session.Session, text string) {
		if err := s.SendMessage(sess.ID(), "echo: "+text); err != nil {
			log.Printf("send to %s: %v", sess.ID(), err)
		}
	})
	s.OnBinaryMessageReceived(func(sess *session.Session, data []byte) {
		if err := s.SendBinaryMessage(sess.ID(), data); err != nil {
			log.Printf("send to %s: %v", sess.ID(), err)
		}
	})
	s.OnPassiveUserExpired(func(sess *session.Session) {
		log.Printf("identity expired, no longer reclaimable: %s", sess.ID())
	})

	if err := s.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}
	log.Printf("listening on %s:%d", *ip, *port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	if err := s.Shutdown(); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
