// Command wsgate-echo-client connects to a wsgate server, sends whatever
// is typed on stdin as text messages, and prints whatever comes back.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cjung95/SimpleWebSocket/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "server address")
	path := flag.String("path", "/", "request path")
	userID := flag.String("user", "", "identity to present via x-user-id, for reconnecting as a known client")
	flag.Parse()

	var opts []client.Option
	if *userID != "" {
		opts = append(opts, client.WithUserID(*userID))
	}
	c := client.NewClient(opts...)

	c.OnMessageReceived(func(text string) {
		fmt.Printf("< %s\n", text)
	})
	c.OnDisconnected(func(description string) {
		log.Printf("disconnected: %s", description)
	})

	if err := c.Connect(*addr, *path); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()
	log.Printf("connected to %s as %s", *addr, c.UserID())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := c.SendMessage(line); err != nil {
			if !c.IsConnected() {
				log.Println("connection closed")
				return
			}
			log.Printf("send: %v", err)
		}
	}
}
