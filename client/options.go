// Package client implements the connecting side of the WebSocket
// handshake: dialing a server, identifying as a returning user when
// possible, and exchanging messages over the negotiated connection.
package client

import "time"

// Config holds a Client's tunable parameters.
type Config struct {
	// UserID, if non-empty, is presented as x-user-id on every connect
	// attempt so the server can reunite this client with a session it
	// remembers from a previous connection.
	UserID string

	// Subprotocols are offered to the server in preference order.
	Subprotocols []string

	// DialTimeout bounds how long Connect waits for the TCP connection
	// to be established. The handshake that follows has no time bound.
	DialTimeout time.Duration
}

// DefaultConfig returns the client's baseline configuration.
func DefaultConfig() *Config {
	return &Config{DialTimeout: 10 * time.Second}
}

// Option customizes a Client at construction time.
type Option func(*Config)

// WithUserID presents id as x-user-id on connect, requesting the server
// reunite this client with any session it remembers under that identity.
func WithUserID(id string) Option {
	return func(c *Config) { c.UserID = id }
}

// WithSubprotocols offers protos to the server in preference order.
func WithSubprotocols(protos ...string) Option {
	return func(c *Config) { c.Subprotocols = protos }
}

// WithDialTimeout bounds how long Connect waits for the TCP connection to
// be established.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}
