// Package server accepts raw TCP connections, negotiates the WebSocket
// handshake, and manages the resulting sessions: an ACTIVE registry of
// currently connected clients and, optionally, a PASSIVE registry of
// recently disconnected clients that are given a grace period to
// reconnect and reclaim their identity.
package server

import "time"

// Config holds the server's tunable parameters. NewServer starts from
// DefaultConfig and applies each Option on top of it, so a field an
// Option sets is used as given, zero included.
type Config struct {
	// LocalIP and Port together form the TCP listen address.
	LocalIP string
	Port    int

	// RememberDisconnectedClients enables the PASSIVE registry: when a
	// client disconnects, its session is kept so a reconnecting client
	// presenting the same x-user-id can resume it. Whether it is dropped
	// after PassiveClientLifetime depends on
	// RemovePassiveClientsAfterExpiration.
	RememberDisconnectedClients bool

	// RemovePassiveClientsAfterExpiration selects the PASSIVE registry's
	// backing store. When true, PASSIVE is a TTL-backed expiring map:
	// entries older than PassiveClientLifetime are dropped and reported
	// via OnPassiveUserExpired. When false, PASSIVE is a plain mapping
	// with no expiry; an entry survives until it is reclaimed or the
	// server shuts down.
	RemovePassiveClientsAfterExpiration bool

	// PassiveClientLifetime is how long a disconnected client's session
	// is retained before being expired. It is used only when
	// RemovePassiveClientsAfterExpiration is true.
	PassiveClientLifetime time.Duration

	// SendUserIDToClient controls whether the server announces the
	// session's identity to the client in an x-user-id header of the 101
	// handshake response.
	SendUserIDToClient bool

	// ShutdownTimeout is kept with the configuration, but Shutdown does
	// not read it: Shutdown closes every active session at once and then
	// waits, without a time bound, for the connection goroutines to end.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the server's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		LocalIP:                     "0.0.0.0",
		Port:                        9000,
		RememberDisconnectedClients: false,
		PassiveClientLifetime:       1 * time.Minute,
		SendUserIDToClient:          true,
		ShutdownTimeout:             10 * time.Second,
	}
}
