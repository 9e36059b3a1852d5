package server

import "fmt"

var (
	ErrNotStarted       = fmt.Errorf("server: not started")
	ErrAlreadyStarted   = fmt.Errorf("server: already started")
	ErrClientNotFound   = fmt.Errorf("server: client not found")
	ErrIdentityConflict = fmt.Errorf("server: requested identity is already active")
)
