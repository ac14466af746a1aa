package session

import "errors"

var (
	// ErrConnect means the initiator could not open the transport.
	ErrConnect = errors.New("session: connecting transport")
	// ErrSpawn means the accepting side could not start the target program.
	ErrSpawn = errors.New("session: starting target")
)
