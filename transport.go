package rtm

import (
	"context"
)

// Transport abstracts how the client reaches the messaging backbone.
// The core never opens sockets itself: endpoint discovery, framing and
// payload encryption all live behind this boundary.
type Transport interface {
	// Connect establishes a duplex channel to the endpoint. It is called
	// for the initial login and for every reconnection attempt.
	Connect(ctx context.Context, endpoint string) (Conn, error)
}

// Conn is one established duplex channel.
type Conn interface {
	// Send writes a single frame.
	Send(data []byte) error
	// Read blocks until the next inbound frame arrives. It returns an
	// error when the connection is interrupted or closed, which the
	// client interprets as a transport-level disconnect.
	Read() ([]byte, error)
	// Close tears the connection down. Read must unblock with an error
	// after Close.
	Close() error
}
