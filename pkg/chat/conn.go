package chat

// Conn is one live client connection. The push transport implements it; the
// registry, multiplexer and router never see the underlying socket.
//
// Send must not block: implementations queue the event and report failure if
// the connection is closed or its queue is full. A failed send is a skipped
// best-effort delivery, never an error for the caller.
type Conn interface {
	// ID uniquely identifies this connection for its lifetime.
	ID() string
	// Identity is the authenticated user bound at connection open.
	Identity() string
	Send(event any) error
}
