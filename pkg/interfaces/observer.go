package interfaces

// Observer is a connection handle registered with the session registry.
// The broadcast hub delivers through this interface so it never touches
// transport details; the websocket package provides the real implementation.
type Observer interface {
	// ID returns the unique connection identifier.
	ID() string

	// Deliver queues a message for the peer (thread-safe, non-blocking).
	// A full queue drops the oldest pending message rather than blocking
	// the caller.
	Deliver(v interface{}) error

	// Close terminates the connection and discards pending deliveries.
	Close() error
}
