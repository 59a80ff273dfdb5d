package bridge

// Bridge defines the interface for cross-instance room relaying.
// Implementations carry room frames between relay instances.
type Bridge interface {
	// Publish sends a room frame to all other instances via the bridge.
	Publish(roomID int64, frame any) error

	// Start begins listening for frames from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the relay hub to receive frames from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(roomID int64, frame any)
}
