package core

// Frame is a raw encoded message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks; it fails when the connection is closed or its queue is full.
	TrySend(Frame) error
	Close()
}
