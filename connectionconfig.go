package u3v

import "time"

// ConnectionConfig holds the mutable session parameters of one
// ControlHandle. It starts at the provisional defaults below and is
// progressively replaced with device-declared values during Open.
//
// Mutation is only ever safe while the owning handle's exclusion
// primitive is held — directly for a bare ControlHandle (single owner,
// no concurrent callers) or via SharedControl's semaphore when a handle
// is shared.
type ConnectionConfig struct {
	// TimeoutDuration bounds every Transport call. Starts at 500ms and
	// is replaced by ABRM's maximum device response time once Open has
	// read it.
	TimeoutDuration time.Duration

	// RetryCount bounds the number of PENDING_ACK retries tolerated per
	// transaction.
	RetryCount int

	// MaxCmdLength and MaxAckLength bound a single command/ack packet
	// (header + payload), including the 12-byte GenCP header. Start at
	// 128 and are replaced with SBRM's negotiated values during Open.
	MaxCmdLength uint32
	MaxAckLength uint32

	// BufferCapacity bounds ControlHandle.Read/Write's payload length
	// (ErrBufferTooLarge past it) and is the chunk size GenAPI reads a
	// Manifest file in, since one XML file routinely exceeds it.
	BufferCapacity uint32
}

// DefaultConnectionConfig returns the provisional configuration a
// ControlHandle starts with before Open negotiates device-declared
// limits.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		TimeoutDuration: 500 * time.Millisecond,
		RetryCount:      3,
		MaxCmdLength:    128,
		MaxAckLength:    128,
		BufferCapacity:  4096,
	}
}
