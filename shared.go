package u3v

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SharedControl wraps a ControlHandle with a weight-1 semaphore so that
// multiple goroutines can share one device's control channel without
// interleaving GenCP transactions, matching the distilled spec's
// "exactly one command may be in flight... other callers must block"
// exclusion rule. golang.org/x/sync/semaphore was already an indirect
// dependency of this codebase's lineage; this is the first caller to
// exercise it directly.
type SharedControl struct {
	handle *ControlHandle
	sem    *semaphore.Weighted
}

// NewSharedControl wraps handle for concurrent use. handle must not be
// accessed directly by any other caller once wrapped.
func NewSharedControl(handle *ControlHandle) *SharedControl {
	return &SharedControl{handle: handle, sem: semaphore.NewWeighted(1)}
}

// WithExclusive runs fn with exclusive access to the underlying
// ControlHandle, blocking until any other holder releases it or ctx is
// canceled.
func (s *SharedControl) WithExclusive(ctx context.Context, fn func(*ControlHandle) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return wrapErr("WithExclusive", ErrTimeout, err)
	}
	defer s.sem.Release(1)
	return fn(s.handle)
}

// Read is a convenience wrapper that acquires exclusive access for one
// ControlHandle.Read call.
func (s *SharedControl) Read(ctx context.Context, addr uint64, buf []byte) error {
	return s.WithExclusive(ctx, func(h *ControlHandle) error {
		return h.Read(addr, buf)
	})
}

// Write is a convenience wrapper that acquires exclusive access for one
// ControlHandle.Write call.
func (s *SharedControl) Write(ctx context.Context, addr uint64, data []byte) error {
	return s.WithExclusive(ctx, func(h *ControlHandle) error {
		return h.Write(addr, data)
	})
}

// EnableStreaming is a convenience wrapper around ControlHandle's method
// of the same name.
func (s *SharedControl) EnableStreaming(ctx context.Context) error {
	return s.WithExclusive(ctx, func(h *ControlHandle) error {
		return h.EnableStreaming()
	})
}

// DisableStreaming is a convenience wrapper around ControlHandle's
// method of the same name.
func (s *SharedControl) DisableStreaming(ctx context.Context) error {
	return s.WithExclusive(ctx, func(h *ControlHandle) error {
		return h.DisableStreaming()
	})
}
