package u3v

import (
	"context"
	"time"
)

// Session is one open bulk-transport session against a device's claimed
// U3V control interface. A Session is opened by a Backend and owned
// exclusively by the Transport wrapping it — mirrors the
// DeviceHandleInterface abstraction this repository's teacher used to
// decouple protocol code from the platform-specific transfer mechanism,
// narrowed to the two operations the GenCP control channel actually
// needs.
type Session interface {
	// BulkWrite writes p to the control-out endpoint, blocking up to the
	// deadline on ctx, and returns the number of bytes written.
	// Transport.BulkWrite turns a short write into a *ControlError with
	// Kind ErrIO.
	BulkWrite(ctx context.Context, p []byte) (int, error)

	// BulkRead reads up to len(p) bytes from the control-in endpoint
	// into p, blocking up to the deadline on ctx.
	BulkRead(ctx context.Context, p []byte) (int, error)

	// Close releases the claimed interface and the underlying device
	// handle.
	Close() error
}

// Backend discovers U3V devices and opens sessions against them. The
// distilled spec places USB enumeration and endpoint claim/release
// outside this library's scope ("assumed to be a lower-level OS/USB
// facility"); Backend is that facility's interface boundary. gousbBackend
// is the default implementation.
type Backend interface {
	// Enumerate lists every USB device whose control interface matches
	// the U3V class triplet (0xEF/0x02/0x01). Devices that can't be
	// opened to read their descriptors are skipped, not surfaced as
	// errors — an empty result with a nil error is a valid outcome.
	Enumerate(ctx context.Context) ([]DeviceInfo, error)

	// Open claims the U3V control interface of the given device and
	// returns a Session over its bulk endpoints.
	Open(ctx context.Context, info DeviceInfo) (Session, error)
}

// Transport is the thin layer over a Backend-provided Session that
// Framing is built against: it adds per-operation timeouts and holds the
// open session of a single device's control channel. The
// CREATED/OPENED/CLOSED state machine belongs to ControlHandle.
type Transport struct {
	backend Backend
	info    DeviceInfo
	session Session
}

// NewTransport constructs a Transport bound to the given Backend. The
// Transport owns no session until Open succeeds.
func NewTransport(backend Backend) *Transport {
	return &Transport{backend: backend}
}

// Open claims the device's control interface via the backend.
func (t *Transport) Open(ctx context.Context, info DeviceInfo) error {
	session, err := t.backend.Open(ctx, info)
	if err != nil {
		return wrapErr("transport.open", classifyBackendErr(err), err)
	}
	t.info = info
	t.session = session
	return nil
}

// Close releases the underlying session, if any.
func (t *Transport) Close() error {
	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	if err != nil {
		return wrapErr("transport.close", ErrIO, err)
	}
	return nil
}

// BulkWrite writes p within timeout, returning the number of bytes
// actually written. A short write is surfaced as ErrIO, matching the
// distilled spec's "short writes fail" rule.
func (t *Transport) BulkWrite(p []byte, timeout time.Duration) (int, error) {
	if t.session == nil {
		return 0, newErr("transport.write", ErrNotOpened, "transport not opened")
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := t.session.BulkWrite(ctx, p)
	if err != nil {
		return n, wrapErr("transport.write", classifyTransferErr(ctx, err), err)
	}
	if n != len(p) {
		return n, newErr("transport.write", ErrIO, "short write")
	}
	return n, nil
}

// BulkRead reads up to len(buf) bytes within timeout.
func (t *Transport) BulkRead(buf []byte, timeout time.Duration) (int, error) {
	if t.session == nil {
		return 0, newErr("transport.read", ErrNotOpened, "transport not opened")
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := t.session.BulkRead(ctx, buf)
	if err != nil {
		return n, wrapErr("transport.read", classifyTransferErr(ctx, err), err)
	}
	return n, nil
}

// classifyTransferErr maps a context/backend error observed during a
// bulk transfer to a ControlErrorKind, preferring the context's own
// deadline signal (a Backend may return context.DeadlineExceeded
// verbatim rather than a backend-specific timeout error).
func classifyTransferErr(ctx context.Context, err error) ControlErrorKind {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return classifyBackendErr(err)
}
