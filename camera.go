package u3v

import "context"

// Camera bundles one enumerated device's identity with a ControlHandle
// ready to Open against it. It is the top-level type most callers reach
// for first, the way the teacher's Context groups a *libusb.Device with
// the ID fields callers actually care about.
type Camera struct {
	Info   DeviceInfo
	Handle *ControlHandle
}

var defaultBackend = NewGousbBackend()

// Enumerate lists every U3V-capable device reachable through the
// default gousb-backed Backend.
func Enumerate(ctx context.Context) ([]Camera, error) {
	return EnumerateWithBackend(ctx, defaultBackend)
}

// EnumerateWithBackend lists U3V-capable devices through an arbitrary
// Backend, letting tests substitute a fake without touching libusb.
func EnumerateWithBackend(ctx context.Context, backend Backend) ([]Camera, error) {
	infos, err := backend.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	cameras := make([]Camera, 0, len(infos))
	for _, info := range infos {
		cameras = append(cameras, Camera{
			Info:   info,
			Handle: NewControlHandle(backend, info),
		})
	}
	return cameras, nil
}

// Open is a convenience wrapper around c.Handle.Open.
func (c *Camera) Open(ctx context.Context) error {
	return c.Handle.Open(ctx)
}

// Close is a convenience wrapper around c.Handle.Close.
func (c *Camera) Close() error {
	return c.Handle.Close()
}
