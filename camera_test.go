package u3v

import (
	"context"
	"testing"
)

func TestEnumerateWithBackendEmpty(t *testing.T) {
	backend := &emptyBackend{}
	cameras, err := EnumerateWithBackend(context.Background(), backend)
	if err != nil {
		t.Fatalf("EnumerateWithBackend: unexpected error: %v", err)
	}
	if len(cameras) != 0 {
		t.Errorf("got %d cameras, want 0", len(cameras))
	}
}

func TestEnumerateWithBackendReturnsOpenableCameras(t *testing.T) {
	backend := newFakeBackend(fakeDeviceHandler(0, false))
	cameras, err := EnumerateWithBackend(context.Background(), backend)
	if err != nil {
		t.Fatalf("EnumerateWithBackend: unexpected error: %v", err)
	}
	if len(cameras) != 1 {
		t.Fatalf("got %d cameras, want 1", len(cameras))
	}
	if err := cameras[0].Open(context.Background()); err != nil {
		t.Fatalf("Camera.Open: unexpected error: %v", err)
	}
	defer cameras[0].Close()
	if !cameras[0].Handle.IsOpened() {
		t.Error("expected camera handle to be opened")
	}
}

// emptyBackend enumerates no devices, matching the distilled spec's "no
// U3V devices present" edge case.
type emptyBackend struct{}

func (emptyBackend) Enumerate(ctx context.Context) ([]DeviceInfo, error) { return nil, nil }
func (emptyBackend) Open(ctx context.Context, info DeviceInfo) (Session, error) {
	return nil, newErr("open", ErrInvalidDevice, "no such device")
}
