package u3v

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSharedControlSerializesAccess(t *testing.T) {
	handle := openTestHandle(t, 0, false)
	defer handle.Close()
	shared := NewSharedControl(handle)

	var inFlight int32
	var sawOverlap bool
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := shared.WithExclusive(context.Background(), func(h *ControlHandle) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					mu.Lock()
					sawOverlap = true
					mu.Unlock()
				}
				defer atomic.AddInt32(&inFlight, -1)
				_, err := h.SerialNumber()
				return err
			})
			if err != nil {
				t.Errorf("WithExclusive: unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sawOverlap {
		t.Error("SharedControl allowed overlapping access to the underlying handle")
	}
}

func TestSharedControlReadWrite(t *testing.T) {
	handle := openTestHandle(t, 1<<capUserDefinedName, false)
	defer handle.Close()
	shared := NewSharedControl(handle)
	ctx := context.Background()

	buf := make([]byte, regSerialNumber.Length)
	if err := shared.Read(ctx, regSerialNumber.Address, buf); err != nil {
		t.Fatalf("Read: unexpected error: %v", err)
	}
	if readFixedString(buf, false) != "SN123" {
		t.Errorf("got %q, want SN123", readFixedString(buf, false))
	}

	if err := shared.Write(ctx, regUserDefinedName.Address, writeFixedString("shared-name", int(regUserDefinedName.Length))); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
	name, err := handle.UserDefinedName()
	if err != nil {
		t.Fatalf("UserDefinedName: unexpected error: %v", err)
	}
	if name != "shared-name" {
		t.Errorf("got %q, want shared-name", name)
	}
}
