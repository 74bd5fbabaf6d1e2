package u3v

import "github.com/boljen/go-bitmap"

const (
	cfgHeartbeatDisabled = 0
	cfgMultiEventEnabled = 1
)

// DeviceConfiguration is ABRM's 32-bit device configuration bitfield
// (0x01E0, RW). Unlike DeviceCapability it is mutable: WithHeartbeatDisabled
// and WithMultiEventEnabled flip one bit and the caller writes the whole
// register back, so that reserved bits — which must round-trip unchanged
// per the distilled spec — survive the read-modify-write cycle.
type DeviceConfiguration struct {
	bits bitmap.Bitmap
}

func newDeviceConfiguration(raw uint32) DeviceConfiguration {
	b := bitmap.New(32)
	for i := 0; i < 32; i++ {
		b.Set(i, raw&(1<<uint(i)) != 0)
	}
	return DeviceConfiguration{bits: b}
}

func (c DeviceConfiguration) Raw() uint32 {
	var v uint32
	for i := 0; i < 32; i++ {
		if c.bits.Get(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (c DeviceConfiguration) HeartbeatDisabled() bool { return c.bits.Get(cfgHeartbeatDisabled) }
func (c DeviceConfiguration) MultiEventEnabled() bool { return c.bits.Get(cfgMultiEventEnabled) }

// WithHeartbeatDisabled returns a copy of c with the heartbeat-disabled
// bit set to v; all other bits, including reserved ones, are preserved.
func (c DeviceConfiguration) WithHeartbeatDisabled(v bool) DeviceConfiguration {
	next := newDeviceConfiguration(c.Raw())
	next.bits.Set(cfgHeartbeatDisabled, v)
	return next
}

// WithMultiEventEnabled returns a copy of c with the multi-event-enabled
// bit set to v; all other bits are preserved.
func (c DeviceConfiguration) WithMultiEventEnabled(v bool) DeviceConfiguration {
	next := newDeviceConfiguration(c.Raw())
	next.bits.Set(cfgMultiEventEnabled, v)
	return next
}
