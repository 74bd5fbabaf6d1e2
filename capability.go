package u3v

import "github.com/boljen/go-bitmap"

// Capability bit positions within ABRM's 64-bit device capability
// register (0x01C4), per the GenCP/U3V bootstrap register definition.
// Bits not named here are reserved: Raw() still carries them, and no
// accessor masks them away.
const (
	capUserDefinedName    = 0
	capReadAccess         = 1
	capWriteAccess        = 2
	capMessageChannel     = 3
	capTimestamp          = 4
	capStringEncodingUTF8 = 5
	capFamilyName         = 6
	capSBRM               = 7
	capEventChannel       = 9
)

// DeviceCapability is the immutable 64-bit capability bitfield read from
// ABRM during Open. It wraps github.com/boljen/go-bitmap the way
// bbnote/gostlink's ST-Link flags do, so individual bit tests read as
// bitmap.Get(index) instead of hand-rolled shifts and masks.
type DeviceCapability struct {
	bits bitmap.Bitmap
}

func newDeviceCapability(raw uint64) DeviceCapability {
	b := bitmap.New(64)
	for i := 0; i < 64; i++ {
		b.Set(i, raw&(1<<uint(i)) != 0)
	}
	return DeviceCapability{bits: b}
}

// Raw returns the capability register's original 64-bit value, bit for
// bit, including reserved bits.
func (c DeviceCapability) Raw() uint64 {
	var v uint64
	for i := 0; i < 64; i++ {
		if c.bits.Get(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (c DeviceCapability) UserDefinedName() bool { return c.bits.Get(capUserDefinedName) }

// ReadAccess reports the Access field's read-access-present flag (bit 1).
func (c DeviceCapability) ReadAccess() bool { return c.bits.Get(capReadAccess) }

// WriteAccess reports the Access field's write-access-present flag
// (bit 2).
func (c DeviceCapability) WriteAccess() bool { return c.bits.Get(capWriteAccess) }

// AccessPrivilege is kept for the common case of testing the Access
// field's read flag alone; equivalent to ReadAccess.
func (c DeviceCapability) AccessPrivilege() bool { return c.ReadAccess() }

func (c DeviceCapability) MessageChannel() bool     { return c.bits.Get(capMessageChannel) }
func (c DeviceCapability) Timestamp() bool          { return c.bits.Get(capTimestamp) }
func (c DeviceCapability) StringEncodingUTF8() bool { return c.bits.Get(capStringEncodingUTF8) }
func (c DeviceCapability) FamilyName() bool         { return c.bits.Get(capFamilyName) }
func (c DeviceCapability) SBRM() bool               { return c.bits.Get(capSBRM) }
func (c DeviceCapability) EventChannel() bool       { return c.bits.Get(capEventChannel) }
