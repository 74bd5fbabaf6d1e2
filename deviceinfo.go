package u3v

import "fmt"

// U3V control interface class triplet (USB3 Vision spec): Miscellaneous
// class, vendor-specific U3V subclass/protocol.
const (
	u3vInterfaceClass    = 0xEF
	u3vInterfaceSubClass = 0x02
	u3vInterfaceProtocol = 0x01
)

// BusSpeed is the USB bus speed negotiated with a device, as reported by
// SBRM's current-speed field.
type BusSpeed uint32

const (
	BusSpeedLow            BusSpeed = 0x1
	BusSpeedFull           BusSpeed = 0x2
	BusSpeedHigh           BusSpeed = 0x4
	BusSpeedSuper          BusSpeed = 0x8
	BusSpeedSuperPlus      BusSpeed = 0x10
)

// parseBusSpeed maps a raw SBRM current-speed value to a BusSpeed,
// surjective over {Low, Full, High, Super, SuperSpeedPlus} and rejecting
// every other value with ErrParse.
func parseBusSpeed(raw uint32) (BusSpeed, error) {
	switch BusSpeed(raw) {
	case BusSpeedLow, BusSpeedFull, BusSpeedHigh, BusSpeedSuper, BusSpeedSuperPlus:
		return BusSpeed(raw), nil
	default:
		return 0, newErr("parseBusSpeed", ErrParse, fmt.Sprintf("invalid bus speed 0x%x", raw))
	}
}

func (s BusSpeed) String() string {
	switch s {
	case BusSpeedLow:
		return "low-speed"
	case BusSpeedFull:
		return "full-speed"
	case BusSpeedHigh:
		return "high-speed"
	case BusSpeedSuper:
		return "super-speed"
	case BusSpeedSuperPlus:
		return "super-speed-plus"
	default:
		return "unknown"
	}
}

// DeviceInfo is the identity of one enumerated U3V device. It is a value
// type, not a pointer, so that copying it is always safe and cheap — the
// ownership rule the distilled spec calls for ("a DeviceInfo is
// shareable (cheap copy)").
type DeviceInfo struct {
	VendorID     uint16
	ProductID    uint16
	Bus          uint8
	Address      uint8
	Vendor       string
	Model        string
	Serial       string
	Manufacturer string
	Speed        BusSpeed
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%04x:%04x %s %s (S/N %s) @ bus %03d dev %03d [%s]",
		d.VendorID, d.ProductID, d.Vendor, d.Model, d.Serial, d.Bus, d.Address, d.Speed)
}
