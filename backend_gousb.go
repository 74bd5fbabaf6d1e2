package u3v

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// gousbBackend is the default Backend, built on github.com/google/gousb —
// the library every USB-bulk-protocol driver in this codebase's retrieved
// lineage reaches for (guiperry/HASHER's ASIC USB driver, bbnote/gostlink's
// ST-Link driver, gherlein/gocat) instead of re-deriving libusb bindings.
// One gousbBackend owns one *gousb.Context for the process.
type gousbBackend struct {
	ctx *gousb.Context
}

// NewGousbBackend opens a libusb context and returns the default Backend.
// Callers should Close the backend once done to release the libusb
// context; closing a Transport built on it releases only its session.
func NewGousbBackend() *gousbBackend {
	return &gousbBackend{ctx: gousb.NewContext()}
}

// Close releases the underlying libusb context.
func (b *gousbBackend) Close() error {
	return b.ctx.Close()
}

func (b *gousbBackend) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	// gousb.OpenDevices returns partial results alongside a non-nil err
	// when some devices fail to open; per the distilled spec, devices
	// that can't be opened are skipped rather than surfacing as errors,
	// so err is intentionally not propagated here (mirrors gostlink's
	// usbFindDevices, which treats "len(devices) > 0" as success
	// regardless of err).
	_ = err

	var infos []DeviceInfo
	for _, dev := range devices {
		info, ok := describeU3VDevice(dev)
		dev.Close()
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// describeU3VDevice checks whether dev exposes a U3V control interface
// (class 0xEF, subclass 0x02, protocol 0x01) and, if so, assembles its
// DeviceInfo. Devices without a matching interface, or whose descriptors
// can't be read, are reported via ok=false and are skipped by the caller
// rather than treated as an enumeration error.
func describeU3VDevice(dev *gousb.Device) (DeviceInfo, bool) {
	if !hasU3VInterface(dev.Desc) {
		return DeviceInfo{}, false
	}

	vendor, _ := dev.Manufacturer()
	model, _ := dev.Product()
	serial, _ := dev.SerialNumber()

	speed, err := busSpeedFromGousb(dev.Desc.Speed)
	if err != nil {
		return DeviceInfo{}, false
	}

	return DeviceInfo{
		VendorID:     uint16(dev.Desc.Vendor),
		ProductID:    uint16(dev.Desc.Product),
		Bus:          uint8(dev.Desc.Bus),
		Address:      uint8(dev.Desc.Address),
		Vendor:       vendor,
		Model:        model,
		Serial:       serial,
		Manufacturer: vendor,
		Speed:        speed,
	}, true
}

func hasU3VInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if uint8(alt.Class) == u3vInterfaceClass &&
					uint8(alt.SubClass) == u3vInterfaceSubClass &&
					uint8(alt.Protocol) == u3vInterfaceProtocol {
					return true
				}
			}
		}
	}
	return false
}

// busSpeedFromGousb maps gousb's descriptor speed enum to BusSpeed. gousb's
// Speed carries libusb's sequential speed codes (low=1, full=2, high=3,
// super=4, super-plus=5), not BusSpeed's bit values, so each is mapped
// explicitly.
func busSpeedFromGousb(speed gousb.Speed) (BusSpeed, error) {
	switch speed {
	case gousb.SpeedLow:
		return BusSpeedLow, nil
	case gousb.SpeedFull:
		return BusSpeedFull, nil
	case gousb.SpeedHigh:
		return BusSpeedHigh, nil
	case gousb.SpeedSuper:
		return BusSpeedSuper, nil
	default:
		// SuperSpeedPlus has no named gousb constant; match libusb's
		// numeric code for it rather than failing enumeration outright.
		if speed == 5 {
			return BusSpeedSuperPlus, nil
		}
		return 0, fmt.Errorf("unrecognized usb speed %v", speed)
	}
}

// gousbSession is a Session backed by one claimed gousb interface's bulk
// endpoint pair.
type gousbSession struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint
}

func (b *gousbBackend) Open(ctx context.Context, info DeviceInfo) (Session, error) {
	dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(info.VendorID), gousb.ID(info.ProductID))
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, newErr("backend.open", ErrInvalidDevice, "device not found")
	}

	cfgNum, intfNum, altNum, ok := findU3VInterface(dev.Desc)
	if !ok {
		dev.Close()
		return nil, newErr("backend.open", ErrInvalidDevice, "no U3V control interface")
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		return nil, err
	}
	intf, err := cfg.Interface(intfNum, altNum)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, err
	}

	var epOut *gousb.OutEndpoint
	var epIn *gousb.InEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut && epOut == nil {
			epOut, err = intf.OutEndpoint(ep.Number)
			if err != nil {
				break
			}
		}
		if ep.Direction == gousb.EndpointDirectionIn && epIn == nil {
			epIn, err = intf.InEndpoint(ep.Number)
			if err != nil {
				break
			}
		}
	}
	if err != nil || epOut == nil || epIn == nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, newErr("backend.open", ErrInvalidDevice, "U3V control endpoints not found")
	}

	return &gousbSession{dev: dev, cfg: cfg, intf: intf, epOut: epOut, epIn: epIn}, nil
}

func findU3VInterface(desc *gousb.DeviceDesc) (cfgNum, intfNum, altNum int, ok bool) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if uint8(alt.Class) == u3vInterfaceClass &&
					uint8(alt.SubClass) == u3vInterfaceSubClass &&
					uint8(alt.Protocol) == u3vInterfaceProtocol {
					return cfg.Number, intf.Number, alt.Alternate, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

func (s *gousbSession) BulkWrite(ctx context.Context, p []byte) (int, error) {
	return s.epOut.WriteContext(ctx, p)
}

func (s *gousbSession) BulkRead(ctx context.Context, p []byte) (int, error) {
	return s.epIn.ReadContext(ctx, p)
}

func (s *gousbSession) Close() error {
	s.intf.Close()
	s.cfg.Close()
	return s.dev.Close()
}

// classifyBackendErr maps a libusb error surfaced through gousb to a
// ControlErrorKind, per the mapping the distilled spec's Design Notes
// require be completed: NotFound -> InvalidDevice, Timeout -> Timeout,
// NoDevice/Disconnected -> InvalidDevice, Access -> Io, Busy -> Io, and
// everything else -> Io.
func classifyBackendErr(err error) ControlErrorKind {
	if err == nil {
		return ErrIO
	}
	code, ok := err.(gousb.ErrorCode)
	if !ok {
		return ErrIO
	}
	switch code {
	case gousb.ErrorNotFound:
		return ErrInvalidDevice
	case gousb.ErrorTimeout:
		return ErrTimeout
	case gousb.ErrorNoDevice:
		return ErrInvalidDevice
	case gousb.ErrorAccess:
		return ErrIO
	case gousb.ErrorBusy:
		return ErrIO
	default:
		return ErrIO
	}
}
