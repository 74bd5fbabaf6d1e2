package u3v

// ABRM (Application/Bootstrap Register Map) typed accessors. Every
// method here is a thin wrapper over ControlHandle.Read/Write plus one
// of registers.go's fixed-width codecs — the register addresses and
// widths never vary by device, only the values behind them.

// ABRMView is a typed, read-through accessor over a ControlHandle's
// ABRM register block. It holds no state of its own; every call goes
// straight to the device (or the fake backend under test) through the
// owning handle.
type ABRMView struct {
	h *ControlHandle
}

// ABRM returns a read-through accessor over this handle's ABRM block.
// Valid in any state; individual accessors enforce OPENED themselves
// via ControlHandle.Read/Write.
func (h *ControlHandle) ABRM() ABRMView {
	return ABRMView{h: h}
}

// GenCPVersion returns ABRM's GenCP version field.
func (v ABRMView) GenCPVersion() (uint32, error) {
	buf := make([]byte, regGenCPVersion.Length)
	if err := v.h.Read(regGenCPVersion.Address, buf); err != nil {
		return 0, err
	}
	return readU32(buf)
}

func (v ABRMView) readString(reg Register) (string, error) {
	buf := make([]byte, reg.Length)
	if err := v.h.Read(reg.Address, buf); err != nil {
		return "", err
	}
	return readFixedString(buf, v.h.capability.StringEncodingUTF8()), nil
}

// ManufacturerName returns ABRM's manufacturer name field.
func (v ABRMView) ManufacturerName() (string, error) {
	return v.readString(regManufacturerName)
}

// ModelName returns ABRM's model name field.
func (v ABRMView) ModelName() (string, error) {
	return v.readString(regModelName)
}

// FamilyName returns ABRM's family name field. Returns ErrNotSupported
// without reading the device when DeviceCapabilityFlags().FamilyName is
// clear.
func (v ABRMView) FamilyName() (string, error) {
	if !v.h.capability.FamilyName() {
		return "", newErr("FamilyName", ErrNotSupported, "device does not declare a family name")
	}
	return v.readString(regFamilyName)
}

// DeviceVersion returns ABRM's device version field.
func (v ABRMView) DeviceVersion() (string, error) {
	return v.readString(regDeviceVersion)
}

// ManufacturerInfo returns ABRM's manufacturer-specific information
// field.
func (v ABRMView) ManufacturerInfo() (string, error) {
	return v.readString(regManufacturerInfo)
}

// SerialNumber returns ABRM's serial number field.
func (v ABRMView) SerialNumber() (string, error) {
	return v.readString(regSerialNumber)
}

// UserDefinedName returns ABRM's user-defined name field. Returns
// ErrNotSupported when the device's capability bits don't advertise
// support for it, per the distilled spec's capability-gating rule.
func (v ABRMView) UserDefinedName() (string, error) {
	if !v.h.capability.UserDefinedName() {
		return "", newErr("UserDefinedName", ErrNotSupported, "device does not support user-defined names")
	}
	return v.readString(regUserDefinedName)
}

// SetUserDefinedName writes ABRM's user-defined name field, truncating
// name to the register's width if necessary. Returns ErrNotSupported
// when the device doesn't advertise the capability.
func (v ABRMView) SetUserDefinedName(name string) error {
	if !v.h.capability.UserDefinedName() {
		return newErr("SetUserDefinedName", ErrNotSupported, "device does not support user-defined names")
	}
	return v.h.Write(regUserDefinedName.Address, writeFixedString(name, int(regUserDefinedName.Length)))
}

// DeviceCapabilityFlags returns the DeviceCapability bitfield read
// during Open.
func (v ABRMView) DeviceCapabilityFlags() DeviceCapability {
	return v.h.capability
}

// DeviceConfiguration returns ABRM's current device configuration
// bitfield.
func (v ABRMView) DeviceConfiguration() (DeviceConfiguration, error) {
	buf := make([]byte, regDeviceConfig.Length)
	if err := v.h.Read(regDeviceConfig.Address, buf); err != nil {
		return DeviceConfiguration{}, err
	}
	raw, err := readU32(buf)
	if err != nil {
		return DeviceConfiguration{}, err
	}
	return newDeviceConfiguration(raw), nil
}

// SetDeviceConfiguration writes cfg back to ABRM in full, preserving
// whatever reserved bits cfg was built from.
func (v ABRMView) SetDeviceConfiguration(cfg DeviceConfiguration) error {
	return v.h.Write(regDeviceConfig.Address, writeU32(cfg.Raw()))
}

// MaxDeviceResponseTimeMS returns ABRM's declared maximum device
// response time, in milliseconds, as read during Open.
func (v ABRMView) MaxDeviceResponseTimeMS() uint32 {
	return uint32(v.h.cfg.TimeoutDuration.Milliseconds())
}

// --- ControlHandle forwarding methods --------------------------------
//
// Kept so existing callers (and this package's own tests) can reach
// ABRM fields directly off a *ControlHandle without spelling out
// h.ABRM() at every call site; each simply forwards to the ABRMView
// above, which is the component's real public surface.

func (h *ControlHandle) GenCPVersion() (uint32, error)  { return h.ABRM().GenCPVersion() }
func (h *ControlHandle) ManufacturerName() (string, error) { return h.ABRM().ManufacturerName() }
func (h *ControlHandle) ModelName() (string, error)     { return h.ABRM().ModelName() }
func (h *ControlHandle) FamilyName() (string, error)    { return h.ABRM().FamilyName() }
func (h *ControlHandle) DeviceVersion() (string, error) { return h.ABRM().DeviceVersion() }
func (h *ControlHandle) ManufacturerInfo() (string, error) { return h.ABRM().ManufacturerInfo() }
func (h *ControlHandle) SerialNumber() (string, error)  { return h.ABRM().SerialNumber() }
func (h *ControlHandle) UserDefinedName() (string, error) { return h.ABRM().UserDefinedName() }
func (h *ControlHandle) SetUserDefinedName(name string) error {
	return h.ABRM().SetUserDefinedName(name)
}
func (h *ControlHandle) DeviceCapabilityFlags() DeviceCapability {
	return h.ABRM().DeviceCapabilityFlags()
}
func (h *ControlHandle) DeviceConfiguration() (DeviceConfiguration, error) {
	return h.ABRM().DeviceConfiguration()
}
func (h *ControlHandle) SetDeviceConfiguration(cfg DeviceConfiguration) error {
	return h.ABRM().SetDeviceConfiguration(cfg)
}
func (h *ControlHandle) MaxDeviceResponseTimeMS() uint32 { return h.ABRM().MaxDeviceResponseTimeMS() }
