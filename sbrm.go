package u3v

// SBRM (Streaming/Bus Register Map) field offsets, relative to the
// address ABRM's SBRM_ADDRESS field points at. Read during Open to
// negotiate the real command/ack length limits and to discover whether
// a streaming channel exists at all.
var (
	sbrmU3VCapability     = Register{Address: 0x00, Length: 8, Access: AccessRO}
	sbrmMaxCmdLength      = Register{Address: 0x08, Length: 4, Access: AccessRO}
	sbrmMaxAckLength      = Register{Address: 0x0C, Length: 4, Access: AccessRO}
	sbrmNumStreamChannels = Register{Address: 0x10, Length: 4, Access: AccessRO}
	sbrmSIRMAddress       = Register{Address: 0x14, Length: 8, Access: AccessRO}
	sbrmSIRMLength        = Register{Address: 0x1C, Length: 4, Access: AccessRO}
	sbrmEIRMAddress       = Register{Address: 0x20, Length: 8, Access: AccessRO}
	sbrmEIRMLength        = Register{Address: 0x28, Length: 4, Access: AccessRO}
	sbrmCurrentSpeed      = Register{Address: 0x2C, Length: 4, Access: AccessRO}
)

// sbrmFields is the subset of SBRM this package negotiates during Open.
// sirmAddress and eirmAddress are zero when the device declares no
// streaming or event channel, per the U3V bootstrap convention.
type sbrmFields struct {
	maxCmdLength      uint32
	maxAckLength      uint32
	numStreamChannels uint32
	sirmAddress       uint64
	eirmAddress       uint64
	currentSpeed      uint32
}

// readSBRMRaw reads SBRM directly through the Framer rather than through
// ControlHandle.Read, since it runs during Open before the handle has
// reached StateOpened.
func (h *ControlHandle) readSBRMRaw() (sbrmFields, error) {
	var f sbrmFields

	raw, err := h.framer.ReadMem(h.sbrmAddr+sbrmMaxCmdLength.Address, sbrmMaxCmdLength.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.maxCmdLength, err = readU32(raw); err != nil {
		return f, err
	}

	raw, err = h.framer.ReadMem(h.sbrmAddr+sbrmMaxAckLength.Address, sbrmMaxAckLength.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.maxAckLength, err = readU32(raw); err != nil {
		return f, err
	}

	raw, err = h.framer.ReadMem(h.sbrmAddr+sbrmNumStreamChannels.Address, sbrmNumStreamChannels.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.numStreamChannels, err = readU32(raw); err != nil {
		return f, err
	}

	raw, err = h.framer.ReadMem(h.sbrmAddr+sbrmSIRMAddress.Address, sbrmSIRMAddress.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.sirmAddress, err = readU64(raw); err != nil {
		return f, err
	}

	raw, err = h.framer.ReadMem(h.sbrmAddr+sbrmEIRMAddress.Address, sbrmEIRMAddress.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.eirmAddress, err = readU64(raw); err != nil {
		return f, err
	}

	raw, err = h.framer.ReadMem(h.sbrmAddr+sbrmCurrentSpeed.Address, sbrmCurrentSpeed.Length, h.cfg)
	if err != nil {
		return f, err
	}
	if f.currentSpeed, err = readU32(raw); err != nil {
		return f, err
	}

	return f, nil
}

// SBRMView is a typed, read-through accessor over a ControlHandle's
// SBRM register block, valued relative to the handle's negotiated
// sbrmAddr.
type SBRMView struct {
	h *ControlHandle
}

// SBRM returns a read-through accessor over this handle's SBRM block.
// Requires OPENED, since sbrmAddr is only known once Open has read it
// from ABRM.
func (h *ControlHandle) SBRM() (SBRMView, error) {
	if h.state != StateOpened {
		return SBRMView{}, newErr("SBRM", ErrNotOpened, "handle not opened")
	}
	return SBRMView{h: h}, nil
}

// NumStreamChannels returns SBRM's declared stream channel count.
func (v SBRMView) NumStreamChannels() (uint32, error) {
	buf := make([]byte, sbrmNumStreamChannels.Length)
	if err := v.h.Read(v.h.sbrmAddr+sbrmNumStreamChannels.Address, buf); err != nil {
		return 0, err
	}
	return readU32(buf)
}

// CurrentSpeed returns SBRM's negotiated bus speed.
func (v SBRMView) CurrentSpeed() (BusSpeed, error) {
	buf := make([]byte, sbrmCurrentSpeed.Length)
	if err := v.h.Read(v.h.sbrmAddr+sbrmCurrentSpeed.Address, buf); err != nil {
		return 0, err
	}
	raw, err := readU32(buf)
	if err != nil {
		return 0, err
	}
	return parseBusSpeed(raw)
}

// HasStreamingChannel reports whether the device declared a non-zero
// SIRM address, i.e. whether EnableStreaming can succeed.
func (v SBRMView) HasStreamingChannel() bool {
	return v.h.sirmAddr != 0
}

// HasEventChannel reports whether the device declared a non-zero EIRM
// address.
func (v SBRMView) HasEventChannel() bool {
	return v.h.eirmAddr != 0
}

// EIRMAddress returns the raw EIRM address SBRM declared, zero when the
// device declares no event channel. EIRM's own register layout is out
// of scope; only the pointer is surfaced, for a future event-channel
// collaborator.
func (v SBRMView) EIRMAddress() uint64 {
	return v.h.eirmAddr
}

// --- ControlHandle forwarding methods --------------------------------
//
// NumStreamChannels/CurrentSpeed forward through SBRMView, surfacing
// its ErrNotOpened when sbrmAddr isn't negotiated yet. HasStreamingChannel
// and HasEventChannel only read a field already cached on the handle, so
// they stay usable without an extra error return.

func (h *ControlHandle) NumStreamChannels() (uint32, error) {
	v, err := h.SBRM()
	if err != nil {
		return 0, err
	}
	return v.NumStreamChannels()
}

func (h *ControlHandle) CurrentSpeed() (BusSpeed, error) {
	v, err := h.SBRM()
	if err != nil {
		return 0, err
	}
	return v.CurrentSpeed()
}

// HasStreamingChannel reports whether the device declared a non-zero
// SIRM address, i.e. whether EnableStreaming can succeed.
func (h *ControlHandle) HasStreamingChannel() bool {
	return h.sirmAddr != 0
}

// HasEventChannel reports whether the device declared a non-zero EIRM
// address.
func (h *ControlHandle) HasEventChannel() bool {
	return h.eirmAddr != 0
}
