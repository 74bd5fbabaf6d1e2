package u3v

// SIRM (Streaming Interface Register Map) field offsets, relative to
// SBRM's SIRM_ADDRESS. Only present when HasStreamingChannel is true.
var (
	sirmInfo                    = Register{Address: 0x00, Length: 4, Access: AccessRO}
	sirmControl                 = Register{Address: 0x04, Length: 4, Access: AccessRW}
	sirmRequiredPayloadAlignment = Register{Address: 0x08, Length: 4, Access: AccessRO}
	sirmMaxLeaderSize           = Register{Address: 0x0C, Length: 4, Access: AccessRO}
	sirmMaxTrailerSize          = Register{Address: 0x10, Length: 4, Access: AccessRO}
	sirmPayloadTransferSize     = Register{Address: 0x14, Length: 4, Access: AccessRW}
	sirmPayloadTransferCount    = Register{Address: 0x18, Length: 4, Access: AccessRO}
	sirmPayloadFinalTransfer1Size = Register{Address: 0x1C, Length: 4, Access: AccessRO}
	sirmPayloadFinalTransfer2Size = Register{Address: 0x20, Length: 4, Access: AccessRO}
)

const sirmControlStreamEnable = 0

// SIRMView is a typed, read-through accessor over a ControlHandle's
// SIRM register block. Its accessors are what a streaming collaborator
// sizes leader/trailer buffers and negotiates transfer sizes from.
type SIRMView struct {
	h *ControlHandle
}

// SIRM returns a read-through accessor over this handle's SIRM block.
// Requires OPENED, and ErrUnsupportedOperation when the device declared
// no streaming interface at Open.
func (h *ControlHandle) SIRM() (SIRMView, error) {
	if h.state != StateOpened {
		return SIRMView{}, newErr("SIRM", ErrNotOpened, "handle not opened")
	}
	if !h.HasStreamingChannel() {
		return SIRMView{}, newErr("SIRM", ErrUnsupportedOperation, "device declares no streaming interface")
	}
	return SIRMView{h: h}, nil
}

func (v SIRMView) readU32Field(reg Register) (uint32, error) {
	buf := make([]byte, reg.Length)
	if err := v.h.Read(v.h.sirmAddr+reg.Address, buf); err != nil {
		return 0, err
	}
	return readU32(buf)
}

// Info returns SIRM's SI info field.
func (v SIRMView) Info() (uint32, error) {
	return v.readU32Field(sirmInfo)
}

// EnableStreaming turns on the device's streaming channel by setting
// SIRM's stream-enable bit.
func (v SIRMView) EnableStreaming() error {
	return v.setStreamEnable(true)
}

// DisableStreaming turns the streaming channel back off.
func (v SIRMView) DisableStreaming() error {
	return v.setStreamEnable(false)
}

func (v SIRMView) setStreamEnable(enable bool) error {
	buf := make([]byte, sirmControl.Length)
	if err := v.h.Read(v.h.sirmAddr+sirmControl.Address, buf); err != nil {
		return err
	}
	raw, err := readU32(buf)
	if err != nil {
		return err
	}
	if enable {
		raw |= 1 << sirmControlStreamEnable
	} else {
		raw &^= 1 << sirmControlStreamEnable
	}
	return v.h.Write(v.h.sirmAddr+sirmControl.Address, writeU32(raw))
}

// StreamingEnabled reports the current state of SIRM's stream-enable
// bit.
func (v SIRMView) StreamingEnabled() (bool, error) {
	raw, err := v.readU32Field(sirmControl)
	if err != nil {
		return false, err
	}
	return raw&(1<<sirmControlStreamEnable) != 0, nil
}

// RequiredPayloadAlignment returns SIRM's declared payload alignment
// requirement, in bytes.
func (v SIRMView) RequiredPayloadAlignment() (uint32, error) {
	return v.readU32Field(sirmRequiredPayloadAlignment)
}

// MaximumLeaderSize returns SIRM's declared maximum leader packet size,
// for sizing a streaming collaborator's leader buffer.
func (v SIRMView) MaximumLeaderSize() (uint32, error) {
	return v.readU32Field(sirmMaxLeaderSize)
}

// MaximumTrailerSize returns SIRM's declared maximum trailer packet
// size, for sizing a streaming collaborator's trailer buffer.
func (v SIRMView) MaximumTrailerSize() (uint32, error) {
	return v.readU32Field(sirmMaxTrailerSize)
}

// PayloadTransferSize returns SIRM's negotiated per-transfer payload
// size.
func (v SIRMView) PayloadTransferSize() (uint32, error) {
	return v.readU32Field(sirmPayloadTransferSize)
}

// SetPayloadTransferSize writes SIRM's negotiated per-transfer payload
// size.
func (v SIRMView) SetPayloadTransferSize(size uint32) error {
	return v.h.Write(v.h.sirmAddr+sirmPayloadTransferSize.Address, writeU32(size))
}

// PayloadTransferCount returns SIRM's declared number of full-size
// payload transfers per image.
func (v SIRMView) PayloadTransferCount() (uint32, error) {
	return v.readU32Field(sirmPayloadTransferCount)
}

// PayloadFinalTransfer1Size returns SIRM's declared size of the first
// final (possibly short) payload transfer.
func (v SIRMView) PayloadFinalTransfer1Size() (uint32, error) {
	return v.readU32Field(sirmPayloadFinalTransfer1Size)
}

// PayloadFinalTransfer2Size returns SIRM's declared size of the second
// final payload transfer.
func (v SIRMView) PayloadFinalTransfer2Size() (uint32, error) {
	return v.readU32Field(sirmPayloadFinalTransfer2Size)
}

// --- ControlHandle forwarding methods --------------------------------

func (h *ControlHandle) EnableStreaming() error {
	v, err := h.SIRM()
	if err != nil {
		return err
	}
	return v.EnableStreaming()
}

func (h *ControlHandle) DisableStreaming() error {
	v, err := h.SIRM()
	if err != nil {
		return err
	}
	return v.DisableStreaming()
}

func (h *ControlHandle) StreamingEnabled() (bool, error) {
	v, err := h.SIRM()
	if err != nil {
		return false, err
	}
	return v.StreamingEnabled()
}

// RequiredPayloadAlignment returns SIRM's declared payload alignment
// requirement, in bytes.
func (h *ControlHandle) RequiredPayloadAlignment() (uint32, error) {
	v, err := h.SIRM()
	if err != nil {
		return 0, err
	}
	return v.RequiredPayloadAlignment()
}

// SetPayloadTransferSize writes SIRM's negotiated per-transfer payload
// size.
func (h *ControlHandle) SetPayloadTransferSize(size uint32) error {
	v, err := h.SIRM()
	if err != nil {
		return err
	}
	return v.SetPayloadTransferSize(size)
}
