package u3v

import (
	"context"
	"time"
)

// HandleState is a ControlHandle's position in the CREATED -> OPENED ->
// CLOSED state machine from the distilled spec's data model.
type HandleState int

const (
	StateCreated HandleState = iota
	StateOpened
	StateClosed
)

func (s HandleState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ControlHandle is a per-device session: it owns a Transport, a Framer,
// the negotiated ConnectionConfig, and the bootstrap parameters read
// lazily from the device during Open. A ControlHandle is not safe for
// concurrent use by multiple goroutines — wrap it in a SharedControl for
// that.
type ControlHandle struct {
	backend Backend
	info    DeviceInfo

	transport *Transport
	framer    *Framer
	cfg       ConnectionConfig
	state     HandleState

	capability   DeviceCapability
	sbrmAddr     uint64
	sirmAddr     uint64
	eirmAddr     uint64
	manifestAddr uint64
}

// NewControlHandle constructs a ControlHandle in the CREATED state for
// the given device, using backend to claim its control interface on
// Open.
func NewControlHandle(backend Backend, info DeviceInfo) *ControlHandle {
	return &ControlHandle{
		backend: backend,
		info:    info,
		cfg:     DefaultConnectionConfig(),
		state:   StateCreated,
	}
}

// State returns the handle's current lifecycle state.
func (h *ControlHandle) State() HandleState { return h.state }

// IsOpened reports whether the handle is ready for I/O.
func (h *ControlHandle) IsOpened() bool { return h.state == StateOpened }

// Config returns a copy of the handle's current ConnectionConfig.
func (h *ControlHandle) Config() ConnectionConfig { return h.cfg }

// DeviceInfo returns the identity of the device this handle was created
// for.
func (h *ControlHandle) DeviceInfo() DeviceInfo { return h.info }

// Open claims the device's control endpoints and executes the bootstrap
// read sequence: read ABRM's device capability with the provisional
// ConnectionConfig, replace TimeoutDuration with the device's declared
// maximum response time, read the SBRM and manifest addresses, then read
// SBRM's negotiated command/ack length limits and SIRM/EIRM addresses.
// Open does not read the GenCP version or the identity strings
// (manufacturer, model, serial, user-defined name); their accessors read
// them from the device on each call. Open is valid only from CREATED or
// CLOSED.
func (h *ControlHandle) Open(ctx context.Context) error {
	if h.state == StateOpened {
		return newErr("open", ErrInvalidDevice, "handle already opened")
	}

	transport := NewTransport(h.backend)
	if err := transport.Open(ctx, h.info); err != nil {
		return err
	}
	h.transport = transport
	h.framer = NewFramer(transport)
	h.cfg = DefaultConnectionConfig()

	rawCap, err := h.framer.ReadMem(regDeviceCapability.Address, regDeviceCapability.Length, h.cfg)
	if err != nil {
		h.forceClosed()
		return err
	}
	capRaw, err := readU64(rawCap)
	if err != nil {
		h.forceClosed()
		return err
	}
	h.capability = newDeviceCapability(capRaw)

	rawTimeout, err := h.framer.ReadMem(regMaxDeviceRspTime.Address, regMaxDeviceRspTime.Length, h.cfg)
	if err != nil {
		h.forceClosed()
		return err
	}
	maxRspMs, err := readU32(rawTimeout)
	if err != nil {
		h.forceClosed()
		return err
	}
	h.cfg.TimeoutDuration = time.Duration(maxRspMs) * time.Millisecond

	rawSBRM, err := h.framer.ReadMem(regSBRMAddress.Address, regSBRMAddress.Length, h.cfg)
	if err != nil {
		h.forceClosed()
		return err
	}
	h.sbrmAddr, err = readU64(rawSBRM)
	if err != nil {
		h.forceClosed()
		return err
	}

	rawManifest, err := h.framer.ReadMem(regManifestAddress.Address, regManifestAddress.Length, h.cfg)
	if err != nil {
		h.forceClosed()
		return err
	}
	h.manifestAddr, err = readU64(rawManifest)
	if err != nil {
		h.forceClosed()
		return err
	}

	sbrm, err := h.readSBRMRaw()
	if err != nil {
		h.forceClosed()
		return err
	}
	h.cfg.MaxCmdLength = sbrm.maxCmdLength
	h.cfg.MaxAckLength = sbrm.maxAckLength
	h.sirmAddr = sbrm.sirmAddress
	h.eirmAddr = sbrm.eirmAddress

	h.state = StateOpened
	log.WithField("device", h.info.String()).Info("u3v: control handle opened")
	return nil
}

// Close releases the device's claimed endpoints and transitions the
// handle to CLOSED. Close is valid only from OPENED.
func (h *ControlHandle) Close() error {
	if h.state != StateOpened {
		return newErr("close", ErrNotOpened, "handle not opened")
	}
	err := h.transport.Close()
	h.state = StateClosed
	log.WithField("device", h.info.String()).Info("u3v: control handle closed")
	return err
}

// forceClosed moves the handle to CLOSED after a fatal transport failure
// observed mid-operation, per the distilled spec's error propagation
// policy ("the handle ... is forcibly moved to CLOSED").
func (h *ControlHandle) forceClosed() {
	if h.transport != nil {
		_ = h.transport.Close()
	}
	h.state = StateClosed
}

// Read fills buf with bytes read from addr. Read requires the handle to
// be OPENED. len(buf) must not exceed the handle's BufferCapacity, the
// backing buffer size budgeted for a single read/write transaction's
// payload.
func (h *ControlHandle) Read(addr uint64, buf []byte) error {
	if h.state != StateOpened {
		return newErr("read", ErrNotOpened, "handle not opened")
	}
	if uint32(len(buf)) > h.cfg.BufferCapacity {
		return newErr("read", ErrBufferTooLarge, "payload exceeds buffer_capacity")
	}
	got, err := h.framer.ReadMem(addr, uint32(len(buf)), h.cfg)
	if err != nil {
		if isFatalTransportErr(err) {
			h.forceClosed()
		}
		return err
	}
	if len(got) != len(buf) {
		return newErr("read", ErrBufferTooSmall, "short read")
	}
	copy(buf, got)
	return nil
}

// Write writes data to addr. Write requires the handle to be OPENED.
// len(data) must not exceed the handle's BufferCapacity.
func (h *ControlHandle) Write(addr uint64, data []byte) error {
	if h.state != StateOpened {
		return newErr("write", ErrNotOpened, "handle not opened")
	}
	if uint32(len(data)) > h.cfg.BufferCapacity {
		return newErr("write", ErrBufferTooLarge, "payload exceeds buffer_capacity")
	}
	if err := h.framer.WriteMem(addr, data, h.cfg); err != nil {
		if isFatalTransportErr(err) {
			h.forceClosed()
		}
		return err
	}
	return nil
}

// isFatalTransportErr reports whether err represents a failure severe
// enough that the handle's connection can no longer be trusted and must
// be forced to CLOSED, per §7 of the distilled spec. Protocol-level
// validation failures (InvalidPacket, Nak, PendingAckExceeded) are not
// fatal: the wire is still up, only that one transaction failed.
func isFatalTransportErr(err error) bool {
	cerr, ok := err.(*ControlError)
	if !ok {
		return false
	}
	switch cerr.Kind {
	case ErrIO, ErrInvalidDevice:
		return true
	default:
		return false
	}
}
