package u3v

import (
	"encoding/binary"
	"fmt"
	"time"
)

// GenCP command/acknowledge wire format. Little-endian throughout, as the
// U3V standard requires bit-exact.
const (
	genCPPrefix = 0x43563355 // "U3VC"
	headerSize  = 12

	cmdReadMem  uint16 = 0x0800
	cmdWriteMem uint16 = 0x0802

	statusSuccess     uint16 = 0x0000
	statusPendingAck  uint16 = 0x8001
	flagRequestAck    uint16 = 0x0001
)

// ackStatusName maps the device error statuses named in the distilled
// spec's framing table to a human-readable name for log/error messages.
var ackStatusName = map[uint16]string{
	0x8000: "NotImplemented",
	0x8002: "InvalidParameter",
	0x8003: "InvalidAddress",
	0x8004: "WriteProtect",
	0x8005: "BadAlignment",
	0x8006: "AccessDenied",
	0x8007: "Busy",
	0x800B: "MessageChannelNotWritable", // kept for completeness of the status table
}

// Framer serializes outbound GenCP commands and parses inbound
// acknowledgements over a Transport, including the PENDING_ACK retry
// loop and READMEM/WRITEMEM chunking. A Framer is owned exclusively by
// one ControlHandle; the "at most one in-flight command" invariant holds
// because nothing calls transact concurrently on the same Framer.
type Framer struct {
	transport *Transport
	nextID    uint16
}

// NewFramer constructs a Framer over the given Transport. The request-id
// counter starts at zero.
func NewFramer(t *Transport) *Framer {
	return &Framer{transport: t}
}

func (f *Framer) allocateRequestID() uint16 {
	id := f.nextID
	f.nextID++ // wraps at 2^16, which is legal per the distilled spec
	return id
}

// encodeCommand serializes one GenCP command packet.
func encodeCommand(command uint16, requestID uint16, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], genCPPrefix)
	binary.LittleEndian.PutUint16(buf[4:6], flagRequestAck)
	binary.LittleEndian.PutUint16(buf[6:8], command)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(payload)))
	binary.LittleEndian.PutUint16(buf[10:12], requestID)
	copy(buf[12:], payload)
	return buf
}

type ackHeader struct {
	status     uint16
	ack        uint16
	length     uint16
	requestID  uint16
}

func decodeAckHeader(buf []byte) (ackHeader, error) {
	if len(buf) < headerSize {
		return ackHeader{}, newErr("decodeAck", ErrInvalidPacket, "acknowledge shorter than header")
	}
	prefix := binary.LittleEndian.Uint32(buf[0:4])
	if prefix != genCPPrefix {
		return ackHeader{}, newErr("decodeAck", ErrInvalidPacket, "bad prefix")
	}
	h := ackHeader{
		status:    binary.LittleEndian.Uint16(buf[4:6]),
		ack:       binary.LittleEndian.Uint16(buf[6:8]),
		length:    binary.LittleEndian.Uint16(buf[8:10]),
		requestID: binary.LittleEndian.Uint16(buf[10:12]),
	}
	return h, nil
}

// transact runs one command/acknowledge exchange to completion, including
// the bounded PENDING_ACK retry loop, and returns the acknowledge's
// payload. cfg is read for the current timeout/length/retry limits;
// these can change between calls (e.g. Open narrowing TimeoutDuration)
// so transact always takes a fresh snapshot rather than caching it.
func (f *Framer) transact(cmd uint16, payload []byte, cfg ConnectionConfig) ([]byte, error) {
	requestID := f.allocateRequestID()
	packet := encodeCommand(cmd, requestID, payload)
	if uint32(len(packet)) > cfg.MaxCmdLength {
		return nil, newErr("transact", ErrBufferTooSmall, "command exceeds maximum_cmd_length")
	}

	if _, err := f.transport.BulkWrite(packet, cfg.TimeoutDuration); err != nil {
		return nil, err
	}

	ackBuf := make([]byte, cfg.MaxAckLength)
	retries := 0
	for {
		n, err := f.transport.BulkRead(ackBuf, cfg.TimeoutDuration)
		if err != nil {
			return nil, err
		}
		hdr, err := decodeAckHeader(ackBuf[:n])
		if err != nil {
			return nil, err
		}
		if hdr.requestID != requestID {
			return nil, newErr("transact", ErrInvalidPacket,
				fmt.Sprintf("request id mismatch: got %d want %d", hdr.requestID, requestID))
		}
		payloadEnd := headerSize + int(hdr.length)
		if payloadEnd > n {
			return nil, newErr("transact", ErrInvalidPacket, "acknowledge payload truncated")
		}
		ackPayload := ackBuf[headerSize:payloadEnd]

		switch hdr.status {
		case statusSuccess:
			log.WithFields(logrusFields(cmd, requestID)).Debug("u3v: transaction complete")
			return ackPayload, nil
		case statusPendingAck:
			retries++
			if retries > cfg.RetryCount {
				return nil, newErr("transact", ErrPendingAckExceeded, "pending ack retries exhausted")
			}
			wait := pendingAckWait(ackPayload)
			log.WithFields(logrusFields(cmd, requestID)).
				WithField("retry", retries).
				WithField("wait", wait).
				Debug("u3v: pending ack, retrying")
			time.Sleep(wait)
			continue
		default:
			name, known := ackStatusName[hdr.status]
			if !known {
				name = fmt.Sprintf("0x%04x", hdr.status)
			}
			return nil, newErr("transact", ErrNak, fmt.Sprintf("device nak: %s", name))
		}
	}
}

// pendingAckWait decodes the suggested retry timeout carried in a
// PENDING_ACK acknowledge's payload (a little-endian uint16 of
// milliseconds), falling back to a conservative default when the device
// didn't include one.
func pendingAckWait(payload []byte) time.Duration {
	if len(payload) < 2 {
		return 10 * time.Millisecond
	}
	ms := binary.LittleEndian.Uint16(payload[0:2])
	if ms == 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func logrusFields(cmd uint16, requestID uint16) map[string]interface{} {
	return map[string]interface{}{
		"cmd":       fmt.Sprintf("0x%04x", cmd),
		"requestID": requestID,
	}
}

// ReadMem reads length bytes from addr, chunking the request across
// multiple command/ack transactions when length exceeds what one ack
// can carry (MaxAckLength minus the 12-byte header), and concatenating
// the results in address order.
func (f *Framer) ReadMem(addr uint64, length uint32, cfg ConnectionConfig) ([]byte, error) {
	chunkSize := cfg.MaxAckLength - headerSize
	if chunkSize == 0 || cfg.MaxAckLength <= headerSize {
		return nil, newErr("ReadMem", ErrBufferTooSmall, "maximum_ack_length too small for any payload")
	}

	out := make([]byte, 0, length)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > chunkSize {
			n = chunkSize
		}
		payload := make([]byte, 10)
		binary.LittleEndian.PutUint64(payload[0:8], addr)
		binary.LittleEndian.PutUint16(payload[8:10], uint16(n))

		ack, err := f.transact(cmdReadMem, payload, cfg)
		if err != nil {
			return nil, err
		}
		if uint32(len(ack)) < n {
			return nil, newErr("ReadMem", ErrBufferTooSmall, "short read acknowledge")
		}
		out = append(out, ack[:n]...)
		addr += uint64(n)
		remaining -= n
	}
	return out, nil
}

// WriteMem writes data to addr, chunking analogously to ReadMem but
// against MaxCmdLength.
func (f *Framer) WriteMem(addr uint64, data []byte, cfg ConnectionConfig) error {
	chunkSize := cfg.MaxCmdLength - headerSize - 8 // 8-byte address prefix
	if cfg.MaxCmdLength <= headerSize+8 {
		return newErr("WriteMem", ErrBufferTooSmall, "maximum_cmd_length too small for any payload")
	}

	for off := 0; off < len(data); {
		n := uint32(len(data) - off)
		if n > chunkSize {
			n = chunkSize
		}
		payload := make([]byte, 8+n)
		binary.LittleEndian.PutUint64(payload[0:8], addr+uint64(off))
		copy(payload[8:], data[off:off+int(n)])

		if _, err := f.transact(cmdWriteMem, payload, cfg); err != nil {
			return err
		}
		off += int(n)
	}
	return nil
}
