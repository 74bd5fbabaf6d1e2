package u3v

import (
	"context"
	"encoding/binary"
)

// fakeSession is a Session whose acknowledge for each write is produced
// by a test-supplied handler, letting framing_test.go and handle_test.go
// drive the protocol state machine without real hardware.
type fakeSession struct {
	handler func(cmd []byte) ([]byte, error)
	lastCmd []byte
	closed  bool
}

func (s *fakeSession) BulkWrite(ctx context.Context, p []byte) (int, error) {
	s.lastCmd = append([]byte(nil), p...)
	return len(p), nil
}

func (s *fakeSession) BulkRead(ctx context.Context, p []byte) (int, error) {
	ack, err := s.handler(s.lastCmd)
	if err != nil {
		return 0, err
	}
	n := copy(p, ack)
	return n, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeBackend hands out a single fakeSession per Open call, built from
// the given handler, and enumerates a single canned DeviceInfo.
type fakeBackend struct {
	info    DeviceInfo
	handler func(cmd []byte) ([]byte, error)
	session *fakeSession
}

func newFakeBackend(handler func(cmd []byte) ([]byte, error)) *fakeBackend {
	return &fakeBackend{
		info:    DeviceInfo{VendorID: 0x1234, ProductID: 0x5678, Vendor: "Acme", Model: "Cam1"},
		handler: handler,
	}
}

func (b *fakeBackend) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{b.info}, nil
}

func (b *fakeBackend) Open(ctx context.Context, info DeviceInfo) (Session, error) {
	b.session = &fakeSession{handler: b.handler}
	return b.session, nil
}

// encodeAck builds one GenCP acknowledge packet with the given status,
// echoing requestID, carrying payload.
func encodeAck(status uint16, requestID uint16, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], genCPPrefix)
	binary.LittleEndian.PutUint16(buf[4:6], status)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(payload)))
	binary.LittleEndian.PutUint16(buf[10:12], requestID)
	copy(buf[12:], payload)
	return buf
}

func requestIDFromCmd(cmd []byte) uint16 {
	return binary.LittleEndian.Uint16(cmd[10:12])
}
