package u3v

import (
	"context"
	"encoding/binary"
	"testing"
)

func newTestFramer(t *testing.T, handler func(cmd []byte) ([]byte, error)) (*Framer, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend(handler)
	transport := NewTransport(backend)
	if err := transport.Open(context.Background(), backend.info); err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	return NewFramer(transport), backend
}

func TestTransactSuccess(t *testing.T) {
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		return encodeAck(statusSuccess, requestIDFromCmd(cmd), []byte{0xaa, 0xbb}), nil
	})

	ack, err := framer.transact(cmdReadMem, []byte{1, 2, 3}, DefaultConnectionConfig())
	if err != nil {
		t.Fatalf("transact: unexpected error: %v", err)
	}
	if len(ack) != 2 || ack[0] != 0xaa || ack[1] != 0xbb {
		t.Errorf("got ack %v, want [0xaa 0xbb]", ack)
	}
}

func TestTransactPendingAckRetriesThenSucceeds(t *testing.T) {
	calls := 0
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		calls++
		id := requestIDFromCmd(cmd)
		if calls <= 2 {
			return encodeAck(statusPendingAck, id, []byte{1, 0}), nil // 1ms wait
		}
		return encodeAck(statusSuccess, id, []byte{0x42}), nil
	})

	ack, err := framer.transact(cmdReadMem, []byte{1}, DefaultConnectionConfig())
	if err != nil {
		t.Fatalf("transact: unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 pending + 1 success), got %d", calls)
	}
	if len(ack) != 1 || ack[0] != 0x42 {
		t.Errorf("got ack %v, want [0x42]", ack)
	}
}

func TestTransactPendingAckExceedsRetryBudget(t *testing.T) {
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		return encodeAck(statusPendingAck, requestIDFromCmd(cmd), []byte{1, 0}), nil
	})

	cfg := DefaultConnectionConfig()
	cfg.RetryCount = 2
	_, err := framer.transact(cmdReadMem, []byte{1}, cfg)
	if err == nil {
		t.Fatal("expected error after exhausting pending ack retries")
	}
	cerr, ok := err.(*ControlError)
	if !ok || cerr.Kind != ErrPendingAckExceeded {
		t.Errorf("got %v, want ErrPendingAckExceeded", err)
	}
}

func TestTransactRequestIDMismatch(t *testing.T) {
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		return encodeAck(statusSuccess, requestIDFromCmd(cmd)+1, nil), nil
	})

	_, err := framer.transact(cmdReadMem, []byte{1}, DefaultConnectionConfig())
	cerr, ok := err.(*ControlError)
	if !ok || cerr.Kind != ErrInvalidPacket {
		t.Errorf("got %v, want ErrInvalidPacket", err)
	}
}

func TestTransactNak(t *testing.T) {
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		return encodeAck(0x8003, requestIDFromCmd(cmd), nil), nil // InvalidAddress
	})

	_, err := framer.transact(cmdReadMem, []byte{1}, DefaultConnectionConfig())
	cerr, ok := err.(*ControlError)
	if !ok || cerr.Kind != ErrNak {
		t.Errorf("got %v, want ErrNak", err)
	}
}

// TestReadMemChunking exercises the documented scenario: a 64-byte
// maximum_ack_length (52-byte payload chunk after the 12-byte header)
// reading 200 bytes must take exactly 4 chunked transactions.
func TestReadMemChunking(t *testing.T) {
	chunks := 0
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		chunks++
		n := binary.LittleEndian.Uint16(cmd[20:22])
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(chunks)
		}
		return encodeAck(statusSuccess, requestIDFromCmd(cmd), payload), nil
	})

	cfg := DefaultConnectionConfig()
	cfg.MaxAckLength = 64

	out, err := framer.ReadMem(0x1000, 200, cfg)
	if err != nil {
		t.Fatalf("ReadMem: unexpected error: %v", err)
	}
	if len(out) != 200 {
		t.Fatalf("got %d bytes, want 200", len(out))
	}
	if chunks != 4 {
		t.Errorf("got %d chunked transactions, want 4", chunks)
	}
}

func TestWriteMemChunking(t *testing.T) {
	var written []byte
	framer, _ := newTestFramer(t, func(cmd []byte) ([]byte, error) {
		written = append(written, cmd[20:]...)
		return encodeAck(statusSuccess, requestIDFromCmd(cmd), nil), nil
	})

	cfg := DefaultConnectionConfig()
	cfg.MaxCmdLength = 32 // header(12) + addr(8) + 12 bytes of payload per chunk

	data := make([]byte, 50)
	for i := range data {
		data[i] = byte(i)
	}
	if err := framer.WriteMem(0x2000, data, cfg); err != nil {
		t.Fatalf("WriteMem: unexpected error: %v", err)
	}
	if len(written) != len(data) {
		t.Fatalf("got %d bytes written, want %d", len(written), len(data))
	}
	for i := range data {
		if written[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %x want %x", i, written[i], data[i])
		}
	}
}
