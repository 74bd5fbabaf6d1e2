package u3v

import "testing"

func TestReadWriteU32RoundTrip(t *testing.T) {
	tests := []uint32{0, 1, 0xdeadbeef, 0xffffffff}
	for _, v := range tests {
		buf := writeU32(v)
		got, err := readU32(buf)
		if err != nil {
			t.Fatalf("readU32(%x): unexpected error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: got %x want %x", got, v)
		}
	}
}

func TestReadU32ShortBuffer(t *testing.T) {
	if _, err := readU32([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestReadWriteU64RoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 0x0102030405060708, 0xffffffffffffffff}
	for _, v := range tests {
		buf := writeU64(v)
		got, err := readU64(buf)
		if err != nil {
			t.Fatalf("readU64(%x): unexpected error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: got %x want %x", got, v)
		}
	}
}

func TestReadFixedStringStopsAtZero(t *testing.T) {
	buf := append([]byte("hello"), make([]byte, 10)...)
	got := readFixedString(buf, true)
	if got != "hello" {
		t.Errorf("got %q want %q", got, "hello")
	}
}

func TestReadFixedStringNonUTF8ReplacesHighBytes(t *testing.T) {
	buf := []byte{'a', 0x80, 'b', 0}
	got := readFixedString(buf, false)
	if got != "a?b" {
		t.Errorf("got %q want %q", got, "a?b")
	}
}

func TestWriteFixedStringTruncatesAndPads(t *testing.T) {
	buf := writeFixedString("ab", 5)
	if len(buf) != 5 {
		t.Fatalf("got length %d want 5", len(buf))
	}
	if string(buf[:2]) != "ab" || buf[2] != 0 {
		t.Errorf("unexpected padded content: %v", buf)
	}

	buf = writeFixedString("abcdef", 4)
	if len(buf) != 4 || string(buf) != "abcd" {
		t.Errorf("expected truncation to 4 bytes, got %q", buf)
	}
}

func TestParseBusSpeed(t *testing.T) {
	tests := []struct {
		raw     uint32
		want    BusSpeed
		wantErr bool
	}{
		{0x1, BusSpeedLow, false},
		{0x2, BusSpeedFull, false},
		{0x4, BusSpeedHigh, false},
		{0x8, BusSpeedSuper, false},
		{0x10, BusSpeedSuperPlus, false},
		{0x3, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		got, err := parseBusSpeed(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseBusSpeed(0x%x): expected error, got %v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBusSpeed(0x%x): unexpected error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("parseBusSpeed(0x%x) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDeviceCapabilityBits(t *testing.T) {
	raw := uint64(1<<capUserDefinedName | 1<<capSBRM | 1<<capStringEncodingUTF8)
	cap := newDeviceCapability(raw)

	if !cap.UserDefinedName() {
		t.Error("expected UserDefinedName to be set")
	}
	if !cap.SBRM() {
		t.Error("expected SBRM to be set")
	}
	if !cap.StringEncodingUTF8() {
		t.Error("expected StringEncodingUTF8 to be set")
	}
	if cap.Timestamp() {
		t.Error("expected Timestamp to be clear")
	}
	if cap.Raw() != raw {
		t.Errorf("Raw() = %x, want %x", cap.Raw(), raw)
	}
}

func TestDeviceCapabilityAccessFlags(t *testing.T) {
	raw := uint64(1 << capReadAccess)
	cap := newDeviceCapability(raw)

	if !cap.ReadAccess() {
		t.Error("expected ReadAccess to be set")
	}
	if cap.WriteAccess() {
		t.Error("expected WriteAccess to be clear")
	}
	if !cap.AccessPrivilege() {
		t.Error("expected AccessPrivilege to alias ReadAccess")
	}

	both := newDeviceCapability(uint64(1<<capReadAccess | 1<<capWriteAccess))
	if !both.ReadAccess() || !both.WriteAccess() {
		t.Error("expected both Access flags to be set")
	}
}

func TestDeviceConfigurationPreservesReservedBits(t *testing.T) {
	raw := uint32(1<<cfgHeartbeatDisabled | 1<<2 /* reserved bit */)
	cfg := newDeviceConfiguration(raw)

	if !cfg.HeartbeatDisabled() {
		t.Fatal("expected HeartbeatDisabled to be set")
	}

	next := cfg.WithMultiEventEnabled(true)
	if !next.HeartbeatDisabled() {
		t.Error("WithMultiEventEnabled must not clear unrelated bits")
	}
	if next.Raw()&(1<<2) == 0 {
		t.Error("WithMultiEventEnabled must preserve reserved bits")
	}
	if !next.MultiEventEnabled() {
		t.Error("expected MultiEventEnabled to be set")
	}
}
