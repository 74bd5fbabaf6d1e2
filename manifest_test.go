package u3v

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

// genAPITestHandle builds a fully bootstrapped handle whose Manifest
// declares a single entry named name with the given raw file bytes
// placed at a fixed address.
func genAPITestHandle(t *testing.T, name string, fileBytes []byte) *ControlHandle {
	t.Helper()

	const fileAddr = 0x00400000
	registers := map[uint64][]byte{
		regDeviceCapability.Address: writeU64(0),
		regMaxDeviceRspTime.Address: writeU32(100),
		regSBRMAddress.Address:      writeU64(testSBRMAddr),
		regManifestAddress.Address:  writeU64(testManifestAddr),

		testSBRMAddr + sbrmMaxCmdLength.Address:      writeU32(256),
		testSBRMAddr + sbrmMaxAckLength.Address:      writeU32(256),
		testSBRMAddr + sbrmNumStreamChannels.Address: writeU32(1),
		testSBRMAddr + sbrmSIRMAddress.Address:       writeU64(0),
		testSBRMAddr + sbrmEIRMAddress.Address:       writeU64(0),
		testSBRMAddr + sbrmCurrentSpeed.Address:       writeU32(uint32(BusSpeedSuper)),

		regManufacturerName.Address: writeFixedString("Acme", int(regManufacturerName.Length)),
		regModelName.Address:        writeFixedString("Cam1", int(regModelName.Length)),
		regSerialNumber.Address:     writeFixedString("SN123", int(regSerialNumber.Length)),
		regUserDefinedName.Address:  writeFixedString("", int(regUserDefinedName.Length)),
		regDeviceConfig.Address:     writeU32(0),

		testManifestAddr + manifestEntryCount.Address: writeU64(1),
	}

	entryBase := testManifestAddr + 8
	registers[entryBase+manifestEntryFileVersion] = writeU32(0x00010000)
	registers[entryBase+manifestEntrySchemaVersion] = writeU32(0x00010001)
	registers[entryBase+manifestEntryFileName] = writeFixedString(name, manifestEntryFileNameLen)
	registers[entryBase+manifestEntryFileAddress] = writeU64(fileAddr)
	registers[entryBase+manifestEntryFileSize] = writeU64(uint64(len(fileBytes)))
	registers[entryBase+manifestEntrySHA1] = make([]byte, manifestEntrySHA1Len)

	// handler serves fixed-size registers by exact address match and the
	// Manifest's file contents as an arbitrary byte range off fileBytes,
	// the way a real device's address space is one flat, byte-addressable
	// range rather than a map of discrete registers.
	handler := func(cmd []byte) ([]byte, error) {
		id := requestIDFromCmd(cmd)
		command := binary.LittleEndian.Uint16(cmd[6:8])
		switch command {
		case cmdReadMem:
			addr := binary.LittleEndian.Uint64(cmd[12:20])
			n := binary.LittleEndian.Uint16(cmd[20:22])
			if addr >= fileAddr && addr < fileAddr+uint64(len(fileBytes)) {
				off := addr - fileAddr
				end := off + uint64(n)
				if end > uint64(len(fileBytes)) {
					end = uint64(len(fileBytes))
				}
				return encodeAck(statusSuccess, id, fileBytes[off:end]), nil
			}
			data, ok := registers[addr]
			if !ok {
				return encodeAck(0x8003, id, nil), nil
			}
			if int(n) > len(data) {
				n = uint16(len(data))
			}
			return encodeAck(statusSuccess, id, data[:n]), nil
		case cmdWriteMem:
			addr := binary.LittleEndian.Uint64(cmd[12:20])
			registers[addr] = append([]byte(nil), cmd[20:]...)
			return encodeAck(statusSuccess, id, nil), nil
		default:
			return encodeAck(0x8000, id, nil), nil
		}
	}

	backend := newFakeBackend(handler)
	handle := NewControlHandle(backend, backend.info)
	if err := handle.Open(context.Background()); err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	return handle
}

func TestGenAPIReadsRawXML(t *testing.T) {
	xml := []byte("<GenApiSchema>hello world, this is a genicam description</GenApiSchema>")
	handle := genAPITestHandle(t, "device.xml", xml)
	defer handle.Close()

	got, err := handle.GenAPI(context.Background())
	if err != nil {
		t.Fatalf("GenAPI: unexpected error: %v", err)
	}
	if !bytes.Equal(got, xml) {
		t.Errorf("got %q, want %q", got, xml)
	}
}

func TestGenAPIInflatesZipSuffixedEntry(t *testing.T) {
	xml := []byte("<GenApiSchema>zip-packed contents</GenApiSchema>")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("device.xml")
	if err != nil {
		t.Fatalf("zip.Create: %v", err)
	}
	if _, err := w.Write(xml); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}

	handle := genAPITestHandle(t, "device.zip", buf.Bytes())
	defer handle.Close()

	got, err := handle.GenAPI(context.Background())
	if err != nil {
		t.Fatalf("GenAPI: unexpected error: %v", err)
	}
	if !bytes.Equal(got, xml) {
		t.Errorf("got %q, want %q", got, xml)
	}
}

func TestGenAPIChunksAcrossBufferCapacity(t *testing.T) {
	xml := bytes.Repeat([]byte("0123456789abcdef"), 20) // 320 bytes
	handle := genAPITestHandle(t, "device.xml", xml)
	defer handle.Close()
	handle.cfg.BufferCapacity = 64 // fits the 64-byte name slot; forces readChunked into several pieces

	got, err := handle.GenAPI(context.Background())
	if err != nil {
		t.Fatalf("GenAPI: unexpected error: %v", err)
	}
	if !bytes.Equal(got, xml) {
		t.Errorf("got %d bytes, want %d matching the source", len(got), len(xml))
	}
}

func TestGenAPIRequiresOpenedState(t *testing.T) {
	handle := NewControlHandle(newFakeBackend(nil), DeviceInfo{})
	if _, err := handle.GenAPI(context.Background()); err == nil {
		t.Fatal("expected error calling GenAPI on an unopened handle")
	}
}
