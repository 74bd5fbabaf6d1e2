//go:build linux

package u3v

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"
)

// usbfsBackend is a second Backend, built directly on the Linux usbfs
// ioctl interface instead of libusb/gousb — grounded on this codebase's
// own device.go/transfer.go/sysfs.go, adapted from a general-purpose USB
// stack down to the one control-channel shape U3V needs: claim one
// interface, run synchronous bulk transfers against its two endpoints.
// No cgo, so it is the fallback when libusb isn't available.
type usbfsBackend struct{}

// NewUsbfsBackend returns a Backend that talks to /dev/bus/usb/*/*
// through USBDEVFS ioctls, skipping libusb entirely.
func NewUsbfsBackend() Backend { return usbfsBackend{} }

const (
	usbdevfsControl          = 0xc0185500
	usbdevfsBulk             = 0xc0185502
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
	usbdevfsSetInterface     = 0x80085504
)

type usbfsCtrlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        unsafe.Pointer
}

type usbfsBulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	Data     uintptr
}

type usbfsSetInterface struct {
	Interface  uint32
	AltSetting uint32
}

// usbfsEndpoint is a discovered bulk endpoint: its address (with
// direction bit 0x80).
type usbfsEndpoint struct {
	address uint8
}

func (b usbfsBackend) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	const sysfsDir = "/sys/bus/usb/devices"
	entries, err := os.ReadDir(sysfsDir)
	if err != nil {
		return nil, wrapErr("usbfs.enumerate", ErrIO, err)
	}

	var infos []DeviceInfo
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ":") || !strings.Contains(name, "-") {
			continue // interfaces and root hubs carry no bus/device pair we can open
		}
		path := filepath.Join(sysfsDir, name)
		info, iface, ok := describeUsbfsDevice(path)
		if !ok {
			continue
		}
		_ = iface
		infos = append(infos, info)
	}
	return infos, nil
}

func readSysfsUint(path string, base int, bits int) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), base, bits)
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// describeUsbfsDevice reads a device's sysfs attributes and its first
// (index 0) configuration descriptor (opened just long enough to read it) to
// confirm it exposes a U3V control interface.
func describeUsbfsDevice(sysfsPath string) (DeviceInfo, InterfaceDescriptor, bool) {
	bus, err := readSysfsUint(filepath.Join(sysfsPath, "busnum"), 10, 8)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	dev, err := readSysfsUint(filepath.Join(sysfsPath, "devnum"), 10, 8)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	vid, err := readSysfsUint(filepath.Join(sysfsPath, "idVendor"), 16, 16)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	pid, err := readSysfsUint(filepath.Join(sysfsPath, "idProduct"), 16, 16)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	speedRaw := readSysfsString(filepath.Join(sysfsPath, "speed"))
	speed, ok := usbfsParseSpeed(speedRaw)
	if !ok {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}

	devPath := fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, dev)
	fd, err := syscall.Open(devPath, syscall.O_RDWR, 0)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	defer syscall.Close(fd)

	_, ifaces, _, err := usbfsReadConfigDescriptor(fd, 0)
	if err != nil {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}
	iface, ok := findU3VInterfaceDescriptor(ifaces)
	if !ok {
		return DeviceInfo{}, InterfaceDescriptor{}, false
	}

	return DeviceInfo{
		VendorID:     uint16(vid),
		ProductID:    uint16(pid),
		Bus:          uint8(bus),
		Address:      uint8(dev),
		Vendor:       readSysfsString(filepath.Join(sysfsPath, "manufacturer")),
		Model:        readSysfsString(filepath.Join(sysfsPath, "product")),
		Serial:       readSysfsString(filepath.Join(sysfsPath, "serial")),
		Manufacturer: readSysfsString(filepath.Join(sysfsPath, "manufacturer")),
		Speed:        speed,
	}, iface, true
}

// usbfsParseSpeed maps sysfs's "speed" attribute (a string like "5000",
// "480", "12", "1.5") to a BusSpeed.
func usbfsParseSpeed(s string) (BusSpeed, bool) {
	switch s {
	case "1.5":
		return BusSpeedLow, true
	case "12":
		return BusSpeedFull, true
	case "480":
		return BusSpeedHigh, true
	case "5000":
		return BusSpeedSuper, true
	case "10000", "20000":
		return BusSpeedSuperPlus, true
	default:
		return 0, false
	}
}

func findU3VInterfaceDescriptor(ifaces []InterfaceDescriptor) (InterfaceDescriptor, bool) {
	for _, iface := range ifaces {
		if iface.InterfaceClass == u3vInterfaceClass &&
			iface.InterfaceSubClass == u3vInterfaceSubClass &&
			iface.InterfaceProtocol == u3vInterfaceProtocol {
			return iface, true
		}
	}
	return InterfaceDescriptor{}, false
}

// InterfaceDescriptor mirrors the USB standard interface descriptor
// fields this backend parses out of a raw configuration descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
}

// EndpointDescriptor mirrors the fields needed to find the control
// channel's bulk IN/OUT pair.
type EndpointDescriptor struct {
	EndpointAddr uint8
	Attributes   uint8
}

// usbfsReadConfigDescriptor fetches and parses the device's configuration
// descriptor at configIndex via a standard GET_DESCRIPTOR control
// transfer, the same approach as this codebase's original
// ReadConfigDescriptor.
func usbfsReadConfigDescriptor(fd int, configIndex uint8) (numInterfaces uint8, ifaces []InterfaceDescriptor, endpoints map[uint8][]EndpointDescriptor, err error) {
	buf := make([]byte, 512)
	ctrl := usbfsCtrlRequest{
		RequestType: 0x80,
		Request:     0x06,
		Value:       (0x02 << 8) | uint16(configIndex),
		Index:       0,
		Length:      uint16(len(buf)),
		Timeout:     1000,
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsControl, uintptr(unsafe.Pointer(&ctrl))); errno != 0 {
		return 0, nil, nil, errno
	}
	if len(buf) < 9 {
		return 0, nil, nil, newErr("usbfs.readConfig", ErrInvalidPacket, "short config descriptor")
	}

	totalLength := binary.LittleEndian.Uint16(buf[2:4])
	endpoints = make(map[uint8][]EndpointDescriptor)
	var currentIface uint8
	pos := int(buf[0])
	for pos+2 <= len(buf) && pos < int(totalLength) {
		length := int(buf[pos])
		if length == 0 || pos+length > len(buf) {
			break
		}
		descType := buf[pos+1]
		switch descType {
		case 0x04: // interface
			if length >= 9 {
				iface := InterfaceDescriptor{
					InterfaceNumber:   buf[pos+2],
					AlternateSetting:  buf[pos+3],
					NumEndpoints:      buf[pos+4],
					InterfaceClass:    buf[pos+5],
					InterfaceSubClass: buf[pos+6],
					InterfaceProtocol: buf[pos+7],
				}
				ifaces = append(ifaces, iface)
				currentIface = iface.InterfaceNumber
			}
		case 0x05: // endpoint
			if length >= 7 {
				ep := EndpointDescriptor{
					EndpointAddr: buf[pos+2],
					Attributes:   buf[pos+3],
				}
				endpoints[currentIface] = append(endpoints[currentIface], ep)
			}
		}
		pos += length
	}
	return uint8(len(ifaces)), ifaces, endpoints, nil
}

// usbfsSession is a Session backed by one claimed usbfs interface.
type usbfsSession struct {
	fd        int
	iface     uint8
	epOut     uint8
	epIn      uint8
	mu        sync.Mutex
	claimed   bool
}

func (b usbfsBackend) Open(ctx context.Context, info DeviceInfo) (Session, error) {
	devPath := fmt.Sprintf("/dev/bus/usb/%03d/%03d", info.Bus, info.Address)
	fd, err := syscall.Open(devPath, syscall.O_RDWR, 0)
	if err != nil {
		return nil, wrapErr("usbfs.open", classifyUsbfsErrno(err), err)
	}

	_, ifaces, endpoints, err := usbfsReadConfigDescriptor(fd, 0)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	iface, ok := findU3VInterfaceDescriptor(ifaces)
	if !ok {
		syscall.Close(fd)
		return nil, newErr("usbfs.open", ErrInvalidDevice, "no U3V control interface")
	}

	var epOut, epIn uint8
	for _, ep := range endpoints[iface.InterfaceNumber] {
		const dirIn = 0x80
		const typeMask = 0x03
		const typeBulk = 0x02
		if ep.Attributes&typeMask != typeBulk {
			continue
		}
		if ep.EndpointAddr&dirIn != 0 {
			epIn = ep.EndpointAddr
		} else {
			epOut = ep.EndpointAddr
		}
	}
	if epOut == 0 || epIn == 0 {
		syscall.Close(fd)
		return nil, newErr("usbfs.open", ErrInvalidDevice, "U3V control endpoints not found")
	}

	ifaceNum := uint32(iface.InterfaceNumber)
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsClaimInterface, uintptr(unsafe.Pointer(&ifaceNum))); errno != 0 {
		syscall.Close(fd)
		return nil, wrapErr("usbfs.open", classifyUsbfsErrno(errno), errno)
	}

	return &usbfsSession{fd: fd, iface: iface.InterfaceNumber, epOut: epOut, epIn: epIn, claimed: true}, nil
}

func (s *usbfsSession) bulkTransfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dataPtr uintptr
	if len(data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&data[0]))
	}

	timeoutMS := uint32(0)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeoutMS = uint32(remaining.Milliseconds())
		}
	}

	bulk := usbfsBulkTransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(data)),
		Timeout:  timeoutMS,
		Data:     dataPtr,
	}
	ret, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(s.fd), usbdevfsBulk, uintptr(unsafe.Pointer(&bulk)))
	if errno != 0 {
		return 0, wrapErr("usbfs.bulk", classifyUsbfsErrno(errno), errno)
	}
	return int(ret), nil
}

func (s *usbfsSession) BulkWrite(ctx context.Context, p []byte) (int, error) {
	return s.bulkTransfer(ctx, s.epOut, p)
}

func (s *usbfsSession) BulkRead(ctx context.Context, p []byte) (int, error) {
	return s.bulkTransfer(ctx, s.epIn, p)
}

func (s *usbfsSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		ifaceNum := uint32(s.iface)
		syscall.Syscall(syscall.SYS_IOCTL, uintptr(s.fd), usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&ifaceNum)))
		s.claimed = false
	}
	return syscall.Close(s.fd)
}

// classifyUsbfsErrno maps a syscall errno observed from a usbfs ioctl to
// a ControlErrorKind, mirroring classifyBackendErr's gousb mapping for
// the syscall-level equivalents.
func classifyUsbfsErrno(err error) ControlErrorKind {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return ErrIO
	}
	switch errno {
	case syscall.ENODEV, syscall.ENOENT:
		return ErrInvalidDevice
	case syscall.ETIMEDOUT:
		return ErrTimeout
	case syscall.EACCES, syscall.EBUSY:
		return ErrIO
	default:
		return ErrIO
	}
}
