package ad74412r

import (
	"github.com/pkg/errors"
	"github.com/snksoft/crc"
)

// FrameSize is the length of one SPI transaction: address, two data bytes
// and a CRC-8.
const FrameSize = 4

// ErrFrameCRC is returned when a read-back frame fails its checksum.
var ErrFrameCRC = errors.New("ad74412r: frame crc mismatch")

var crc8Table = crc.NewTable(&crc.Parameters{
	Width:      8,
	Polynomial: 0x07,
	Init:       0x00,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x00,
})

// CRC8 is the frame checksum over the first three bytes.
func CRC8(b []byte) uint8 {
	return uint8(crc8Table.CalculateCRC(b))
}

// WriteFrame encodes a register write.
func WriteFrame(addr uint8, value uint16) [FrameSize]byte {
	f := [FrameSize]byte{addr, uint8(value >> 8), uint8(value)}
	f[3] = CRC8(f[:3])
	return f
}

// ReadSelectFrame encodes the write to READ_SELECT that queues addr for
// the next transaction.
func ReadSelectFrame(addr uint8) [FrameSize]byte {
	return WriteFrame(RegReadSelect, uint16(addr))
}

// NopFrame clocks out the queued read-back.
func NopFrame() [FrameSize]byte {
	return WriteFrame(RegNop, 0)
}

// DecodeReadback checks a read-back frame and returns its data.
func DecodeReadback(f []byte) (uint16, error) {
	if len(f) != FrameSize {
		return 0, errors.Errorf("ad74412r: read-back frame is %d bytes", len(f))
	}
	if CRC8(f[:3]) != f[3] {
		return 0, errors.Wrapf(ErrFrameCRC, "frame % X", f)
	}
	return uint16(f[1])<<8 | uint16(f[2]), nil
}
