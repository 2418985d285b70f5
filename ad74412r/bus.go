package ad74412r

import (
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// Bus drives several chips, one SPI device each, and implements the
// register contract the analog driver uses.
type Bus struct {
	devs []drivers.SPI
}

// NewBus takes one SPI device per chip, in chip order.
func NewBus(devs ...drivers.SPI) *Bus {
	return &Bus{devs: devs}
}

func (b *Bus) device(chip uint8) (drivers.SPI, error) {
	if int(chip) >= len(b.devs) || b.devs[chip] == nil {
		return nil, errors.Errorf("ad74412r: no device for chip %d", chip)
	}
	return b.devs[chip], nil
}

// WriteRegister sends one write frame.
func (b *Bus) WriteRegister(chip uint8, addr uint8, value uint16) error {
	dev, err := b.device(chip)
	if err != nil {
		return err
	}
	f := WriteFrame(addr, value)
	return errors.Wrapf(dev.Tx(f[:], nil), "chip %d write 0x%02X", chip, addr)
}

// ReadRegister selects addr for read-back and clocks it out with a NOP.
func (b *Bus) ReadRegister(chip uint8, addr uint8) (uint16, error) {
	dev, err := b.device(chip)
	if err != nil {
		return 0, err
	}

	sel := ReadSelectFrame(addr)
	if err := dev.Tx(sel[:], nil); err != nil {
		return 0, errors.Wrapf(err, "chip %d select 0x%02X", chip, addr)
	}

	nop := NopFrame()
	var rx [FrameSize]byte
	if err := dev.Tx(nop[:], rx[:]); err != nil {
		return 0, errors.Wrapf(err, "chip %d read 0x%02X", chip, addr)
	}
	v, err := DecodeReadback(rx[:])
	return v, errors.Wrapf(err, "chip %d read 0x%02X", chip, addr)
}
