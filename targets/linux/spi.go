//go:build linux

package main

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"analogio/ad74412r"
)

// spiDevice adapts a periph SPI connection to the tinygo drivers.SPI
// interface the chip bus speaks.
type spiDevice struct {
	conn spi.Conn
}

func (d spiDevice) Tx(w, r []byte) error {
	if r == nil {
		r = make([]byte, len(w))
	}
	return d.conn.Tx(w, r)
}

func (d spiDevice) Transfer(b byte) (byte, error) {
	var rx [1]byte
	err := d.conn.Tx([]byte{b}, rx[:])
	return rx[0], err
}

// openSPI opens one spidev per chip in mode 1 with 8 bit words.
func openSPI(devices []string, speedHz int64) (*ad74412r.Bus, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "periph host init")
	}

	var (
		ports []spi.PortCloser
		devs  []drivers.SPI
	)
	closeAll := func() error {
		var err error
		for _, p := range ports {
			err = multierr.Append(err, p.Close())
		}
		return err
	}

	for _, name := range devices {
		p, err := spireg.Open(name)
		if err != nil {
			_ = closeAll()
			return nil, nil, errors.Wrapf(err, "open %s", name)
		}
		ports = append(ports, p)

		c, err := p.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode1, 8)
		if err != nil {
			_ = closeAll()
			return nil, nil, errors.Wrapf(err, "connect %s", name)
		}
		devs = append(devs, spiDevice{conn: c})
	}

	return ad74412r.NewBus(devs...), closeAll, nil
}
