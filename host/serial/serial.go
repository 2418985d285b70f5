// Package serial opens the link between the host and the expansion
// module.
package serial

import (
	"io"
	"time"
)

// Port is an open serial link. Tests substitute a pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC links ignore it.
	Baud int

	// Read timeout, 0 blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the link settings the module firmware uses.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}
