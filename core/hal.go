package core

import "time"

// RegisterBus reads and writes 16 bit registers of the front-end chips.
// Implementations are synchronous and report bus failures.
type RegisterBus interface {
	ReadRegister(chip uint8, addr uint8) (uint16, error)
	WriteRegister(chip uint8, addr uint8, value uint16) error
}

// OutputPin is a digital output line (LDAC, RESET, status LEDs).
type OutputPin interface {
	Set(high bool) error
}

// PWMOutput is one hardware PWM channel.
type PWMOutput interface {
	// Configure sets period and high time. It may be called while running.
	Configure(period, pulse time.Duration) error

	// Enable starts or stops the output without touching its configuration.
	Enable(on bool) error
}
