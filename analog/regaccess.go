package analog

import (
	"fmt"

	"go.uber.org/zap"
)

// TransportError is a failed register access. It matches ErrTransport
// under errors.Is and unwraps to the bus error.
type TransportError struct {
	Chip  Chip
	Addr  uint8
	Write bool
	Err   error
}

func (e *TransportError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("%s chip %d register %#02x: %v", op, e.Chip, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// writeReg writes a per-channel register at base plus the selector's
// displacement, or base itself for a whole-chip token.
func (d *Driver) writeReg(base uint8, value uint16, sel Selector) error {
	return d.writeDirect(sel.Chip(), base+sel.Displacement(), value)
}

// readReg is the mapped counterpart of writeReg.
func (d *Driver) readReg(base uint8, sel Selector) (uint16, error) {
	return d.readDirect(sel.Chip(), base+sel.Displacement())
}

// writeDirect writes an absolute chip address.
func (d *Driver) writeDirect(chip Chip, addr uint8, value uint16) error {
	if err := d.bus.WriteRegister(uint8(chip), addr, value); err != nil {
		d.log.Debug("register write failed", zap.Uint8("chip", uint8(chip)), zap.Uint8("addr", addr), zap.Error(err))
		return &TransportError{Chip: chip, Addr: addr, Write: true, Err: err}
	}
	return nil
}

// readDirect reads an absolute chip address.
func (d *Driver) readDirect(chip Chip, addr uint8) (uint16, error) {
	v, err := d.bus.ReadRegister(uint8(chip), addr)
	if err != nil {
		d.log.Debug("register read failed", zap.Uint8("chip", uint8(chip)), zap.Uint8("addr", addr), zap.Error(err))
		return 0, &TransportError{Chip: chip, Addr: addr, Err: err}
	}
	return v, nil
}
