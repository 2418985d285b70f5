// Package sim simulates the hardware around the analog driver: a pair of
// AD74412R register files, output lines, PWM channels and a clock. The
// firmware runs on it with --sim and the tests use it as the bus mock.
package sim

import (
	"sync"

	"github.com/pkg/errors"

	"analogio/ad74412r"
)

// ErrInjected is returned by accesses the Fail hook rejects.
var ErrInjected = errors.New("injected bus failure")

// Access is one register access seen on the bus.
type Access struct {
	Chip  uint8
	Addr  uint8
	Value uint16
	Write bool
}

type chip struct {
	regs       [256]uint16
	busyPolls  int
	converting bool
	single     bool
}

// Chips is a pair of simulated front-ends. Writes land in the register
// file, with the side effects the driver depends on: write-one-to-clear
// status registers, the CMD_KEY reset and LDAC keys and the conversion
// sequencer.
type Chips struct {
	mu    sync.Mutex
	chips [2]chip
	log   []Access

	// BusyPolls is how many LIVE_STATUS reads a started conversion
	// reports busy before DATA_RDY.
	BusyPolls int

	// Fail, when set, can reject an access before it happens.
	Fail func(a Access) bool
}

// Silicon revision reported after reset.
const SiliconRevision = 0x0002

func NewChips() *Chips {
	c := &Chips{}
	for i := range c.chips {
		c.reset(i)
	}
	return c
}

func (c *Chips) reset(i int) {
	c.chips[i] = chip{}
	c.chips[i].regs[ad74412r.RegSiliconRev] = SiliconRevision
	c.chips[i].regs[ad74412r.RegAlertStatus] = ad74412r.AlertResetOccurred
}

func (c *Chips) check(a Access) error {
	if a.Chip >= 2 {
		return errors.Errorf("no chip %d", a.Chip)
	}
	if c.Fail != nil && c.Fail(a) {
		return errors.Wrapf(ErrInjected, "chip %d addr %#02x", a.Chip, a.Addr)
	}
	return nil
}

func (c *Chips) ReadRegister(chipIdx uint8, addr uint8) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := Access{Chip: chipIdx, Addr: addr}
	if err := c.check(a); err != nil {
		return 0, err
	}
	ch := &c.chips[chipIdx]

	if addr == ad74412r.RegLiveStatus && ch.converting {
		if ch.busyPolls > 0 {
			ch.busyPolls--
			ch.regs[addr] |= ad74412r.LiveAdcBusy
		} else {
			ch.regs[addr] |= ad74412r.LiveAdcDataRdy
			if ch.single {
				ch.converting = false
				ch.regs[addr] &^= ad74412r.LiveAdcBusy
			}
		}
	}

	a.Value = ch.regs[addr]
	c.log = append(c.log, a)
	return a.Value, nil
}

func (c *Chips) WriteRegister(chipIdx uint8, addr uint8, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := Access{Chip: chipIdx, Addr: addr, Value: value, Write: true}
	if err := c.check(a); err != nil {
		return err
	}
	c.log = append(c.log, a)
	ch := &c.chips[chipIdx]

	switch addr {
	case ad74412r.RegAlertStatus, ad74412r.RegLiveStatus:
		ch.regs[addr] &^= value
	case ad74412r.RegCmdKey:
		c.command(int(chipIdx), value)
	case ad74412r.RegAdcConvCtrl:
		ch.regs[addr] = value
		switch value & ad74412r.ConvSeqMask {
		case ad74412r.ConvSeqSingle, ad74412r.ConvSeqContinuous:
			ch.converting = true
			ch.single = value&ad74412r.ConvSeqMask == ad74412r.ConvSeqSingle
			ch.busyPolls = c.BusyPolls
			ch.regs[ad74412r.RegLiveStatus] &^= ad74412r.LiveAdcDataRdy
		default:
			ch.converting = false
			ch.regs[ad74412r.RegLiveStatus] &^= ad74412r.LiveAdcBusy
		}
	default:
		ch.regs[addr] = value
	}
	return nil
}

func (c *Chips) command(i int, key uint16) {
	ch := &c.chips[i]
	switch key {
	case ad74412r.KeySoftReset2:
		if ch.regs[ad74412r.RegCmdKey] == ad74412r.KeySoftReset1 {
			c.reset(i)
			return
		}
	case ad74412r.KeyLdac:
		c.latch(i)
	}
	ch.regs[ad74412r.RegCmdKey] = key
}

func (c *Chips) latch(i int) {
	ch := &c.chips[i]
	for slot := uint8(0); slot < ad74412r.Slots; slot++ {
		ch.regs[ad74412r.RegDacActive+slot] = ch.regs[ad74412r.RegDacCode+slot]
	}
}

// Latch copies DAC_CODE to DAC_ACTIVE as an LDAC edge does.
func (c *Chips) Latch(chipIdx uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latch(int(chipIdx))
}

// Register returns a register without logging the access.
func (c *Chips) Register(chipIdx, addr uint8) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chips[chipIdx].regs[addr]
}

// SetRegister sets a register without side effects or logging.
func (c *Chips) SetRegister(chipIdx, addr uint8, value uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chips[chipIdx].regs[addr] = value
}

// SetAdcResult loads the result register of a chip slot.
func (c *Chips) SetAdcResult(chipIdx, slot uint8, raw uint16) {
	c.SetRegister(chipIdx, ad74412r.RegAdcResult+slot, raw)
}

// SetDiagResult loads the diagnostic result register of a chip slot.
func (c *Chips) SetDiagResult(chipIdx, slot uint8, raw uint16) {
	c.SetRegister(chipIdx, ad74412r.RegDiagResult+slot, raw)
}

// SetComparators sets DIN_COMP_OUT, one bit per slot.
func (c *Chips) SetComparators(chipIdx uint8, bits uint16) {
	c.SetRegister(chipIdx, ad74412r.RegDinCompOut, bits)
}

// RaiseAlert latches alert bits in ALERT_STATUS.
func (c *Chips) RaiseAlert(chipIdx uint8, bits uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chips[chipIdx].regs[ad74412r.RegAlertStatus] |= bits
}

// Log returns the accesses since the last ClearLog.
func (c *Chips) Log() []Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Access(nil), c.log...)
}

// Writes returns the logged writes.
func (c *Chips) Writes() []Access {
	var out []Access
	for _, a := range c.Log() {
		if a.Write {
			out = append(out, a)
		}
	}
	return out
}

func (c *Chips) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}
