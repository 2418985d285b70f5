package analog

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"analogio/ad74412r"
)

// DacUpdate selects whether UpdateDacValue latches the chip right away.
// Leave ToggleLatch off to stage several channels and call LatchDac once.
type DacUpdate struct {
	ToggleLatch bool
}

// SendDac commits the staged output configuration: the function selector
// when the gate allows it, then OUTPUT_CONFIG, then DAC_CLR_CODE when a
// reset value is enabled.
func (d *Driver) SendDac(ch Channel) error {
	if err := d.sendFunctionFirst(ch); err != nil {
		return err
	}

	c := d.ch[ch].dac.commit()
	if err := d.writeReg(ad74412r.RegOutputConfig, encodeOutputConfig(c), ch.Selector()); err != nil {
		return err
	}
	if c.Value().ResetEnabled {
		if err := d.writeReg(ad74412r.RegDacClrCode, c.Value().ResetValue, ch.Selector()); err != nil {
			return err
		}
	}

	// The output keeps its last code, the new target waits for UpdateDacValue.
	settled := c.Value()
	settled.Target = d.ch[ch].dac.Committed().Target
	d.ch[ch].dac.settle(Committed[DacConfig]{settled})
	return nil
}

// UpdateDacValue writes the staged DAC code of ch. With ToggleLatch the
// chip's LDAC is toggled so the code reaches the output.
func (d *Driver) UpdateDacValue(ch Channel, opts DacUpdate) error {
	if f := d.FunctionOf(ch); !f.IsDac() {
		return errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, f)
	}

	code := d.ch[ch].dac.Staged().Target
	if err := d.writeReg(ad74412r.RegDacCode, code, ch.Selector()); err != nil {
		return err
	}
	committed := d.ch[ch].dac.Committed()
	committed.Target = code
	d.ch[ch].dac.settle(Committed[DacConfig]{committed})

	if opts.ToggleLatch {
		return d.LatchDac(ch.Chip())
	}
	return nil
}

// LatchDac moves the written DAC codes of chip to its outputs in one step.
// With an LDAC line every call drives the opposite level of the previous
// one, otherwise the LDAC key is written to CMD_KEY.
func (d *Driver) LatchDac(chip Chip) error {
	cs := &d.chips[chip]
	if pin := d.ldac[chip]; pin != nil {
		next := !cs.ldacPhase
		if err := pin.Set(next); err != nil {
			return errors.Wrapf(err, "chip %d ldac", chip)
		}
		cs.ldacPhase = next
		return nil
	}
	return d.writeDirect(chip, ad74412r.RegCmdKey, ad74412r.KeyLdac)
}

// SyncLdac drives every LDAC line low and restarts the toggle phase.
func (d *Driver) SyncLdac() error {
	for chip, pin := range d.ldac {
		if pin == nil {
			continue
		}
		if err := pin.Set(false); err != nil {
			return errors.Wrapf(err, "chip %d ldac", chip)
		}
		d.chips[chip].ldacPhase = false
	}
	return nil
}

// ResetDacValue drives the reset value of ch to its output. The reset is
// chip-wide: every DAC channel with a reset value on the same chip falls
// back with it. The channels that were reset are returned.
func (d *Driver) ResetDacValue(ch Channel) ([]Channel, error) {
	chip := ch.Chip()
	var reset []Channel
	for _, c := range channelsOf(chip) {
		st := &d.ch[c]
		cfg := st.dac.Committed()
		if !st.function.Committed().Function.IsDac() || !cfg.ResetEnabled {
			continue
		}
		if err := d.writeReg(ad74412r.RegDacCode, cfg.ResetValue, c.Selector()); err != nil {
			return reset, err
		}
		cfg.Target = cfg.ResetValue
		st.dac.settle(Committed[DacConfig]{cfg})
		st.dac.stage(func(s *DacConfig) { s.Target = cfg.ResetValue })
		reset = append(reset, c)
	}
	if len(reset) == 0 {
		return nil, nil
	}

	d.log.Info("dac reset", zap.Uint8("chip", uint8(chip)), zap.Stringer("requested", ch), zap.Int("channels", len(reset)))
	return reset, d.LatchDac(chip)
}

// UpdateDacPresentValue reads the code the DAC is driving, which differs
// from the target while slewing.
func (d *Driver) UpdateDacPresentValue(ch Channel) error {
	if f := d.FunctionOf(ch); !f.IsDac() {
		return errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, f)
	}
	v, err := d.readReg(ad74412r.RegDacActive, ch.Selector())
	if err != nil {
		return err
	}
	d.ch[ch].dacActive = v & ad74412r.DacMax
	return nil
}

// DacPresentValue returns the code read by UpdateDacPresentValue.
func (d *Driver) DacPresentValue(ch Channel) uint16 { return d.ch[ch].dacActive }

// DacCodeFor converts a host value to a DAC code: millivolts for a voltage
// output, microamps for a current output.
func DacCodeFor(f Function, value uint16) uint16 {
	if f == FunctionCurrentDac {
		return ad74412r.DacCodeForCurrent(physic.ElectricCurrent(value) * physic.MicroAmpere)
	}
	return ad74412r.DacCodeForVoltage(physic.ElectricPotential(value) * physic.MilliVolt)
}
