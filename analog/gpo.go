package analog

import (
	"github.com/pkg/errors"

	"analogio/ad74412r"
)

// GPO modes.
const (
	GpoPullDown   = ad74412r.GpoSelPullDown
	GpoLogic      = ad74412r.GpoSelLogic
	GpoParallel   = ad74412r.GpoSelParallel
	GpoComparator = ad74412r.GpoSelComparator
	GpoHighZ      = ad74412r.GpoSelHighZ
)

// GpoConfig is the staged general purpose output of a channel. The GPO
// pin is independent of the channel function.
type GpoConfig struct {
	Mode  uint8
	Level bool
}

// ConfigureGpo stages a GPO setup. Unknown modes fall back to high impedance.
func (d *Driver) ConfigureGpo(ch Channel, cfg GpoConfig) {
	if cfg.Mode > GpoHighZ {
		cfg.Mode = GpoHighZ
	}
	d.ch[ch].gpo.stage(func(c *GpoConfig) { *c = cfg })
}

// StagedGpo returns the staged GPO record.
func (d *Driver) StagedGpo(ch Channel) GpoConfig { return d.ch[ch].gpo.Staged() }

func encodeGpoConfig(c Committed[GpoConfig]) uint16 {
	v := c.Value()
	reg := uint16(v.Mode & ad74412r.GpoSelectMask)
	if v.Mode == GpoLogic && v.Level {
		reg |= ad74412r.GpoDataBit
	}
	return reg
}

// UpdateGpo commits the staged GPO setup of ch.
func (d *Driver) UpdateGpo(ch Channel) error {
	c := d.ch[ch].gpo.commit()
	if err := d.writeReg(ad74412r.RegGpoConfig, encodeGpoConfig(c), ch.Selector()); err != nil {
		return err
	}
	d.ch[ch].gpo.settle(c)
	return nil
}

// DigitalWrite drives the GPO of ch as a logic output.
func (d *Driver) DigitalWrite(ch Channel, level bool) error {
	d.ConfigureGpo(ch, GpoConfig{Mode: GpoLogic, Level: level})
	return d.UpdateGpo(ch)
}

// DigitalParallelWrite sets the GPO_PAR_DATA bits of chip in one write.
// Bit n of mask is logical channel n. Only channels in parallel mode
// follow it.
func (d *Driver) DigitalParallelWrite(chip Chip, mask uint8) error {
	var reg uint16
	var targets []Channel
	for _, ch := range channelsOf(chip) {
		if d.ch[ch].gpo.Committed().Mode != GpoParallel {
			continue
		}
		targets = append(targets, ch)
		if mask&(1<<ch) != 0 {
			reg |= 1 << ch.Displacement()
		}
	}
	if len(targets) == 0 {
		return errors.Wrapf(ErrFunctionMismatch, "chip %d has no parallel outputs", chip)
	}
	if err := d.writeReg(ad74412r.RegGpoParData, reg, chip.Selector()); err != nil {
		return err
	}
	d.chips[chip].gpoPar = reg
	for _, ch := range targets {
		d.ch[ch].gpo.stage(func(c *GpoConfig) { c.Level = mask&(1<<ch) != 0 })
		cfg := d.ch[ch].gpo.Committed()
		cfg.Level = mask&(1<<ch) != 0
		d.ch[ch].gpo.settle(Committed[GpoConfig]{cfg})
	}
	return nil
}

// DigitalOutputs returns the driven GPO levels as a channel bitmask.
func (d *Driver) DigitalOutputs() uint8 {
	var mask uint8
	for _, ch := range Channels() {
		cfg := d.ch[ch].gpo.Committed()
		if (cfg.Mode == GpoLogic || cfg.Mode == GpoParallel) && cfg.Level {
			mask |= 1 << ch
		}
	}
	return mask
}
