package analog

import (
	"go.uber.org/zap"

	"analogio/ad74412r"
)

// DinConfig is the staged digital input setup of a channel. Threshold and
// ScaledThreshold land in DIN_THRESH, which the four channels of a chip
// share: the last channel sent wins.
type DinConfig struct {
	Filter          bool
	Invert          bool
	CompEnable      bool
	DebounceSimple  bool
	ScaledThreshold bool
	Threshold       uint8
	Sink            uint8
	DebounceTime    uint8
}

func defaultDinConfig() DinConfig {
	return DinConfig{CompEnable: true, Threshold: 16}
}

// ConfigureDin stages a digital input setup. Out of range fields are
// clamped to their register width.
func (d *Driver) ConfigureDin(ch Channel, cfg DinConfig) {
	cfg.Threshold = min(cfg.Threshold, ad74412r.DinCompThreshMask)
	cfg.Sink = min(cfg.Sink, ad74412r.DinSinkMask)
	cfg.DebounceTime = min(cfg.DebounceTime, ad74412r.DinDebounceTimeMask)
	d.ch[ch].din.stage(func(c *DinConfig) { *c = cfg })
}

// StagedDin returns the staged digital input record.
func (d *Driver) StagedDin(ch Channel) DinConfig { return d.ch[ch].din.Staged() }

func encodeDinConfig(c Committed[DinConfig]) uint16 {
	v := c.Value()
	reg := uint16(v.DebounceTime&ad74412r.DinDebounceTimeMask) |
		uint16(v.Sink&ad74412r.DinSinkMask)<<ad74412r.DinSinkShift
	if v.DebounceSimple {
		reg |= ad74412r.DinDebounceModeBit
	}
	if v.Filter {
		reg |= ad74412r.DinFilterBit
	}
	if v.Invert {
		reg |= ad74412r.DinInvertBit
	}
	if v.CompEnable {
		reg |= ad74412r.DinCompEnableBit
	}
	return reg
}

func encodeDinThresh(c Committed[DinConfig]) uint16 {
	v := c.Value()
	reg := uint16(v.Threshold&ad74412r.DinCompThreshMask) << ad74412r.DinCompThreshShift
	if !v.ScaledThreshold {
		reg |= ad74412r.DinThreshModeBit
	}
	return reg
}

// SendDin commits the digital input setup: the function selector when the
// gate allows it, then DIN_CONFIG, then the chip-wide DIN_THRESH.
func (d *Driver) SendDin(ch Channel) error {
	if err := d.sendFunctionFirst(ch); err != nil {
		return err
	}

	c := d.ch[ch].din.commit()
	if err := d.writeReg(ad74412r.RegDinConfig, encodeDinConfig(c), ch.Selector()); err != nil {
		return err
	}

	cs := &d.chips[ch.Chip()]
	thresh := encodeDinThresh(c)
	if thresh != cs.dinThresh {
		if err := d.writeReg(ad74412r.RegDinThresh, thresh, ch.WholeChip()); err != nil {
			return err
		}
		d.log.Debug("din threshold changed", zap.Uint8("chip", uint8(ch.Chip())), zap.Uint16("thresh", thresh))
		cs.dinThresh = thresh
	}
	d.ch[ch].din.settle(c)
	return nil
}

// UpdateDinReadings reads the comparator outputs of both chips.
func (d *Driver) UpdateDinReadings() error {
	for chip := Chip(0); chip < NumChips; chip++ {
		comp, err := d.readDirect(chip, ad74412r.RegDinCompOut)
		if err != nil {
			return err
		}
		d.chips[chip].dinComp = comp
		for _, ch := range channelsOf(chip) {
			d.ch[ch].dinLevel = comp&(1<<ch.Displacement()) != 0
		}
	}
	return nil
}

// DinValue returns the comparator level of ch at the last update.
func (d *Driver) DinValue(ch Channel) bool { return d.ch[ch].dinLevel }
