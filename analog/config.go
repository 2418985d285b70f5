package analog

import (
	"analogio/ad74412r"
)

// MaxMovingAverage is the deepest ADC moving average.
const MaxMovingAverage = 16

// AdcConfig is the staged ADC_CONFIG of a channel plus the driver-side
// filter and diagnostic settings.
type AdcConfig struct {
	Mux           uint8
	Range         uint8
	PullDown      bool
	Rejection     bool
	Diagnostic    bool
	DiagSource    uint8
	DiagRejection bool
	MovingAverage uint8
}

func defaultAdcConfig() AdcConfig {
	return AdcConfig{
		Range:         ad74412r.Range0To10V,
		Rejection:     true,
		DiagSource:    ad74412r.DiagSenseP,
		DiagRejection: true,
	}
}

// ConfigureAdc stages an ADC configuration. Fields wider than their
// register field are clamped.
func (d *Driver) ConfigureAdc(ch Channel, cfg AdcConfig) {
	cfg.Mux = min(cfg.Mux, ad74412r.AdcMuxMask)
	cfg.Range = min(cfg.Range, ad74412r.RangePm10V)
	cfg.DiagSource = min(cfg.DiagSource, ad74412r.DiagSenseLow)
	cfg.MovingAverage = min(cfg.MovingAverage, MaxMovingAverage)
	d.ch[ch].adc.stage(func(c *AdcConfig) { *c = cfg })
}

// ConfigureAdcMux stages the mux selector alone.
func (d *Driver) ConfigureAdcMux(ch Channel, mux uint8) {
	d.ch[ch].adc.stage(func(c *AdcConfig) { c.Mux = min(mux, ad74412r.AdcMuxMask) })
}

// ConfigureAdcRange stages the input range alone.
func (d *Driver) ConfigureAdcRange(ch Channel, r uint8) {
	d.ch[ch].adc.stage(func(c *AdcConfig) { c.Range = min(r, ad74412r.RangePm10V) })
}

// ConfigureAdcDiagnostic stages the diagnostic source of the channel's slot.
func (d *Driver) ConfigureAdcDiagnostic(ch Channel, on bool, source uint8) {
	d.ch[ch].adc.stage(func(c *AdcConfig) {
		c.Diagnostic = on
		c.DiagSource = min(source, ad74412r.DiagSenseLow)
	})
}

// StagedAdc returns the staged ADC record.
func (d *Driver) StagedAdc(ch Channel) AdcConfig { return d.ch[ch].adc.Staged() }

// CommittedAdc returns the ADC record last written.
func (d *Driver) CommittedAdc(ch Channel) AdcConfig { return d.ch[ch].adc.Committed() }

func encodeAdcConfig(c Committed[AdcConfig]) uint16 {
	v := c.Value()
	reg := uint16(v.Mux&ad74412r.AdcMuxMask)<<ad74412r.AdcMuxShift |
		uint16(v.Range&ad74412r.AdcRangeMask)<<ad74412r.AdcRangeShift
	if v.PullDown {
		reg |= ad74412r.AdcPullDownBit
	}
	rej := uint16(ad74412r.AdcRejDisabled)
	if v.Rejection {
		rej = ad74412r.AdcRejEnabled
	}
	return reg | rej<<ad74412r.AdcRejShift
}

// DacConfig is the staged OUTPUT_CONFIG, DAC_CLR_CODE and DAC_CODE of a
// channel. Target and ResetValue are DAC codes.
type DacConfig struct {
	CurrentLimit bool
	SlewEnabled  bool
	SlewRate     uint8
	SlewStep     uint8
	ResetEnabled bool
	ResetValue   uint16
	Target       uint16
}

// ConfigureDac stages the output configuration. Slew fields follow the
// SlewEnabled flag: disabled slew carries no rate or step.
func (d *Driver) ConfigureDac(ch Channel, cfg DacConfig) {
	if cfg.SlewEnabled {
		cfg.SlewRate = min(cfg.SlewRate, ad74412r.OutSlewRateMask)
		cfg.SlewStep = min(cfg.SlewStep, ad74412r.OutSlewStepMask)
	} else {
		cfg.SlewRate, cfg.SlewStep = 0, 0
	}
	cfg.ResetValue = min(cfg.ResetValue, ad74412r.DacMax)
	cfg.Target = min(cfg.Target, ad74412r.DacMax)
	d.ch[ch].dac.stage(func(c *DacConfig) { *c = cfg })
}

// ConfigureDacUseSlew stages linear slew with the given rate and step.
func (d *Driver) ConfigureDacUseSlew(ch Channel, rate, step uint8) {
	d.ch[ch].dac.stage(func(c *DacConfig) {
		c.SlewEnabled = true
		c.SlewRate = min(rate, ad74412r.OutSlewRateMask)
		c.SlewStep = min(step, ad74412r.OutSlewStepMask)
	})
}

// ConfigureDacDisableSlew stages a step output. Rate and step are cleared.
func (d *Driver) ConfigureDacDisableSlew(ch Channel) {
	d.ch[ch].dac.stage(func(c *DacConfig) {
		c.SlewEnabled = false
		c.SlewRate, c.SlewStep = 0, 0
	})
}

// ConfigureDacCurrentLimit stages the short-circuit current limit.
func (d *Driver) ConfigureDacCurrentLimit(ch Channel, on bool) {
	d.ch[ch].dac.stage(func(c *DacConfig) { c.CurrentLimit = on })
}

// ConfigureDacReset stages the value the output falls back to on a reset.
func (d *Driver) ConfigureDacReset(ch Channel, on bool, code uint16) {
	d.ch[ch].dac.stage(func(c *DacConfig) {
		c.ResetEnabled = on
		c.ResetValue = min(code, ad74412r.DacMax)
	})
}

// ConfigureDacValue stages a DAC code. UpdateDacValue writes it.
func (d *Driver) ConfigureDacValue(ch Channel, code uint16) {
	d.ch[ch].dac.stage(func(c *DacConfig) { c.Target = min(code, ad74412r.DacMax) })
}

// StagedDac returns the staged DAC record.
func (d *Driver) StagedDac(ch Channel) DacConfig { return d.ch[ch].dac.Staged() }

// CommittedDac returns the DAC record last written.
func (d *Driver) CommittedDac(ch Channel) DacConfig { return d.ch[ch].dac.Committed() }

func encodeOutputConfig(c Committed[DacConfig]) uint16 {
	v := c.Value()
	var reg uint16
	if v.CurrentLimit {
		reg |= ad74412r.OutCurrentLimitBit
	}
	if v.ResetEnabled {
		reg |= ad74412r.OutClearEnableBit
	}
	if v.SlewEnabled {
		reg |= uint16(ad74412r.OutSlewLinear) << ad74412r.OutSlewEnableShift
		reg |= uint16(v.SlewRate&ad74412r.OutSlewRateMask) << ad74412r.OutSlewRateShift
		reg |= uint16(v.SlewStep&ad74412r.OutSlewStepMask) << ad74412r.OutSlewStepShift
	}
	return reg
}
