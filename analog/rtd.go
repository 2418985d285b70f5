package analog

import (
	"math"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"analogio/ad74412r"
)

// DefaultRtdCurrent is the 3-wire excitation current in microamps.
const DefaultRtdCurrent = 1000

// RtdConfig is the staged RTD setup. ThreeWire only holds on channels 0
// and 1, the only ones with a lead-compensation path.
type RtdConfig struct {
	ThreeWire        bool
	CurrentMicroAmps uint32
}

// RtdReading is the last resistance and temperature computed for a channel.
type RtdReading struct {
	Resistance  physic.ElectricResistance
	Temperature physic.Temperature
	Valid       bool
}

func threeWireCapable(ch Channel) bool { return ch == 0 || ch == 1 }

// ConfigureRtd stages an RTD setup. A 3-wire request on a channel without
// lead compensation is staged as 2-wire.
func (d *Driver) ConfigureRtd(ch Channel, threeWire bool, currentMicroAmps uint32) {
	threeWire = threeWire && threeWireCapable(ch)
	maxUA := uint32(ad74412r.DacCurrentSpan / physic.MicroAmpere)
	currentMicroAmps = min(currentMicroAmps, maxUA)

	d.ch[ch].rtd.stage(func(c *RtdConfig) {
		c.ThreeWire = threeWire
		c.CurrentMicroAmps = currentMicroAmps
	})
	f := FunctionRtd2Wire
	if threeWire {
		f = FunctionRtd3Wire
	}
	d.ConfigureFunction(ch, f)
}

// StagedRtd returns the staged RTD record.
func (d *Driver) StagedRtd(ch Channel) RtdConfig { return d.ch[ch].rtd.Staged() }

// SendRtd commits the RTD setup. A 2-wire RTD uses the resistance
// function. A 3-wire RTD is excited by the current output, sampled as a
// voltage at the terminal and compensated by a diagnostic on the low sense
// line.
func (d *Driver) SendRtd(ch Channel) error {
	c := d.ch[ch].rtd.commit()
	v := c.Value()

	if !v.ThreeWire {
		d.ch[ch].adc.stage(func(a *AdcConfig) {
			a.Mux = ad74412r.AdcMuxLfToAgnd
			a.Range = ad74412r.Range0To2V5Ext
			a.Diagnostic = false
		})
		if err := d.SendAdc(ch); err != nil {
			return err
		}
		d.ch[ch].rtd.settle(c)
		return nil
	}

	d.ch[ch].adc.stage(func(a *AdcConfig) {
		a.Mux = ad74412r.AdcMuxLfToAgnd
		a.Range = ad74412r.Range0To10V
		a.Diagnostic = true
		a.DiagSource = ad74412r.DiagSenseLow
	})
	// DAC_CODE sits between ADC_CONFIG and DIAG_ASSIGN
	code := ad74412r.DacCodeForCurrent(physic.ElectricCurrent(v.CurrentMicroAmps) * physic.MicroAmpere)
	err := d.sendAdc(ch, func() error {
		return d.writeReg(ad74412r.RegDacCode, code, ch.Selector())
	})
	if err != nil {
		return err
	}
	d.ch[ch].rtd.settle(c)
	return nil
}

// UpdateRtd recomputes resistance and temperature of ch from the last ADC
// and diagnostic results.
func (d *Driver) UpdateRtd(ch Channel) error {
	st := &d.ch[ch]
	f := st.function.Committed().Function
	if !f.IsRtd() {
		return errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, f)
	}
	if !st.adcReading.Valid {
		return errors.Wrapf(ErrStale, "%s has no conversion", ch)
	}

	var r physic.ElectricResistance
	if f == FunctionRtd2Wire {
		r = ad74412r.RtdResistance(st.adcReading.Raw)
	} else {
		cfg := st.rtd.Committed()
		if cfg.CurrentMicroAmps == 0 {
			return errors.Wrapf(ErrFunctionMismatch, "%s has no excitation current", ch)
		}
		term := ad74412r.AdcVoltage(st.adcReading.Raw, ad74412r.Range0To10V)
		lead := ad74412r.DiagVoltage(st.diagRaw)
		i := physic.ElectricCurrent(cfg.CurrentMicroAmps) * physic.MicroAmpere
		// nV * 1000 / nA is mΩ
		r = physic.ElectricResistance(int64(term-2*lead)*1000/int64(i)) * physic.MilliOhm
		if r < 0 {
			r = 0
		}
	}

	st.rtdReading = RtdReading{
		Resistance:  r,
		Temperature: ad74412r.PT100Temperature(r),
		Valid:       true,
	}
	return nil
}

// RtdValue returns the last RTD reading of ch.
func (d *Driver) RtdValue(ch Channel) RtdReading { return d.ch[ch].rtdReading }

func milliOhms(r physic.ElectricResistance) int32 {
	if r >= physic.ElectricResistance(math.MaxInt64) {
		return math.MaxInt32
	}
	return clamp32(int64(r / physic.MilliOhm))
}
