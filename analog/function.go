package analog

import (
	"go.uber.org/zap"

	"analogio/ad74412r"
)

// Function is the role a channel's front-end plays. Digital outputs and
// PWM drive dedicated board outputs and are configured separately.
type Function uint8

const (
	FunctionHighImpedance Function = iota
	FunctionVoltageAdc
	FunctionCurrentAdcExt
	FunctionCurrentAdcLoop
	FunctionVoltageDac
	FunctionCurrentDac
	FunctionDigitalInLogic
	FunctionDigitalInLoop
	FunctionRtd2Wire
	FunctionRtd3Wire
)

var functionNames = [...]string{
	"high_impedance", "voltage_adc", "current_adc_ext", "current_adc_loop",
	"voltage_dac", "current_dac", "digital_in_logic", "digital_in_loop",
	"rtd_2wire", "rtd_3wire",
}

func (f Function) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return "unknown"
}

func (f Function) IsAdcInput() bool {
	return f == FunctionVoltageAdc || f == FunctionCurrentAdcExt || f == FunctionCurrentAdcLoop
}

func (f Function) IsDac() bool {
	return f == FunctionVoltageDac || f == FunctionCurrentDac
}

func (f Function) IsDigitalInput() bool {
	return f == FunctionDigitalInLogic || f == FunctionDigitalInLoop
}

func (f Function) IsRtd() bool {
	return f == FunctionRtd2Wire || f == FunctionRtd3Wire
}

// AdcCompatible reports whether the ADC may sample a channel in this
// function: inputs, RTDs and DAC outputs (read-back).
func (f Function) AdcCompatible() bool {
	return f.IsAdcInput() || f.IsRtd() || f.IsDac()
}

// chipCode is the CH_FUNC_SETUP value. A 3-wire RTD is excited by the
// channel's current output.
func (f Function) chipCode() uint16 {
	switch f {
	case FunctionVoltageAdc:
		return ad74412r.FuncVoltageIn
	case FunctionCurrentAdcExt:
		return ad74412r.FuncCurrentInExt
	case FunctionCurrentAdcLoop:
		return ad74412r.FuncCurrentInLoop
	case FunctionVoltageDac:
		return ad74412r.FuncVoltageOut
	case FunctionCurrentDac, FunctionRtd3Wire:
		return ad74412r.FuncCurrentOut
	case FunctionDigitalInLogic:
		return ad74412r.FuncDigitalInLogic
	case FunctionDigitalInLoop:
		return ad74412r.FuncDigitalInLoop
	case FunctionRtd2Wire:
		return ad74412r.FuncResistance
	}
	return ad74412r.FuncHighImpedance
}

// FunctionConfig is the staged function selector.
type FunctionConfig struct {
	Function Function
}

// ConfigureFunction stages a function change. The write happens in SendFunction.
func (d *Driver) ConfigureFunction(ch Channel, f Function) {
	d.ch[ch].function.stage(func(c *FunctionConfig) { c.Function = f })
}

// SendFunction writes the staged function when the channel's gate is open.
// With the gate closed nothing is written and ErrGateBlocked is returned.
func (d *Driver) SendFunction(ch Channel) error {
	if !d.ch[ch].gate {
		d.log.Debug("function write blocked", zap.Stringer("ch", ch),
			zap.Stringer("function", d.ch[ch].function.Staged().Function))
		return ErrGateBlocked
	}

	c := d.ch[ch].function.commit()
	if err := d.writeReg(ad74412r.RegChFuncSetup, c.Value().Function.chipCode(), ch.Selector()); err != nil {
		return err
	}
	d.ch[ch].function.settle(c)
	return nil
}

// sendFunctionFirst writes the function selector ahead of a family commit.
// A closed gate skips the selector and lets the family registers through.
func (d *Driver) sendFunctionFirst(ch Channel) error {
	if !d.ch[ch].gate {
		d.log.Debug("function selector skipped", zap.Stringer("ch", ch))
		return nil
	}
	return d.SendFunction(ch)
}

// FunctionOf returns the committed function of ch.
func (d *Driver) FunctionOf(ch Channel) Function {
	return d.ch[ch].function.Committed().Function
}

// BlockFunction closes the function write gate of ch.
func (d *Driver) BlockFunction(ch Channel) { d.ch[ch].gate = false }

// AllowFunction re-arms the function write gate of ch.
func (d *Driver) AllowFunction(ch Channel) { d.ch[ch].gate = true }

// FunctionAllowed reports the gate state of ch.
func (d *Driver) FunctionAllowed(ch Channel) bool { return d.ch[ch].gate }
